package main

import (
	"os"

	"github.com/trezcool/kodomo/apps/shared"
	"github.com/trezcool/kodomo/core"
	logsvc "github.com/trezcool/kodomo/services/logger"
	"github.com/trezcool/kodomo/storage/database"
)

func main() {
	conf := core.NewConfig()

	local := logsvc.NewLocalLogger(conf)
	logger := logsvc.NewRollbarLogger(local, conf)
	logger.Enable(!conf.Debug)

	if len(os.Args) > 1 && os.Args[1] == "migrate" && conf.Database.Engine == core.EnginePostgres {
		if err := database.CreateIfNotExist(conf); err != nil {
			local.WithError(err).Fatal("creating database")
		}
	}

	svcs, err := shared.NewServices(conf, logger, nil /* slide reports are sent by the API only */, false /* migrate */)
	if err != nil {
		local.WithError(err).Fatal("setting up services")
	}

	cli := commandLine{
		yearSvc:  svcs.Years,
		slideSvc: svcs.Slides,
		in:       os.Stdin,
		out:      os.Stdout,
	}
	if svcs.SQL != nil {
		cli.db = svcs.SQL.DB
	}

	err = cli.run(os.Args)
	if cerr := svcs.Close(); cerr != nil {
		local.WithError(cerr).Error("closing database")
	}
	if err != nil {
		if err != errHelp {
			local.WithError(err).Error("admin command failed")
		}
		os.Exit(1)
	}
}
