package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/academicyear"
	"github.com/trezcool/kodomo/core/yearslide"
	"github.com/trezcool/kodomo/storage/database"
)

var (
	gooseRunFunc   = goose.Run       // mockable
	isTerminalFunc = term.IsTerminal // mockable

	errHelp         = errors.New("help provided")
	errNoSQL        = errors.New("migrations need the postgres engine")
	errNotConfirmed = errors.New("year slide not confirmed")
)

type (
	yearService interface {
		List(ctx context.Context, nurseryID int) ([]academicyear.AcademicYear, error)
		Create(ctx context.Context, na academicyear.NewAcademicYear) (academicyear.AcademicYear, error)
	}

	slideService interface {
		Preview(ctx context.Context, nurseryID, targetYear int) (yearslide.Preview, error)
		Execute(ctx context.Context, req yearslide.Request) (yearslide.Result, error)
		History(ctx context.Context, nurseryID int) ([]yearslide.Result, error)
	}

	commandLine struct {
		db       *sql.DB // nil with the memory engine
		yearSvc  yearService
		slideSvc slideService
		in       io.Reader
		out      io.Writer
	}
)

func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) < 2 {
		_ = root.Usage()
		return errHelp
	}
	root.SetArgs(args[1:])
	return root.Execute()
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Kodomo administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	root.AddCommand(cli.migrateCmd(), cli.yearsCmd(), cli.slideCmd())
	return root
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose command (up, down, status, ...) against the embedded migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			if cli.db == nil {
				return errNoSQL
			}
			if err := database.PrepareMigrations(); err != nil {
				return err
			}
			return gooseRunFunc(args[0], cli.db, database.MigrationsDir(), args[1:]...)
		},
	}
}

func (cli *commandLine) yearsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "years",
		Short: "Manage academic years",
	}

	var nurseryID int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the academic years of a nursery",
		RunE: func(cmd *cobra.Command, args []string) error {
			years, err := cli.yearSvc.List(cmd.Context(), nurseryID)
			if err != nil {
				return err
			}
			return cli.writeJSON(years)
		},
	}
	list.Flags().IntVar(&nurseryID, "nursery", 0, "Nursery ID (required)")
	_ = list.MarkFlagRequired("nursery")

	var (
		na              academicyear.NewAcademicYear
		start, end      string
		current, noCopy bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Register the next academic year (or the first one with --current)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if start != "" {
				if na.StartDate, err = core.ParseDate(start); err != nil {
					return errors.Wrap(err, "invalid --start")
				}
			}
			if end != "" {
				if na.EndDate, err = core.ParseDate(end); err != nil {
					return errors.Wrap(err, "invalid --end")
				}
			}
			if current {
				f := false
				na.IsFuture = &f
			}
			if noCopy {
				f := false
				na.CopyClasses = &f
			}
			ay, err := cli.yearSvc.Create(cmd.Context(), na)
			if err != nil {
				return err
			}
			return cli.writeJSON(ay)
		},
	}
	create.Flags().IntVar(&na.NurseryID, "nursery", 0, "Nursery ID (required)")
	create.Flags().IntVar(&na.Year, "year", 0, "Year (defaults to the year after the current one)")
	create.Flags().StringVar(&start, "start", "", "Start date, YYYY-MM-DD")
	create.Flags().StringVar(&end, "end", "", "End date, YYYY-MM-DD")
	create.Flags().BoolVar(&current, "current", false, "Register the first, current year of the nursery")
	create.Flags().BoolVar(&noCopy, "no-copy-classes", false, "Do not copy the classes of the current year")
	_ = create.MarkFlagRequired("nursery")

	cmd.AddCommand(list, create)
	return cmd
}

func (cli *commandLine) slideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slide",
		Short: "Move a nursery to its next academic year",
	}

	var nurseryID, targetYear, userID int
	var yes bool
	var notes string

	preview := &cobra.Command{
		Use:   "preview",
		Short: "Show what a year slide would do",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cli.slideSvc.Preview(cmd.Context(), nurseryID, targetYear)
			if err != nil {
				return err
			}
			return cli.writeJSON(p)
		},
	}

	execute := &cobra.Command{
		Use:   "execute",
		Short: "Execute a year slide",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				p, err := cli.slideSvc.Preview(cmd.Context(), nurseryID, targetYear)
				if err != nil {
					return err
				}
				ok, err := cli.confirm(p)
				if err != nil {
					return err
				}
				if !ok {
					return errNotConfirmed
				}
			}
			req := yearslide.Request{
				NurseryID:        nurseryID,
				TargetYear:       targetYear,
				Confirmed:        true,
				ExecutedByUserID: userID,
			}
			if notes != "" {
				req.Notes.SetValid(notes)
			}
			res, err := cli.slideSvc.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			return cli.writeJSON(res)
		},
	}
	execute.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	execute.Flags().IntVar(&userID, "user", 1, "ID of the user executing the slide")
	execute.Flags().StringVar(&notes, "notes", "", "Notes kept with the slide log")

	for _, c := range []*cobra.Command{preview, execute} {
		c.Flags().IntVar(&nurseryID, "nursery", 0, "Nursery ID (required)")
		c.Flags().IntVar(&targetYear, "target", 0, "Target year (required)")
		_ = c.MarkFlagRequired("nursery")
		_ = c.MarkFlagRequired("target")
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "List past year slides, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, err := cli.slideSvc.History(cmd.Context(), nurseryID)
			if err != nil {
				return err
			}
			return cli.writeJSON(logs)
		},
	}
	history.Flags().IntVar(&nurseryID, "nursery", 0, "Nursery ID (required)")
	_ = history.MarkFlagRequired("nursery")

	cmd.AddCommand(preview, execute, history)
	return cmd
}

// confirm prints the preview warnings and asks for a confirmation. Without a terminal, --yes is required.
func (cli *commandLine) confirm(p yearslide.Preview) (bool, error) {
	if !isTerminalFunc(int(os.Stdin.Fd())) {
		return false, errors.New("not a terminal: re-run with --yes to confirm the year slide")
	}
	_, _ = fmt.Fprintf(cli.out, "Nursery %d: %d -> %d (%d children, %d staff)\n",
		p.NurseryID, p.CurrentYear, p.TargetYear, p.AffectedChildrenCount, p.AffectedStaffCount)
	for _, w := range p.Warnings {
		_, _ = fmt.Fprintf(cli.out, "  ! %s\n", w)
	}
	_, _ = fmt.Fprint(cli.out, "Proceed? [y/N] ")

	answer, err := bufio.NewReader(cli.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.Wrap(err, "reading confirmation")
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func (cli *commandLine) writeJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
