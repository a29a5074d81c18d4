// Package shared wires the application services for the API and the admin CLI.
package shared

import (
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/academicyear"
	"github.com/trezcool/kodomo/core/assignment"
	"github.com/trezcool/kodomo/core/nursery"
	"github.com/trezcool/kodomo/core/yearslide"
	"github.com/trezcool/kodomo/storage/database"
	inmemdb "github.com/trezcool/kodomo/storage/database/inmem"
	boiledrepos "github.com/trezcool/kodomo/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/kodomo/storage/database/sqlx"
)

type Services struct {
	Years       *academicyear.Service
	Assignments *assignment.Service
	Slides      *yearslide.Service
	Directory   nursery.Directory

	// SQL is nil with the memory engine.
	SQL *sqlx.DB
	// Memory is nil with the postgres engine.
	Memory *inmemdb.DB
}

func (s *Services) Close() error {
	if s.SQL != nil {
		return s.SQL.Close()
	}
	return nil
}

// NewValidator returns a validator knowing every custom tag of the app, along with its english translator.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	academicyear.InitValidators(validate, translator)
	assignment.InitValidators(validate, translator)
	return validate, translator
}

type repositories struct {
	years       academicyear.Repository
	assignments assignment.Repository
	dir         nursery.Directory
	slides      yearslide.Store
}

// NewServices opens the storage engine selected in conf and builds the services on top of it.
// The postgres database is created & migrated when migrate is true.
func NewServices(conf *core.Config, logger core.Logger, mailSvc core.EmailService, migrate bool) (*Services, error) {
	svcs := new(Services)
	var repos repositories

	switch conf.Database.Engine {
	case core.EngineMemory:
		db := inmemdb.Open()
		if conf.Database.SeedFile != "" {
			if err := seedMemory(db, conf.Database.SeedFile); err != nil {
				return nil, err
			}
		}
		svcs.Memory = db
		repos = repositories{
			years:       inmemdb.NewAcademicYearRepository(db),
			assignments: inmemdb.NewAssignmentRepository(db),
			dir:         inmemdb.NewDirectory(db),
			slides:      inmemdb.NewYearSlideStore(db),
		}
	case core.EnginePostgres:
		if migrate {
			if err := database.CreateIfNotExist(conf); err != nil {
				return nil, errors.Wrap(err, "creating database")
			}
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err = database.Migrate(db.DB); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		svcs.SQL = db
		repos = repositories{
			years:       sqlxrepos.NewAcademicYearRepository(db),
			assignments: sqlxrepos.NewAssignmentRepository(db),
			dir:         boiledrepos.NewDirectory(db),
			slides:      sqlxrepos.NewYearSlideStore(db),
		}
	default:
		return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}

	svcs.Directory = repos.dir
	svcs.Years = academicyear.NewService(repos.years)
	svcs.Assignments = assignment.NewService(svcs.Years, repos.dir, repos.assignments)
	svcs.Slides = yearslide.NewService(svcs.Years, repos.dir, repos.assignments, repos.slides, mailSvc, logger, conf)
	return svcs, nil
}

func seedMemory(db *inmemdb.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening seed file")
	}
	defer f.Close()

	if _, err = db.LoadSeed(f); err != nil {
		return errors.Wrapf(err, "loading %s", path)
	}
	return nil
}
