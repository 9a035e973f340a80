// Package shared wires the dependencies common to the api and admin apps.
package shared

import (
	"database/sql"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/record"
	"github.com/trezcool/academia/core/recurrence"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/storage/database"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	boiledrepos "github.com/trezcool/academia/storage/database/sqlboiler"
)

const EngineInMem = "inmem"

// Stores are the repositories of the configured database engine.
type Stores struct {
	db          *sql.DB // nil with the inmem engine
	Records     record.Repository
	Roles       user.RoleRepository
	Recurrences recurrence.Repository
}

// OpenStores opens the database of conf.Database.Engine, creating and migrating postgres as needed.
func OpenStores(conf *core.Config, logger core.Logger) (*Stores, error) {
	if conf.Database.Engine == EngineInMem {
		db := inmemdb.Open()
		return &Stores{
			Records:     inmemdb.NewRecordRepository(db),
			Roles:       inmemdb.NewRoleRepository(db),
			Recurrences: inmemdb.NewRecurrenceRepository(db),
		}, nil
	}

	db, err := database.Setup(conf, logger)
	if err != nil {
		return nil, errors.Wrap(err, "setting up database")
	}
	return &Stores{
		db:          db,
		Records:     boiledrepos.NewRecordRepository(db),
		Roles:       boiledrepos.NewRoleRepository(db),
		Recurrences: boiledrepos.NewRecurrenceRepository(db, logger),
	}, nil
}

// DB is the transactional database, nil with the inmem engine.
func (s *Stores) DB() core.DB {
	if s.db == nil {
		return nil
	}
	return s.db
}

// SQL is the raw connection, nil with the inmem engine.
func (s *Stores) SQL() *sql.DB {
	return s.db
}

func (s *Stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Services are the core services built on top of Stores.
type Services struct {
	Engine     *access.Engine
	Users      *user.Service
	Recurrence *recurrence.Service
}

func NewServices(conf *core.Config, stores *Stores, logger core.Logger) Services {
	return Services{
		Engine:     access.NewEngine(stores.Records, logger),
		Users:      user.NewService(stores.Records, stores.Roles),
		Recurrence: recurrence.NewService(stores.DB(), stores.Recurrences, logger, conf.Recurrence.MaxOccurrences),
	}
}

// NewValidator returns the validator knowing every custom tag of the apps.
func NewValidator() (*validator.Validate, ut.Translator) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	recurrence.InitValidators(validate, translator)
	return validate, translator
}
