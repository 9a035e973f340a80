// Package database sets up the postgres database of the app: the role and database
// it runs as, its connection, and the schema the repositories need.
package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/trezcool/academia/core"
	appfs "github.com/trezcool/academia/fs"
)

const migrationsDir = "migrations"

// Tables are the tables the record, role and recurrence repositories run on.
var Tables = []string{"record", "role", "recurrence_rule", "occurrence"}

var ErrSchemaIncomplete = errors.New("database schema incomplete")

// dsn builds the connection string of dbName, as the admin user when admin is set and one is configured.
func dsn(conf *core.Config, dbName string, admin bool) string {
	dbc := conf.Database
	user := url.UserPassword(dbc.User, dbc.Password)
	if admin && dbc.AdminUser != "" {
		user = url.UserPassword(dbc.AdminUser, dbc.AdminPassword)
	}

	q := url.Values{"sslmode": {"require"}, "timezone": {"utc"}}
	if dbc.DisableTLS {
		q.Set("sslmode", "disable")
	}
	u := url.URL{Scheme: "postgres", User: user, Host: dbc.Address(), Path: dbName, RawQuery: q.Encode()}
	return u.String()
}

// Open opens the app database. The connection is checked lazily.
func Open(conf *core.Config) (*sql.DB, error) {
	return sql.Open(conf.Database.Engine, dsn(conf, conf.Database.Name, false))
}

// waitReady pings db until it answers, waiting 100ms longer between each attempt.
func waitReady(db *sql.DB, attempts int) (err error) {
	for i := 1; i <= attempts; i++ {
		if err = db.Ping(); err == nil {
			return nil
		}
		time.Sleep(time.Duration(i) * 100 * time.Millisecond)
	}
	return errors.Wrap(err, "DB ping timeout")
}

func exists(db *sql.DB, query, name string) (bool, error) {
	var found bool
	if err := db.QueryRow(query, name).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

// CreateIfNotExist creates the app role (as the admin user) and the app database (as the app role).
func CreateIfNotExist(conf *core.Config) error {
	dbc := conf.Database

	admin, err := sql.Open(dbc.Engine, dsn(conf, "postgres", true))
	if err != nil {
		return errors.Wrap(err, "opening admin connection")
	}
	defer func() { _ = admin.Close() }()
	if err = waitReady(admin, 30); err != nil {
		return err
	}

	if dbc.User != "" {
		found, err := exists(admin, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", dbc.User)
		if err != nil {
			return errors.Wrap(err, "checking app user")
		}
		if !found {
			q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD %s", pq.QuoteIdentifier(dbc.User), pq.QuoteLiteral(dbc.Password))
			if _, err = admin.Exec(q); err != nil {
				return errors.Wrap(err, "creating app user")
			}
		}
	}

	// the database belongs to the app user
	app, err := sql.Open(dbc.Engine, dsn(conf, "postgres", false))
	if err != nil {
		return errors.Wrap(err, "opening app connection")
	}
	defer func() { _ = app.Close() }()

	found, err := exists(app, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbc.Name)
	if err != nil {
		return errors.Wrap(err, "checking database")
	}
	if !found {
		if _, err = app.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbc.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// Migrator runs goose commands over the embedded migrations.
type Migrator struct {
	DB *sql.DB

	Run        func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error
	Version    func(db *sql.DB) (int64, error)
	ListTables func(db *sql.DB) ([]string, error)
}

func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{DB: db, Run: goose.RunFS, Version: goose.GetDBVersion, ListTables: listTables}
}

// Exec runs a goose command (up, down, status, create NAME sql...).
func (m *Migrator) Exec(command string, args ...string) error {
	return m.Run(command, m.DB, appfs.FS, migrationsDir, args...)
}

// Up applies the pending migrations, checks the schema and returns the resulting version.
func (m *Migrator) Up() (int64, error) {
	if err := m.Exec("up"); err != nil {
		return 0, errors.Wrap(err, "migrating database")
	}
	if err := m.CheckSchema(); err != nil {
		return 0, err
	}
	return m.CurrentVersion()
}

func (m *Migrator) CurrentVersion() (int64, error) {
	v, err := m.Version(m.DB)
	if err != nil {
		return 0, errors.Wrap(err, "reading database version")
	}
	return v, nil
}

// CheckSchema fails with ErrSchemaIncomplete when one of Tables is missing.
func (m *Migrator) CheckSchema() error {
	have, err := m.ListTables(m.DB)
	if err != nil {
		return errors.Wrap(err, "listing tables")
	}
	if missing := missingTables(have); len(missing) > 0 {
		return errors.Wrapf(ErrSchemaIncomplete, "missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func missingTables(have []string) []string {
	found := make(map[string]bool, len(have))
	for _, t := range have {
		found[t] = true
	}
	var missing []string
	for _, t := range Tables {
		if !found[t] {
			missing = append(missing, t)
		}
	}
	sort.Strings(missing)
	return missing
}

func listTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema()")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var t string
		if err = rows.Scan(&t); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// Setup creates the database if needed, opens it and brings its schema up to date.
func Setup(conf *core.Config, logger core.Logger) (*sql.DB, error) {
	if err := CreateIfNotExist(conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}
	db, err := Open(conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	version, err := NewMigrator(db).Up()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info(fmt.Sprintf("database %q at version %d", conf.Database.Name, version))
	}
	return db, nil
}
