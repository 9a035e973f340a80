package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/apps/shared"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/storage/database"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	conf := &core.Config{Database: core.DatabaseConfig{Engine: shared.EngineInMem}}
	stores, err := shared.OpenStores(conf, nil)
	require.NoError(t, err)
	validate, _ := shared.NewValidator()

	out := new(bytes.Buffer)
	return &commandLine{
		usrSvc:   shared.NewServices(conf, stores, nil).Users,
		validate: validate,
		out:      out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
}

func runCLITests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
			}
			if tt.wantOut != "" {
				assert.Equal(t, tt.wantOut, out.String())
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, out := setup(t)

	// no database with the inmem engine
	assert.Equal(t, errNoDatabase, cli.run([]string{"admin", "migrate", "up"}))

	tables := database.Tables
	cli.migrator = &database.Migrator{
		DB:         new(sql.DB),
		Version:    func(*sql.DB) (int64, error) { return 3, nil },
		ListTables: func(*sql.DB) ([]string, error) { return tables, nil },
	}
	cli.migrator.Run = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		if _, err := fs.Stat(fsys, dir); err != nil {
			return err
		}
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, out, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}, wantOut: "database version 3\n"},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}, wantOut: "database version 3\n"},
		{name: "down", args: []string{"migrate", "down"}, wantOut: "database version 3\n"},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "lessons", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	})

	// status prints nothing of its own
	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "migrate", "status"}))
	assert.Empty(t, out.String())

	tables = []string{"record", "role"}
	err := cli.run([]string{"admin", "migrate", "up"})
	assert.True(t, errors.Is(err, database.ErrSchemaIncomplete))
	assert.EqualError(t, err, "missing occurrence, recurrence_rule: database schema incomplete")
}

func Test_commandLine_expand(t *testing.T) {
	cli, out := setup(t)

	runCLITests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"expand"}, wantErr: errHelp},
		{name: "missing kind", args: []string{"expand", "-first", "2024-01-01", "-until", "2024-02-01"}, wantErr: errHelp},
		{
			name:       "unknown kind",
			args:       []string{"expand", "-first", "2024-01-01", "-until", "2024-02-01", "-kind", "hourly"},
			wantErrStr: "\"hourly\": unknown kind",
		},
		{
			name:    "monthly on the 31st",
			args:    []string{"expand", "-first", "2024-01-31", "-until", "2024-05-01", "-kind", "monthly", "-day", "31"},
			wantOut: "2024-01-31\n2024-03-31\n2 occurrences\n",
		},
		{
			name:    "weekly",
			args:    []string{"expand", "-first", "2024-01-01", "-until", "2024-01-15", "-kind", "weekly", "-days", "mon, wed"},
			wantOut: "2024-01-01\n2024-01-03\n2024-01-08\n2024-01-10\n4 occurrences\n",
		},
		{
			name:    "annually every 2 years",
			args:    []string{"expand", "-first", "2024-01-01", "-until", "2029-01-01", "-kind", "annually", "-every", "2", "-months", "may", "-day", "1"},
			wantOut: "2024-05-01\n2026-05-01\n2028-05-01\n3 occurrences\n",
		},
	})

	// invalid rules
	for _, args := range [][]string{
		{"expand", "-first", "2024-01-01", "-until", "2024-01-15", "-kind", "weekly"},
		{"expand", "-first", "2024-02-01", "-until", "2024-01-01", "-kind", "daily"},
		{"expand", "-first", "01/01/2024", "-until", "2024-02-01", "-kind", "daily"},
	} {
		assert.Error(t, cli.run(append([]string{"admin"}, args...)), "%v", args)
	}

	cli.maxOccurrences = 3
	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "expand", "-first", "2024-01-01", "-until", "2025-01-01", "-kind", "daily"}))
	assert.Equal(t, "2024-01-01\n2024-01-02\n2024-01-03\ntruncated after 3 occurrences\n", out.String())
}

func Test_commandLine_rolesAndUsers(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	runCLITests(t, cli, out, []cliTest{
		{name: "addrole: no args", args: []string{"addrole"}, wantErr: errHelp},
		{
			name: "addrole: student",
			args: []string{"addrole", "-iam", "student", "-name", "Student", "-perms", "courses:read:member_only,users:read:self", "-views", "courses:card"},
		},
		{name: "addrole: teacher", args: []string{"addrole", "-iam", "teacher", "-name", "Teacher", "-perms", "users:read:student"}},
		{name: "addrole: duplicate", args: []string{"addrole", "-iam", "teacher", "-name", "Teacher 2"}, wantErr: user.ErrIAMNameExists},
		{
			name:       "addrole: unknown permission",
			args:       []string{"addrole", "-iam", "pilot", "-name", "Pilot", "-perms", "spaceships:launch"},
			wantErrStr: "\"spaceships:launch\": unknown permission",
		},
		{
			name:       "addrole: unknown view",
			args:       []string{"addrole", "-iam", "pilot", "-name", "Pilot", "-views", "courses:hologram"},
			wantErrStr: "\"courses:hologram\": unknown view",
		},
		{name: "adduser: no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "adduser: unknown role", args: []string{"adduser", "-name", "Ann", "-roles", "pilot"}, wantErrStr: user.ErrRoleNotFound.Error()},
		{name: "adduser", args: []string{"adduser", "-name", "Ann", "-email", "Ann@Test.cd", "-roles", "student"}},
	})
	assert.Error(t, cli.run([]string{"admin", "addrole", "-iam", "pi lot", "-name", "Pilot"}))

	users, err := cli.usrSvc.Query(ctx, nil, record.FindOptions{})
	require.NoError(t, err)
	require.Len(t, users, 1)
	ann := users[0]
	assert.Equal(t, "ann@test.cd", ann.Email)
	assert.True(t, ann.IsActive)

	runCLITests(t, cli, out, []cliTest{
		{name: "grant: no args", args: []string{"grant"}, wantErr: errHelp},
		{name: "grant: unknown role", args: []string{"grant", "-user", ann.ID, "-role", "pilot"}, wantErr: user.ErrRoleNotFound},
		{name: "grant: unknown user", args: []string{"grant", "-user", "ghost", "-role", "teacher"}, wantErr: user.ErrNotFound},
		{name: "grant", args: []string{"grant", "-user", ann.ID, "-role", "teacher"}, wantOut: fmt.Sprintf("user %s now holds [teacher student]\n", ann.ID)},
		{name: "grant: held", args: []string{"grant", "-user", ann.ID, "-role", "teacher"}, wantOut: fmt.Sprintf("user %s now holds [teacher student]\n", ann.ID)},
	})

	p, err := cli.usrSvc.Principal(ctx, ann.ID)
	require.NoError(t, err)
	home, ok := p.HomeRole()
	require.True(t, ok)
	assert.Equal(t, "student", home.IAMName)
	assert.True(t, p.Permissions().Has("users:read:student"))
}
