package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/storage/database"
)

var (
	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("this command needs a postgres database")
)

type commandLine struct {
	migrator       *database.Migrator // nil with the inmem engine
	usrSvc         *user.Service
	validate       *validator.Validate
	maxOccurrences int
	out            io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, create NAME sql...)")
	fmt.Fprintln(cli.out, "  expand -first DATE -until DATE -kind KIND [-every N] [-days mon,wed] [-months jan,jun] [-day N] - print the dates of a recurrence rule")
	fmt.Fprintln(cli.out, "  addrole -iam IAM_NAME -name NAME [-perms P1,P2] [-views V1,V2] - create a role")
	fmt.Fprintln(cli.out, "  adduser -name NAME [-email EMAIL] [-roles R1,R2] - create a user, the last role being the home role")
	fmt.Fprintln(cli.out, "  grant -user ID -role IAM_NAME - give a role to a user")
}

func (cli *commandLine) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		if cli.migrator == nil {
			return errNoDatabase
		}
		return cli.migrate(args[2:])
	case "expand":
		return cli.expand(args[2:])
	case "addrole":
		return cli.addRole(args[2:])
	case "adduser":
		return cli.addUser(args[2:])
	case "grant":
		return cli.grant(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

// splitList splits "a, b,c" into its non blank items.
func splitList(s string) []string {
	var items []string
	for _, it := range strings.Split(s, ",") {
		if it = strings.TrimSpace(it); it != "" {
			items = append(items, it)
		}
	}
	return items
}
