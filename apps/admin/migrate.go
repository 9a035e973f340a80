package main

import "fmt"

// commands after which the schema version may have moved
var versionChangingCommands = map[string]bool{
	"up": true, "up-by-one": true, "up-to": true,
	"down": true, "down-to": true, "redo": true, "reset": true,
}

func (cli *commandLine) migrate(args []string) error {
	command := args[0]
	if err := cli.migrator.Exec(command, args[1:]...); err != nil {
		return err
	}
	if !versionChangingCommands[command] {
		return nil
	}

	if command == "up" {
		if err := cli.migrator.CheckSchema(); err != nil {
			return err
		}
	}
	version, err := cli.migrator.CurrentVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "database version %d\n", version)
	return nil
}
