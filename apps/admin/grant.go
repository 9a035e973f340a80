package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) grant(args []string) error {
	fs := cli.flagSet("grant")
	userID := fs.String("user", "", "The user's ID.")
	iamName := fs.String("role", "", "The IAM name of the role to grant.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *userID == "" || *iamName == "" {
		fs.Usage()
		return errHelp
	}

	usr, err := cli.usrSvc.Grant(context.Background(), *userID, *iamName)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %s now holds %v\n", usr.ID, usr.Roles)
	return nil
}
