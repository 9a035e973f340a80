package main

import (
	"context"
	"fmt"

	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/user"
)

// addRole creates a role. Permissions and views outside the vocabulary are rejected.
func (cli *commandLine) addRole(args []string) error {
	fs := cli.flagSet("addrole")
	iamName := fs.String("iam", "", "The immutable IAM name, e.g. teacher.")
	name := fs.String("name", "", "The display name.")
	perms := fs.String("perms", "", "Comma separated permissions, e.g. courses:read:member_only.")
	views := fs.String("views", "", "Comma separated views, e.g. courses:table.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *iamName == "" || *name == "" {
		fs.Usage()
		return errHelp
	}

	ctx := context.Background()
	role := access.Role{
		DisplayName: *name,
		IAMName:     *iamName,
		Permissions: splitList(*perms),
		Views:       splitList(*views),
	}
	if err := role.Validate(cli.validate); err != nil {
		return err
	}

	known, err := cli.usrSvc.QueryRoles(ctx)
	if err != nil {
		return err
	}
	vocabPerms, vocabViews := access.Vocabulary(access.DefaultRegistry(), append(known, role))
	permSet, viewSet := access.NewSet(vocabPerms...), access.NewSet(vocabViews...)
	for _, p := range role.Permissions {
		if !permSet.Has(p) {
			return fmt.Errorf("%q: unknown permission", p)
		}
	}
	for _, v := range role.Views {
		if !viewSet.Has(v) {
			return fmt.Errorf("%q: unknown view", v)
		}
	}

	role, err = cli.usrSvc.CreateRole(ctx, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "role %s created: %s\n", role.IAMName, role.ID)
	return nil
}

// addUser creates an active user.
func (cli *commandLine) addUser(args []string) error {
	fs := cli.flagSet("adduser")
	name := fs.String("name", "", "The user's name.")
	email := fs.String("email", "", "The user's email.")
	roles := fs.String("roles", "", "Comma separated IAM names, the last one being the home role.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *name == "" {
		fs.Usage()
		return errHelp
	}

	nu := user.NewUser{Name: *name, Email: *email, Roles: splitList(*roles)}
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(context.Background(), nu, "admin")
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %s created: %s\n", usr.Name, usr.ID)
	return nil
}
