package testutil

import (
	"context"
	"testing"

	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/user"
)

func CreateRoles(t *testing.T, svc *user.Service, roles ...access.Role) {
	t.Helper()
	for _, role := range roles {
		if _, err := svc.CreateRole(context.Background(), role); err != nil {
			t.Fatalf("CreateRoles() failed: %v", err)
		}
	}
}

func CreateUser(t *testing.T, svc *user.Service, name string, isActive bool, roles ...string) user.User {
	t.Helper()
	ctx := context.Background()

	usr, err := svc.Create(ctx, user.NewUser{Name: name, Roles: roles}, "seed")
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if !isActive {
		usr, err = svc.Update(ctx, usr.ID, user.UpdateUser{IsActive: &isActive}, nil)
		if err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	return usr
}
