package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/record"
)

var (
	// errors
	ErrNotFound      = errors.New("user not found")
	ErrInactive      = errors.New("user is inactive")
	ErrRoleNotFound  = errors.New("role not found")
	ErrIAMNameExists = errors.New("a role with this IAM name already exists")
	ErrCannotBecome  = errors.New("role cannot be impersonated")
)

type (
	RoleRepository interface {
		CreateRole(ctx context.Context, role access.Role, exec ...core.DBExecutor) (access.Role, error)
		QueryRoles(ctx context.Context, exec ...core.DBExecutor) ([]access.Role, error)
		GetRole(ctx context.Context, iamName string, exec ...core.DBExecutor) (access.Role, error)
		// GetRoles returns the known roles among iamNames, in the same order.
		GetRoles(ctx context.Context, iamNames []string, exec ...core.DBExecutor) ([]access.Role, error)
		UpdateRole(ctx context.Context, role access.Role, exec ...core.DBExecutor) (access.Role, error)
		DeleteRole(ctx context.Context, iamName string, exec ...core.DBExecutor) error
	}

	Service struct {
		records record.Repository
		roles   RoleRepository
	}
)

func NewService(records record.Repository, roles RoleRepository) *Service {
	return &Service{records: records, roles: roles}
}

func (svc *Service) checkRoles(ctx context.Context, iamNames []string) error {
	if len(iamNames) == 0 {
		return nil
	}
	roles, err := svc.roles.GetRoles(ctx, iamNames)
	if err != nil {
		return err
	}
	if len(roles) != len(iamNames) {
		return core.NewValidationError(ErrRoleNotFound, core.FieldError{Field: "roles", Error: "invalid roles"})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser, createdBy string) (User, error) {
	if err := svc.checkRoles(ctx, nu.Roles); err != nil {
		return User{}, err
	}
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec, err := svc.records.Create(ctx, usr.Record())
	if err != nil {
		return User{}, err
	}
	return FromRecord(rec), nil
}

func (svc *Service) Get(ctx context.Context, id string) (User, error) {
	rec, err := svc.records.FindByID(ctx, record.Users, id)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return FromRecord(rec), nil
}

// Query lists the users matching filter, nil meaning all.
func (svc *Service) Query(ctx context.Context, filter *record.Filter, opts record.FindOptions) ([]User, error) {
	recs, err := svc.records.Find(ctx, record.Users, filter, opts)
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, FromRecord(rec))
	}
	return users, nil
}

// Update applies uu to the user id, provided it matches scope (nil meaning any user).
func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser, scope *record.Filter) (User, error) {
	orig, err := svc.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err = svc.checkRoles(ctx, uu.Roles); err != nil {
		return User{}, err
	}
	usr := uu.Apply(orig)
	usr.UpdatedAt = time.Now().UTC()
	if err = svc.save(ctx, usr, scope); err != nil {
		return User{}, err
	}
	return svc.Get(ctx, id)
}

func (svc *Service) Delete(ctx context.Context, id string, scope *record.Filter) error {
	n, err := svc.records.Delete(ctx, record.Users, narrow(scope, id))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (svc *Service) save(ctx context.Context, usr User, scope *record.Filter) error {
	n, err := svc.records.Update(ctx, record.Users, narrow(scope, usr.ID), usr.Record())
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func narrow(scope *record.Filter, id string) *record.Filter {
	if scope == nil {
		return record.ByID(id)
	}
	f := scope.Narrow(record.Eq(record.FieldID, id))
	return &f
}

// Principal loads the authenticated actor id with its roles resolved.
func (svc *Service) Principal(ctx context.Context, id string) (*access.Principal, error) {
	usr, err := svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !usr.IsActive {
		return nil, ErrInactive
	}
	roles, err := svc.roles.GetRoles(ctx, usr.Roles)
	if err != nil {
		return nil, errors.Wrap(err, "resolving roles")
	}

	p := &access.Principal{ID: usr.ID, DisplayName: usr.Name, Roles: roles}
	if usr.ActiveRole != "" {
		active, err := svc.roles.GetRole(ctx, usr.ActiveRole)
		switch {
		case err == nil:
			p.Become(active)
		case !errors.Is(err, ErrRoleNotFound):
			return nil, errors.Wrap(err, "resolving active role")
		}
	}
	return p, nil
}

// Become makes p impersonate the role iamName. Only roles whose users the held roles of p
// may update can be impersonated, so impersonations do not chain.
func (svc *Service) Become(ctx context.Context, p *access.Principal, iamName string) (*access.Principal, error) {
	perms := p.HeldPermissions()
	if !perms.Has(access.Permission(record.Users, access.Update)) && !perms.Has(access.RolePermission(access.Update, iamName)) {
		return nil, ErrCannotBecome
	}
	role, err := svc.roles.GetRole(ctx, iamName)
	if err != nil {
		return nil, err
	}
	if err = svc.setActiveRole(ctx, p.ID, iamName); err != nil {
		return nil, err
	}
	p.Become(role)
	return p, nil
}

// Revert drops the impersonated role of p.
func (svc *Service) Revert(ctx context.Context, p *access.Principal) (*access.Principal, error) {
	if err := svc.setActiveRole(ctx, p.ID, ""); err != nil {
		return nil, err
	}
	p.Revert()
	return p, nil
}

func (svc *Service) setActiveRole(ctx context.Context, id, iamName string) error {
	usr, err := svc.Get(ctx, id)
	if err != nil {
		return err
	}
	usr.ActiveRole = iamName
	usr.UpdatedAt = time.Now().UTC()
	return svc.save(ctx, usr, nil)
}

// Grant gives the role iamName to the user id. The home role stays last.
func (svc *Service) Grant(ctx context.Context, id, iamName string) (User, error) {
	if _, err := svc.roles.GetRole(ctx, iamName); err != nil {
		return User{}, err
	}
	usr, err := svc.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	for _, held := range usr.Roles {
		if held == iamName {
			return usr, nil
		}
	}
	if n := len(usr.Roles); n > 0 {
		usr.Roles = append(append(append([]string(nil), usr.Roles[:n-1]...), iamName), usr.Roles[n-1])
	} else {
		usr.Roles = []string{iamName}
	}
	usr.UpdatedAt = time.Now().UTC()
	if err = svc.save(ctx, usr, nil); err != nil {
		return User{}, err
	}
	return usr, nil
}

// Roles

func (svc *Service) CreateRole(ctx context.Context, role access.Role) (access.Role, error) {
	return svc.roles.CreateRole(ctx, role)
}

func (svc *Service) QueryRoles(ctx context.Context) ([]access.Role, error) {
	return svc.roles.QueryRoles(ctx)
}

func (svc *Service) GetRole(ctx context.Context, iamName string) (access.Role, error) {
	return svc.roles.GetRole(ctx, core.CleanString(iamName, true /* lower */))
}
