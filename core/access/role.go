package access

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var ErrRoleNotHeld = errors.New("role not held by principal")

// Role is the unit of grant.
// IAMName is immutable once referenced by generated permission strings such as "users:create:<iamName>".
type Role struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name" validate:"required"`
	IAMName     string   `json:"iam_name" validate:"required,iamname"`
	Permissions []string `json:"permissions"`
	Views       []string `json:"views"`
}

func (r *Role) Validate(validate *validator.Validate) error {
	r.DisplayName = core.CleanString(r.DisplayName)
	r.IAMName = core.CleanString(r.IAMName, true /* lower */)
	r.Permissions = core.CleanStrings(r.Permissions)
	r.Views = core.CleanStrings(r.Views)
	return validate.Struct(r)
}

// Principal is the authenticated actor.
// Roles are the held roles in assignment order, the last one being the home role.
// Active is an impersonated role layered on top of them.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Roles       []Role `json:"roles"`
	Active      *Role  `json:"active,omitempty"`
}

// EffectiveRoles returns the impersonated role (if any) followed by the held roles.
func (p *Principal) EffectiveRoles() []Role {
	if p == nil {
		return nil
	}
	roles := make([]Role, 0, len(p.Roles)+1)
	if p.Active != nil {
		roles = append(roles, *p.Active)
	}
	return append(roles, p.Roles...)
}

// Permissions is the union of the permissions of every effective role.
func (p *Principal) Permissions() Set {
	set := make(Set)
	for _, r := range p.EffectiveRoles() {
		set.Add(r.Permissions...)
	}
	return set
}

// HeldPermissions is the union of the permissions of the held roles, impersonation excluded.
func (p *Principal) HeldPermissions() Set {
	set := make(Set)
	if p == nil {
		return set
	}
	for _, r := range p.Roles {
		set.Add(r.Permissions...)
	}
	return set
}

// Views is the union of the views of every effective role.
func (p *Principal) Views() Set {
	set := make(Set)
	for _, r := range p.EffectiveRoles() {
		set.Add(r.Views...)
	}
	return set
}

// ActiveRole is the role the principal is displayed as.
func (p *Principal) ActiveRole() (Role, bool) {
	if p == nil {
		return Role{}, false
	}
	if p.Active != nil {
		return *p.Active, true
	}
	if len(p.Roles) > 0 {
		return p.Roles[0], true
	}
	return Role{}, false
}

// HomeRole is the role the principal reverts to.
func (p *Principal) HomeRole() (Role, bool) {
	if p == nil || len(p.Roles) == 0 {
		return Role{}, false
	}
	return p.Roles[len(p.Roles)-1], true
}

func (p *Principal) IsImpersonating() bool {
	return p != nil && p.Active != nil
}

// Become impersonates role on top of the held roles.
func (p *Principal) Become(role Role) {
	r := role
	p.Active = &r
}

// Revert drops the impersonated role.
func (p *Principal) Revert() {
	p.Active = nil
}

// Holds reports whether one of the held roles (impersonation excluded) has the given IAM name.
func (p *Principal) Holds(iamName string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r.IAMName == iamName {
			return true
		}
	}
	return false
}

// IsAnonymous is true for a nil principal or one without identity.
func (p *Principal) IsAnonymous() bool {
	return p == nil || p.ID == ""
}
