package user

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
)

// User is a record of the users resource. Roles hold IAM names, the last one being the home role.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsActive   bool      `json:"is_active"`
	Roles      []string  `json:"roles"`
	ActiveRole string    `json:"active_role,omitempty"` // impersonated role
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

func (u User) Record() record.Record {
	return record.Record{
		ID:         u.ID,
		Type:       record.Users,
		CreatedBy:  u.CreatedBy,
		Roles:      u.Roles,
		ActiveRole: u.ActiveRole,
		Data: map[string]interface{}{
			"name":      u.Name,
			"email":     u.Email,
			"is_active": u.IsActive,
		},
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func FromRecord(rec record.Record) User {
	usr := User{
		ID:         rec.ID,
		CreatedBy:  rec.CreatedBy,
		Roles:      rec.Roles,
		ActiveRole: rec.ActiveRole,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	usr.Name, _ = rec.Data["name"].(string)
	usr.Email, _ = rec.Data["email"].(string)
	usr.IsActive, _ = rec.Data["is_active"].(bool)
	return usr
}

// HomeRole is the role to revert to after impersonation.
func (u User) HomeRole() string {
	if len(u.Roles) == 0 {
		return ""
	}
	return u.Roles[len(u.Roles)-1]
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name  string   `json:"name" validate:"required"`
	Email string   `json:"email" validate:"omitempty,email"`
	Roles []string `json:"roles" validate:"omitempty,dive,iamname"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Roles = core.CleanStrings(nu.Roles, true /* lower */)
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name     string   `json:"name"`
	Email    string   `json:"email" validate:"omitempty,email"`
	IsActive *bool    `json:"is_active"`
	Roles    []string `json:"roles" validate:"omitempty,dive,iamname"`
}

func (uu *UpdateUser) Validate(validate *validator.Validate) error {
	uu.Name = core.CleanString(uu.Name)
	uu.Email = core.CleanString(uu.Email, true /* lower */)
	uu.Roles = core.CleanStrings(uu.Roles, true /* lower */)
	return validate.Struct(uu)
}

// Apply returns orig with the set fields of uu.
func (uu UpdateUser) Apply(orig User) User {
	usr := orig
	if uu.Name != "" {
		usr.Name = uu.Name
	}
	if uu.Email != "" {
		usr.Email = uu.Email
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	return usr
}
