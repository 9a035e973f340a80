package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/record"
	"github.com/trezcool/academia/core/user"
)

// userApi serves /v1/records/users: users are records whose access is scoped by their roles.
type userApi struct {
	engine   *access.Engine
	svc      *user.Service
	validate *validator.Validate
}

func (api *userApi) query(ctx echo.Context, p *access.Principal) error {
	d := api.engine.Evaluate(ctx.Request().Context(), p, record.Users, access.Read, access.Target{})
	if d.IsDenied() {
		return errHttpForbidden
	}
	users, err := api.svc.Query(ctx.Request().Context(), d.Filter(), bindFindOptions(ctx))
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context, p *access.Principal) error {
	c := ctx.Request().Context()
	id := ctx.Param("id")

	d := api.engine.Evaluate(c, p, record.Users, access.Read, access.Target{RecordID: id})
	if d.IsDenied() {
		return errHttpNotFound
	}
	usr, err := api.svc.Get(c, id)
	if err != nil {
		return errIfNotFound(err, "finding user by ID")
	}
	if !d.Permits(usr.Record()) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) create(ctx echo.Context, p *access.Principal) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// a grant is needed for every role of the new user
	proposed := record.Record{Type: record.Users, CreatedBy: p.ID, Roles: data.Roles}
	if !api.engine.Evaluate(ctx.Request().Context(), p, record.Users, access.Create, access.Target{Proposed: &proposed}).IsAllowed() {
		return errHttpForbidden
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data, p.ID)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) update(ctx echo.Context, p *access.Principal) error {
	c := ctx.Request().Context()
	id := ctx.Param("id")

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	target := access.Target{RecordID: id}
	if data.Roles != nil {
		target.Proposed = &record.Record{Type: record.Users, Roles: data.Roles}
	}
	d := api.engine.Evaluate(c, p, record.Users, access.Update, target)
	if d.IsDenied() {
		if api.engine.Can(c, p, record.Users, access.Read, access.Target{RecordID: id}) {
			return errHttpForbidden
		}
		return errHttpNotFound
	}
	// only a full grant may (de)activate or re-role a user, not the self exception
	if (data.IsActive != nil || data.Roles != nil) && id == p.ID && !p.Permissions().Has(access.Permission(record.Users, access.Update)) {
		return errHttpForbidden
	}

	usr, err := api.svc.Update(c, id, data, d.Filter())
	if err != nil {
		return errIfNotFound(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context, p *access.Principal) error {
	c := ctx.Request().Context()
	id := ctx.Param("id")

	// deleting yourself goes through users:delete:self like any other grant
	d := api.engine.Evaluate(c, p, record.Users, access.Delete, access.Target{RecordID: id})
	if d.IsDenied() {
		if api.engine.Can(c, p, record.Users, access.Read, access.Target{RecordID: id}) {
			return errHttpForbidden
		}
		return errHttpNotFound
	}
	if err := api.svc.Delete(c, id, d.Filter()); err != nil {
		return errIfNotFound(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}
