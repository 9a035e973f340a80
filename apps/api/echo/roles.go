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

type roleApi struct {
	svc      *user.Service
	validate *validator.Validate
}

func registerRoleAPI(g *echo.Group, deps ServerDeps) {
	api := roleApi{svc: deps.UserSvc, validate: deps.Validate}

	rg := g.Group("/roles")
	rg.GET("", api.query, permissionMiddleware(deps.Engine, record.Roles, access.Read))
	rg.POST("", api.create, permissionMiddleware(deps.Engine, record.Roles, access.Create))
}

func (api *roleApi) query(ctx echo.Context) error {
	roles, err := api.svc.QueryRoles(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying roles")
	}
	if roles == nil {
		roles = []access.Role{}
	}
	return ctx.JSON(http.StatusOK, roles)
}

func (api *roleApi) create(ctx echo.Context) error {
	var role access.Role
	if err := ctx.Bind(&role); err != nil {
		return errors.Wrap(err, "binding to Role")
	}
	if err := role.Validate(api.validate); err != nil {
		return err
	}
	role.ID = ""

	role, err := api.svc.CreateRole(ctx.Request().Context(), role)
	if err != nil {
		return errors.Wrap(err, "creating role")
	}
	return ctx.JSON(http.StatusCreated, role)
}
