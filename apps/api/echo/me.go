package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/record"
	"github.com/trezcool/academia/core/user"
)

type meApi struct {
	svc *user.Service
}

func registerMeAPI(g *echo.Group, deps ServerDeps) {
	api := meApi{svc: deps.UserSvc}

	mg := g.Group("/me")
	mg.GET("", api.retrieve)
	mg.POST("/become/:role", api.become)
	mg.DELETE("/become", api.revert)
}

type MeResponse struct {
	Principal   *access.Principal                   `json:"principal"`
	Permissions []string                            `json:"permissions"`
	Views       []string                            `json:"views"`
	ViewModes   map[record.Resource]access.ViewMode `json:"view_modes"`
}

func newMeResponse(p *access.Principal) MeResponse {
	views := access.ViewSet(p)
	return MeResponse{
		Principal:   p,
		Permissions: p.Permissions().Slice(),
		Views:       views.Slice(),
		ViewModes:   access.ViewModes(views),
	}
}

func (api *meApi) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newMeResponse(p))
}

func (api *meApi) become(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	p, err = api.svc.Become(ctx.Request().Context(), p, ctx.Param("role"))
	if err != nil {
		return errors.Wrap(err, "becoming role")
	}
	return ctx.JSON(http.StatusOK, newMeResponse(p))
}

func (api *meApi) revert(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	p, err = api.svc.Revert(ctx.Request().Context(), p)
	if err != nil {
		return errors.Wrap(err, "reverting role")
	}
	return ctx.JSON(http.StatusOK, newMeResponse(p))
}
