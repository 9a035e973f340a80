package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/record"
)

// permissionMiddleware rejects principals the engine denies outright on res/op.
// Handlers still apply the decision to the records they touch.
func permissionMiddleware(engine *access.Engine, res record.Resource, op access.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, err := getContextPrincipal(ctx)
			if err != nil {
				return err
			}
			if !engine.Can(ctx.Request().Context(), p, res, op, access.Target{}) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
