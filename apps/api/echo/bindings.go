package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
)

const (
	orderingParam = "ordering"
	limitParam    = "limit"
	offsetParam   = "offset"
	maxPageSize   = 500
)

// bindFindOptions reads "?ordering=-created_at,id&limit=20&offset=40".
// Unknown ordering fields and malformed numbers are ignored.
func bindFindOptions(ctx echo.Context) record.FindOptions {
	opts := record.FindOptions{
		Ordering: core.ParseOrderings(ctx.QueryParam(orderingParam), record.SortableFields...),
	}
	if n, err := strconv.Atoi(ctx.QueryParam(limitParam)); err == nil && n > 0 {
		if n > maxPageSize {
			n = maxPageSize
		}
		opts.Limit = n
	}
	if n, err := strconv.Atoi(ctx.QueryParam(offsetParam)); err == nil && n > 0 {
		opts.Offset = n
	}
	return opts
}
