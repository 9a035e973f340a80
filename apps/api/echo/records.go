package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/record"
	"github.com/trezcool/academia/core/user"
)

type recordApi struct {
	engine  *access.Engine
	records record.Repository
	users   userApi
}

func registerRecordAPI(g *echo.Group, deps ServerDeps) {
	api := recordApi{
		engine:  deps.Engine,
		records: deps.Records,
		users:   userApi{engine: deps.Engine, svc: deps.UserSvc, validate: deps.Validate},
	}

	rg := g.Group("/records/:type", resourceMiddleware())
	rg.GET("", api.query)
	rg.POST("", api.create)
	rg.GET("/:id", api.retrieve)
	rg.PUT("/:id", api.update)
	rg.DELETE("/:id", api.destroy)
}

const contextResourceKey = "resource"

// resourceMiddleware resolves the :type param. Roles and recurrences have their own endpoints.
func resourceMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			res := record.Resource(ctx.Param("type"))
			if !res.IsKnown() || res == record.Roles || res == record.Recurrences {
				return errHttpNotFound
			}
			ctx.Set(contextResourceKey, res)
			return next(ctx)
		}
	}
}

// RecordRequest is the writable part of a record.
type RecordRequest struct {
	Course  string                 `json:"course"`
	Author  string                 `json:"author"`
	Grader  string                 `json:"grader"`
	Members []string               `json:"members"`
	Data    map[string]interface{} `json:"data"`
}

func (rr RecordRequest) Record(res record.Resource) record.Record {
	return record.Record{
		Type:    res,
		Course:  core.CleanString(rr.Course),
		Author:  core.CleanString(rr.Author),
		Grader:  core.CleanString(rr.Grader),
		Members: core.CleanStrings(rr.Members),
		Data:    rr.Data,
	}
}

// prepare returns the acting principal and the resource of the request.
func (api *recordApi) prepare(ctx echo.Context) (*access.Principal, record.Resource, error) {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return nil, "", err
	}
	res, _ := ctx.Get(contextResourceKey).(record.Resource)
	return p, res, nil
}

// fetch loads the record :id, hiding what the principal cannot read.
func (api *recordApi) fetch(ctx echo.Context, p *access.Principal, res record.Resource) (record.Record, error) {
	c := ctx.Request().Context()
	id := ctx.Param("id")

	read := api.engine.Evaluate(c, p, res, access.Read, access.Target{RecordID: id})
	if read.IsDenied() {
		return record.Record{}, errHttpNotFound
	}
	rec, err := api.records.FindByID(c, res, id)
	if err != nil {
		return record.Record{}, errors.Wrap(err, "finding record by ID")
	}
	if !read.Permits(rec) {
		return record.Record{}, errHttpNotFound
	}
	return rec, nil
}

func (api *recordApi) query(ctx echo.Context) error {
	p, res, err := api.prepare(ctx)
	if err != nil {
		return err
	}
	if res == record.Users {
		return api.users.query(ctx, p)
	}

	d := api.engine.Evaluate(ctx.Request().Context(), p, res, access.Read, access.Target{})
	if d.IsDenied() {
		return errHttpForbidden
	}
	recs, err := api.records.Find(ctx.Request().Context(), res, d.Filter(), bindFindOptions(ctx))
	if err != nil {
		return errors.Wrap(err, "querying records")
	}
	if recs == nil {
		recs = []record.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *recordApi) retrieve(ctx echo.Context) error {
	p, res, err := api.prepare(ctx)
	if err != nil {
		return err
	}
	if res == record.Users {
		return api.users.retrieve(ctx, p)
	}

	rec, err := api.fetch(ctx, p, res)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *recordApi) create(ctx echo.Context) error {
	p, res, err := api.prepare(ctx)
	if err != nil {
		return err
	}
	if res == record.Users {
		return api.users.create(ctx, p)
	}

	var data RecordRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordRequest")
	}
	rec := data.Record(res)
	rec.CreatedBy = p.ID

	d := api.engine.Evaluate(ctx.Request().Context(), p, res, access.Create, access.Target{Proposed: &rec})
	if !d.IsAllowed() {
		return errHttpForbidden
	}

	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec, err = api.records.Create(ctx.Request().Context(), rec)
	if err != nil {
		return errors.Wrap(err, "creating record")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *recordApi) update(ctx echo.Context) error {
	p, res, err := api.prepare(ctx)
	if err != nil {
		return err
	}
	if res == record.Users {
		return api.users.update(ctx, p)
	}

	existing, err := api.fetch(ctx, p, res)
	if err != nil {
		return err
	}
	var data RecordRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordRequest")
	}
	merged := existing.Merge(data.Record(res))
	merged.UpdatedAt = time.Now().UTC()

	c := ctx.Request().Context()
	d := api.engine.Evaluate(c, p, res, access.Update, access.Target{RecordID: existing.ID, Existing: &existing, Proposed: &merged})
	if !d.IsAllowed() {
		return errHttpForbidden
	}
	// moving a record to another course needs the right to create it there
	if merged.Course != existing.Course && !api.engine.Evaluate(c, p, res, access.Create, access.Target{Proposed: &merged}).IsAllowed() {
		return errHttpForbidden
	}

	n, err := api.records.Update(c, res, record.ByID(existing.ID), merged)
	if err != nil {
		return errors.Wrap(err, "updating record")
	}
	if n == 0 {
		return errHttpNotFound
	}
	rec, err := api.records.FindByID(c, res, existing.ID)
	if err != nil {
		return errors.Wrap(err, "finding record by ID")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *recordApi) destroy(ctx echo.Context) error {
	p, res, err := api.prepare(ctx)
	if err != nil {
		return err
	}
	if res == record.Users {
		return api.users.destroy(ctx, p)
	}

	existing, err := api.fetch(ctx, p, res)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()
	d := api.engine.Evaluate(c, p, res, access.Delete, access.Target{RecordID: existing.ID, Existing: &existing})
	if !d.IsAllowed() {
		return errHttpForbidden
	}
	if _, err = api.records.Delete(c, res, record.ByID(existing.ID)); err != nil {
		return errors.Wrap(err, "deleting record")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// errIfNotFound maps the not found errors of the user service to a 404.
func errIfNotFound(err error, msg string) error {
	switch errors.Cause(err) {
	case user.ErrNotFound, record.ErrNotFound:
		return errHttpNotFound
	}
	return errors.Wrap(err, msg)
}
