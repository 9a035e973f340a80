package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/record"
	"github.com/trezcool/academia/core/recurrence"
)

type recurrenceApi struct {
	engine   *access.Engine
	svc      *recurrence.Service
	validate *validator.Validate
}

func registerRecurrenceAPI(g *echo.Group, deps ServerDeps) {
	api := recurrenceApi{engine: deps.Engine, svc: deps.RecurrenceSvc, validate: deps.Validate}

	rg := g.Group("/recurrences")
	rg.POST("/preview", api.preview)
	rg.POST("", api.create)
	rg.GET("", api.query)

	dg := rg.Group("/:id")
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.GET("/occurrences", api.occurrences)
}

type (
	PreviewResponse struct {
		Dates     []string `json:"dates"`
		Truncated bool     `json:"truncated"`
	}

	RuleResponse struct {
		Rule    recurrence.Rule `json:"rule"`
		Deleted int             `json:"deleted"`
		Created int             `json:"created"`
		// Truncated is set when the expansion hit the occurrence cap.
		Truncated bool `json:"truncated"`
	}
)

func newRuleResponse(rule recurrence.Rule, res recurrence.Result) RuleResponse {
	return RuleResponse{Rule: rule, Deleted: res.Deleted, Created: len(res.Created), Truncated: res.Truncated}
}

// bindRule binds and validates a RuleInput authored by p.
func (api *recurrenceApi) bindRule(ctx echo.Context, p *access.Principal) (recurrence.Rule, error) {
	var data recurrence.RuleInput
	if err := ctx.Bind(&data); err != nil {
		return recurrence.Rule{}, errors.Wrap(err, "binding to RuleInput")
	}
	if err := data.Validate(api.validate); err != nil {
		return recurrence.Rule{}, err
	}
	return data.Rule(p.ID)
}

// fetch loads the rule :id, hiding what the principal cannot read.
func (api *recurrenceApi) fetch(ctx echo.Context, p *access.Principal) (recurrence.Rule, error) {
	c := ctx.Request().Context()
	id := ctx.Param("id")

	read := api.engine.Evaluate(c, p, record.Recurrences, access.Read, access.Target{RecordID: id})
	if read.IsDenied() {
		return recurrence.Rule{}, errHttpNotFound
	}
	rule, err := api.svc.Get(c, id)
	if err != nil {
		return recurrence.Rule{}, errors.Wrap(err, "finding rule by ID")
	}
	if !read.Permits(rule.Record()) {
		return recurrence.Rule{}, errHttpNotFound
	}
	return rule, nil
}

func (api *recurrenceApi) preview(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	rule, err := api.bindRule(ctx, p)
	if err != nil {
		return err
	}

	dates, truncated := api.svc.Preview(rule)
	resp := PreviewResponse{Dates: make([]string, 0, len(dates)), Truncated: truncated}
	for _, d := range dates {
		resp.Dates = append(resp.Dates, d.Format(recurrence.DateLayout))
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *recurrenceApi) query(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	d := api.engine.Evaluate(ctx.Request().Context(), p, record.Recurrences, access.Read, access.Target{})
	if d.IsDenied() {
		return errHttpForbidden
	}
	rules, err := api.svc.Query(ctx.Request().Context(), d.Filter())
	if err != nil {
		return errors.Wrap(err, "querying rules")
	}
	if rules == nil {
		rules = []recurrence.Rule{}
	}
	return ctx.JSON(http.StatusOK, rules)
}

func (api *recurrenceApi) create(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	rule, err := api.bindRule(ctx, p)
	if err != nil {
		return err
	}

	proposed := rule.Record()
	if !api.engine.Evaluate(ctx.Request().Context(), p, record.Recurrences, access.Create, access.Target{Proposed: &proposed}).IsAllowed() {
		return errHttpForbidden
	}

	created, res, err := api.svc.Create(ctx.Request().Context(), rule)
	if err != nil {
		return errors.Wrap(err, "creating rule")
	}
	return ctx.JSON(http.StatusCreated, newRuleResponse(created, res))
}

func (api *recurrenceApi) update(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	existing, err := api.fetch(ctx, p)
	if err != nil {
		return err
	}
	rule, err := api.bindRule(ctx, p)
	if err != nil {
		return err
	}

	c := ctx.Request().Context()
	existingRec := existing.Record()
	if !api.engine.Evaluate(c, p, record.Recurrences, access.Update, access.Target{RecordID: existing.ID, Existing: &existingRec}).IsAllowed() {
		return errHttpForbidden
	}
	if rule.Course != existing.Course {
		proposed := rule.Record()
		if !api.engine.Evaluate(c, p, record.Recurrences, access.Create, access.Target{Proposed: &proposed}).IsAllowed() {
			return errHttpForbidden
		}
	}

	updated, res, err := api.svc.Update(c, existing.ID, rule)
	if err != nil {
		return errors.Wrap(err, "updating rule")
	}
	return ctx.JSON(http.StatusOK, newRuleResponse(updated, res))
}

func (api *recurrenceApi) destroy(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	existing, err := api.fetch(ctx, p)
	if err != nil {
		return err
	}
	existingRec := existing.Record()
	if !api.engine.Evaluate(ctx.Request().Context(), p, record.Recurrences, access.Delete, access.Target{RecordID: existing.ID, Existing: &existingRec}).IsAllowed() {
		return errHttpForbidden
	}
	if err = api.svc.Delete(ctx.Request().Context(), existing.ID); err != nil {
		return errors.Wrap(err, "deleting rule")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type OccurrenceResponse struct {
	recurrence.Occurrence
	Date string `json:"date"`
}

func (api *recurrenceApi) occurrences(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	rule, err := api.fetch(ctx, p)
	if err != nil {
		return err
	}
	occs, err := api.svc.Occurrences(ctx.Request().Context(), rule.ID)
	if err != nil {
		return errors.Wrap(err, "querying occurrences")
	}

	resp := make([]OccurrenceResponse, 0, len(occs))
	for _, o := range occs {
		resp = append(resp, OccurrenceResponse{Occurrence: o, Date: o.Date.Format(recurrence.DateLayout)})
	}
	return ctx.JSON(http.StatusOK, resp)
}
