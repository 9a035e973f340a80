package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
	"github.com/trezcool/academia/core/recurrence"
)

type ruleRow struct {
	ID              string           `boil:"id"`
	Course          string           `boil:"course"`
	Title           string           `boil:"title"`
	CreatedBy       string           `boil:"created_by"`
	Date            time.Time        `boil:"date"`
	StartTime       string           `boil:"start_time"`
	EndTime         string           `boil:"end_time"`
	TerminationDate null.Time        `boil:"termination_date"`
	IsDaily         bool             `boil:"is_daily"`
	IsWeekly        bool             `boil:"is_weekly"`
	IsMonthly       bool             `boil:"is_monthly"`
	IsAnnually      bool             `boil:"is_annually"`
	EveryNDays      int              `boil:"every_n_days"`
	EveryNWeeks     int              `boil:"every_n_weeks"`
	EveryNMonths    int              `boil:"every_n_months"`
	EveryNYears     int              `boil:"every_n_years"`
	Weekdays        types.Int64Array `boil:"weekdays"`
	Months          types.Int64Array `boil:"months"`
	DayOfMonth      int              `boil:"day_of_month"`
	CreatedAt       time.Time        `boil:"created_at"`
	UpdatedAt       time.Time        `boil:"updated_at"`
}

type occurrenceRow struct {
	ID        string    `boil:"id"`
	RuleID    string    `boil:"recurrence_rule_id"`
	Course    string    `boil:"course"`
	Title     string    `boil:"title"`
	Date      time.Time `boil:"date"`
	StartTime string    `boil:"start_time"`
	EndTime   string    `boil:"end_time"`
	CreatedBy string    `boil:"created_by"`
	CreatedAt time.Time `boil:"created_at"`
}

type recurrenceRepository struct {
	exec   core.DBExecutor
	logger core.Logger
}

var _ recurrence.Repository = (*recurrenceRepository)(nil) // interface compliance check

func NewRecurrenceRepository(exec core.DBExecutor, logger core.Logger) *recurrenceRepository {
	return &recurrenceRepository{exec: exec, logger: logger}
}

func (repo recurrenceRepository) boil(rule recurrence.Rule) *ruleRow {
	f := recurrence.FlagsOf(rule.Pattern)
	row := &ruleRow{
		ID:           rule.ID,
		Course:       rule.Course,
		Title:        rule.Title,
		CreatedBy:    rule.CreatedBy,
		Date:         recurrence.DateOf(rule.First.Date),
		StartTime:    rule.First.StartTime,
		EndTime:      rule.First.EndTime,
		IsDaily:      f.IsDaily,
		IsWeekly:     f.IsWeekly,
		IsMonthly:    f.IsMonthly,
		IsAnnually:   f.IsAnnually,
		EveryNDays:   f.EveryNDays,
		EveryNWeeks:  f.EveryNWeeks,
		EveryNMonths: f.EveryNMonths,
		EveryNYears:  f.EveryNYears,
		Weekdays:     types.Int64Array{},
		Months:       types.Int64Array{},
		DayOfMonth:   f.DayOfMonth,
		CreatedAt:    rule.CreatedAt.UTC(),
		UpdatedAt:    rule.UpdatedAt.UTC(),
	}
	if rule.Until != nil {
		row.TerminationDate = null.TimeFrom(recurrence.DateOf(*rule.Until))
	}
	for _, d := range f.Weekdays {
		row.Weekdays = append(row.Weekdays, int64(d))
	}
	for _, m := range f.Months {
		row.Months = append(row.Months, int64(m))
	}
	return row
}

func (repo recurrenceRepository) unboil(row *ruleRow) recurrence.Rule {
	f := recurrence.Flags{
		IsDaily:      row.IsDaily,
		IsWeekly:     row.IsWeekly,
		IsMonthly:    row.IsMonthly,
		IsAnnually:   row.IsAnnually,
		EveryNDays:   row.EveryNDays,
		EveryNWeeks:  row.EveryNWeeks,
		EveryNMonths: row.EveryNMonths,
		EveryNYears:  row.EveryNYears,
		DayOfMonth:   row.DayOfMonth,
	}
	for _, d := range row.Weekdays {
		f.Weekdays = append(f.Weekdays, time.Weekday(d))
	}
	for _, m := range row.Months {
		f.Months = append(f.Months, time.Month(m))
	}
	pattern, _ := recurrence.PatternFromFlags(row.ID, f, repo.logger)

	rule := recurrence.Rule{
		ID:        row.ID,
		Course:    row.Course,
		Title:     row.Title,
		CreatedBy: row.CreatedBy,
		First: recurrence.Slot{
			Date:      recurrence.DateOf(row.Date),
			StartTime: row.StartTime,
			EndTime:   row.EndTime,
		},
		Pattern:   pattern,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if row.TerminationDate.Valid {
		until := recurrence.DateOf(row.TerminationDate.Time)
		rule.Until = &until
	}
	return rule
}

func (repo recurrenceRepository) unboilOccurrence(row *occurrenceRow) recurrence.Occurrence {
	return recurrence.Occurrence{
		ID:        row.ID,
		RuleID:    row.RuleID,
		Course:    row.Course,
		Title:     row.Title,
		Date:      recurrence.DateOf(row.Date),
		StartTime: row.StartTime,
		EndTime:   row.EndTime,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to recurrence.ErrRuleNotFound
func (repo recurrenceRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return recurrence.ErrRuleNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo recurrenceRepository) CreateRule(ctx context.Context, rule recurrence.Rule, exec ...core.DBExecutor) (recurrence.Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	row := repo.boil(rule)
	stmt := fmt.Sprintf(
		`INSERT INTO %q ("id", "course", "title", "created_by", "date", "start_time", "end_time", "termination_date", `+
			`"is_daily", "is_weekly", "is_monthly", "is_annually", "every_n_days", "every_n_weeks", "every_n_months", "every_n_years", `+
			`"weekdays", "months", "day_of_month", "created_at", "updated_at") VALUES %s`,
		TableNames.RecurrenceRule, placeholders(1, 21))
	_, err := queries.Raw(stmt,
		row.ID, row.Course, row.Title, row.CreatedBy, row.Date, row.StartTime, row.EndTime, row.TerminationDate,
		row.IsDaily, row.IsWeekly, row.IsMonthly, row.IsAnnually, row.EveryNDays, row.EveryNWeeks, row.EveryNMonths, row.EveryNYears,
		row.Weekdays, row.Months, row.DayOfMonth, row.CreatedAt, row.UpdatedAt,
	).ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		return recurrence.Rule{}, errors.Wrap(err, "inserting recurrence rule")
	}
	return repo.unboil(row), nil
}

func (repo recurrenceRepository) getRule(ctx context.Context, id string, lock bool, exec []core.DBExecutor) (recurrence.Rule, error) {
	mods := []qm.QueryMod{from(TableNames.RecurrenceRule), qm.Where(`"id" = ?`, id), qm.Limit(1)}
	if lock {
		mods = append(mods, qm.For("UPDATE"))
	}
	var row ruleRow
	if err := newQuery(mods...).Bind(ctx, getExec(repo.exec, exec), &row); err != nil {
		return recurrence.Rule{}, repo.trapNoRowsErr(err, "finding recurrence rule")
	}
	return repo.unboil(&row), nil
}

func (repo recurrenceRepository) GetRule(ctx context.Context, id string, exec ...core.DBExecutor) (recurrence.Rule, error) {
	return repo.getRule(ctx, id, false, exec)
}

func (repo recurrenceRepository) LockRule(ctx context.Context, id string, exec ...core.DBExecutor) (recurrence.Rule, error) {
	return repo.getRule(ctx, id, true, exec)
}

func (repo recurrenceRepository) QueryRules(ctx context.Context, filter *record.Filter, exec ...core.DBExecutor) ([]recurrence.Rule, error) {
	mods := appendMods([]qm.QueryMod{from(TableNames.RecurrenceRule)}, filterMod(filter), qm.OrderBy(`"created_at" ASC, "id" ASC`))
	var rows []*ruleRow
	if err := newQuery(mods...).Bind(ctx, getExec(repo.exec, exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying recurrence rules")
	}
	rules := make([]recurrence.Rule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, repo.unboil(row))
	}
	return rules, nil
}

func (repo recurrenceRepository) UpdateRule(ctx context.Context, rule recurrence.Rule, exec ...core.DBExecutor) (recurrence.Rule, error) {
	row := repo.boil(rule)
	q := newQuery(from(TableNames.RecurrenceRule), qm.Where(`"id" = ?`, rule.ID))
	queries.SetUpdate(q, map[string]interface{}{
		"course":           row.Course,
		"title":            row.Title,
		"date":             row.Date,
		"start_time":       row.StartTime,
		"end_time":         row.EndTime,
		"termination_date": row.TerminationDate,
		"is_daily":         row.IsDaily,
		"is_weekly":        row.IsWeekly,
		"is_monthly":       row.IsMonthly,
		"is_annually":      row.IsAnnually,
		"every_n_days":     row.EveryNDays,
		"every_n_weeks":    row.EveryNWeeks,
		"every_n_months":   row.EveryNMonths,
		"every_n_years":    row.EveryNYears,
		"weekdays":         row.Weekdays,
		"months":           row.Months,
		"day_of_month":     row.DayOfMonth,
		"updated_at":       row.UpdatedAt,
	})
	res, err := q.ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		return recurrence.Rule{}, errors.Wrap(err, "updating recurrence rule")
	}
	if cnt, _ := res.RowsAffected(); cnt == 0 {
		return recurrence.Rule{}, recurrence.ErrRuleNotFound
	}
	return repo.unboil(row), nil
}

func (repo recurrenceRepository) DeleteRule(ctx context.Context, id string, exec ...core.DBExecutor) error {
	q := newQuery(from(TableNames.RecurrenceRule), qm.Where(`"id" = ?`, id))
	queries.SetDelete(q)
	res, err := q.ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		return errors.Wrap(err, "deleting recurrence rule")
	}
	if cnt, _ := res.RowsAffected(); cnt == 0 {
		return recurrence.ErrRuleNotFound
	}
	return nil
}

func (repo recurrenceRepository) QueryOccurrences(ctx context.Context, ruleID string, exec ...core.DBExecutor) ([]recurrence.Occurrence, error) {
	q := newQuery(
		from(TableNames.Occurrence),
		qm.Where(`"recurrence_rule_id" = ?`, ruleID),
		qm.OrderBy(`"date" ASC, "id" ASC`),
	)
	var rows []*occurrenceRow
	if err := q.Bind(ctx, getExec(repo.exec, exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying occurrences")
	}
	occs := make([]recurrence.Occurrence, 0, len(rows))
	for _, row := range rows {
		occs = append(occs, repo.unboilOccurrence(row))
	}
	return occs, nil
}

func (repo recurrenceRepository) DeleteOccurrencesFrom(ctx context.Context, ruleID string, since time.Time, exec ...core.DBExecutor) (int, error) {
	q := newQuery(
		from(TableNames.Occurrence),
		qm.Where(`"recurrence_rule_id" = ?`, ruleID),
		qm.Where(`"date" >= ?`, recurrence.DateOf(since)),
	)
	queries.SetDelete(q)
	res, err := q.ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		return 0, errors.Wrap(err, "deleting occurrences")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting deleted occurrences")
	}
	return int(cnt), nil
}

// occurrenceBatch bounds the rows of one INSERT.
const occurrenceBatch = 500

func (repo recurrenceRepository) CreateOccurrences(ctx context.Context, occs []recurrence.Occurrence, exec ...core.DBExecutor) ([]recurrence.Occurrence, error) {
	const cols = 9
	now := time.Now().UTC()
	created := make([]recurrence.Occurrence, 0, len(occs))

	for start := 0; start < len(occs); start += occurrenceBatch {
		end := start + occurrenceBatch
		if end > len(occs) {
			end = len(occs)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*cols)
		for i, o := range occs[start:end] {
			if o.ID == "" {
				o.ID = uuid.New().String()
			}
			o.Date = recurrence.DateOf(o.Date)
			o.CreatedAt = now
			values = append(values, placeholders(i*cols+1, cols))
			args = append(args, o.ID, o.RuleID, o.Course, o.Title, o.Date, o.StartTime, o.EndTime, o.CreatedBy, o.CreatedAt)
			created = append(created, o)
		}

		stmt := fmt.Sprintf(
			`INSERT INTO %q ("id", "recurrence_rule_id", "course", "title", "date", "start_time", "end_time", "created_by", "created_at") VALUES %s`,
			TableNames.Occurrence, strings.Join(values, ", "))
		if _, err := queries.Raw(stmt, args...).ExecContext(ctx, getExec(repo.exec, exec)); err != nil {
			return nil, errors.Wrap(err, "inserting occurrences")
		}
	}
	return created, nil
}
