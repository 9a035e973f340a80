package recurrence_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/recurrence"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
)

func day(s string) time.Time {
	d, err := recurrence.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func occurrenceDates(occs []recurrence.Occurrence) []string {
	ds := make([]string, 0, len(occs))
	for _, o := range occs {
		ds = append(ds, o.Date.Format(recurrence.DateLayout))
	}
	return ds
}

func weeklyRule(first, until string, days ...time.Weekday) recurrence.Rule {
	u := day(until)
	return recurrence.Rule{
		Course:    "c1",
		Title:     "Lab",
		CreatedBy: "u1",
		First:     recurrence.Slot{Date: day(first), StartTime: "09:00", EndTime: "11:00"},
		Until:     &u,
		Pattern:   recurrence.Weekly{Every: 1, Days: days},
	}
}

func newService() (*recurrence.Service, recurrence.Repository) {
	repo := inmemdb.NewRecurrenceRepository(inmemdb.Open())
	return recurrence.NewService(nil, repo, nil, 0), repo
}

func TestService_Create(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()

	created, res, err := svc.Create(ctx, weeklyRule("2024-01-01", "2024-01-15", time.Monday, time.Wednesday))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 0, res.Deleted)
	assert.Len(t, res.Created, 4)

	occs, err := repo.QueryOccurrences(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-03", "2024-01-08", "2024-01-10"}, occurrenceDates(occs))
	for _, o := range occs {
		assert.Equal(t, created.ID, o.RuleID)
		assert.Equal(t, "c1", o.Course)
		assert.Equal(t, "09:00", o.StartTime)
	}
}

func TestService_Update_preservesHistory(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()

	created, _, err := svc.Create(ctx, weeklyRule("2024-01-01", "2024-02-01", time.Monday))
	require.NoError(t, err)

	// move the rule to fridays from the 15th on: mondays before the 15th are history
	upd := weeklyRule("2024-01-15", "2024-02-01", time.Friday)
	updated, res, err := svc.Update(ctx, created.ID, upd)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, 3, res.Deleted) // 15th, 22nd, 29th

	occs, err := repo.QueryOccurrences(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-19", "2024-01-26"}, occurrenceDates(occs))
}

func TestReconcile_idempotent(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()

	created, _, err := svc.Create(ctx, weeklyRule("2024-03-01", "2024-04-01", time.Tuesday, time.Thursday))
	require.NoError(t, err)
	before, err := repo.QueryOccurrences(ctx, created.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = recurrence.Reconcile(ctx, &created, created, repo, 0)
		require.NoError(t, err)
	}
	after, err := repo.QueryOccurrences(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, occurrenceDates(before), occurrenceDates(after))
}

func TestReconcile_unsavedRule(t *testing.T) {
	_, repo := newService()
	_, err := recurrence.Reconcile(context.Background(), nil, weeklyRule("2024-03-01", "2024-04-01", time.Monday), repo, 0)
	assert.Error(t, err)
}

func TestService_Update_concurrent(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()

	created, _, err := svc.Create(ctx, weeklyRule("2024-01-01", "2024-03-01", time.Monday))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, d := range []time.Weekday{time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		wg.Add(1)
		go func(d time.Weekday) {
			defer wg.Done()
			_, _, err := svc.Update(ctx, created.ID, weeklyRule("2024-01-01", "2024-03-01", d))
			assert.NoError(t, err)
		}(d)
	}
	wg.Wait()

	// whichever update won, its occurrences are the only ones left
	rule, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	occs, err := repo.QueryOccurrences(ctx, created.ID)
	require.NoError(t, err)
	want := recurrence.Expand(rule)
	assert.Len(t, occs, len(want))
	for i, o := range occs {
		assert.True(t, want[i].Equal(o.Date))
	}
}

func TestService_Delete(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()

	created, _, err := svc.Create(ctx, weeklyRule("2024-01-01", "2024-02-01", time.Monday))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, created.ID))

	_, err = svc.Get(ctx, created.ID)
	assert.Equal(t, recurrence.ErrRuleNotFound, err)
	occs, err := repo.QueryOccurrences(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, occs)

	assert.Equal(t, recurrence.ErrRuleNotFound, svc.Delete(ctx, created.ID))
}

func TestService_Preview_truncated(t *testing.T) {
	repo := inmemdb.NewRecurrenceRepository(inmemdb.Open())
	svc := recurrence.NewService(nil, repo, nil, 5)

	u := day("2025-01-01")
	dates, truncated := svc.Preview(recurrence.Rule{First: recurrence.Slot{Date: day("2024-01-01")}, Until: &u, Pattern: recurrence.Daily{Every: 1}})
	assert.True(t, truncated)
	assert.Len(t, dates, 5)
}

func TestRuleInput_Rule(t *testing.T) {
	validate := core.NewValidator(core.NewTranslator())
	recurrence.InitValidators(validate, core.NewTranslator())

	tests := []struct {
		name    string
		in      recurrence.RuleInput
		wantErr bool
		want    recurrence.Pattern
	}{
		{
			name: "weekly",
			in: recurrence.RuleInput{
				Course: "c1", Title: "Lab", Date: "2024-01-01", TerminationDate: "2024-02-01",
				IsWeekly: true, EveryNWeeks: 2, Weekdays: []string{"Mon", "wednesday", "5"},
			},
			want: recurrence.Weekly{Every: 2, Days: []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		},
		{
			name: "annually",
			in: recurrence.RuleInput{
				Course: "c1", Title: "Exam", Date: "2024-01-01", TerminationDate: "2030-01-01",
				IsAnnually: true, Months: []string{"jun", "12"}, DayOfMonth: 15,
			},
			want: recurrence.Annually{Months: []time.Month{time.June, time.December}, Day: 15},
		},
		{
			name:    "no kind",
			in:      recurrence.RuleInput{Course: "c1", Title: "Lab", Date: "2024-01-01", TerminationDate: "2024-02-01"},
			wantErr: true,
		},
		{
			name: "several kinds",
			in: recurrence.RuleInput{
				Course: "c1", Title: "Lab", Date: "2024-01-01", TerminationDate: "2024-02-01",
				IsDaily: true, IsMonthly: true, DayOfMonth: 3,
			},
			wantErr: true,
		},
		{
			name: "termination before first",
			in: recurrence.RuleInput{
				Course: "c1", Title: "Lab", Date: "2024-02-01", TerminationDate: "2024-01-01", IsDaily: true,
			},
			wantErr: true,
		},
		{
			name: "weekly without days",
			in: recurrence.RuleInput{
				Course: "c1", Title: "Lab", Date: "2024-01-01", TerminationDate: "2024-02-01", IsWeekly: true,
			},
			wantErr: true,
		},
		{
			name: "bad weekday",
			in: recurrence.RuleInput{
				Course: "c1", Title: "Lab", Date: "2024-01-01", TerminationDate: "2024-02-01",
				IsWeekly: true, Weekdays: []string{"someday"},
			},
			wantErr: true,
		},
		{
			name:    "bad date",
			in:      recurrence.RuleInput{Course: "c1", Title: "Lab", Date: "01/01/2024", TerminationDate: "2024-02-01", IsDaily: true},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			err := in.Validate(validate)
			var rule recurrence.Rule
			if err == nil {
				rule, err = in.Rule("u1")
			}
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rule.Pattern)
			assert.Equal(t, "u1", rule.CreatedBy)
		})
	}
}

func TestFlags_Pattern_priority(t *testing.T) {
	f := recurrence.Flags{IsWeekly: true, IsMonthly: true, EveryNWeeks: 1, Weekdays: []time.Weekday{time.Monday}, DayOfMonth: 3}
	assert.True(t, f.Ambiguous())
	p, ok := recurrence.PatternFromFlags("r1", f, nil)
	assert.True(t, ok)
	assert.Equal(t, recurrence.KindWeekly, p.Kind())

	_, ok = recurrence.Flags{}.Pattern()
	assert.False(t, ok)
}
