package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(s string) time.Time {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dates(ss ...string) []time.Time {
	ds := make([]time.Time, 0, len(ss))
	for _, s := range ss {
		ds = append(ds, date(s))
	}
	return ds
}

func rule(first, until string, p Pattern) Rule {
	r := Rule{ID: "r1", Course: "c1", Title: "Lecture", First: Slot{Date: date(first)}, Pattern: p}
	if until != "" {
		u := date(until)
		r.Until = &u
	}
	return r
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want []time.Time
	}{
		{
			name: "daily",
			rule: rule("2024-01-01", "2024-01-05", Daily{Every: 1}),
			want: dates("2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"),
		},
		{
			name: "daily every 3 days",
			rule: rule("2024-01-01", "2024-01-10", Daily{Every: 3}),
			want: dates("2024-01-01", "2024-01-04", "2024-01-07"),
		},
		{
			name: "daily every 0 days treated as 1",
			rule: rule("2024-01-01", "2024-01-03", Daily{}),
			want: dates("2024-01-01", "2024-01-02"),
		},
		{
			name: "weekly on mondays and wednesdays",
			rule: rule("2024-01-01", "2024-01-15", Weekly{Every: 1, Days: []time.Weekday{time.Monday, time.Wednesday}}),
			want: dates("2024-01-01", "2024-01-03", "2024-01-08", "2024-01-10"),
		},
		{
			name: "weekly every 2 weeks, first date not a selected day",
			rule: rule("2024-01-02", "2024-02-01", Weekly{Every: 2, Days: []time.Weekday{time.Friday}}),
			want: dates("2024-01-05", "2024-01-19"),
		},
		{
			name: "weekly duplicate days",
			rule: rule("2024-01-01", "2024-01-09", Weekly{Every: 1, Days: []time.Weekday{time.Monday, time.Monday}}),
			want: dates("2024-01-01", "2024-01-08"),
		},
		{
			name: "monthly on the 31st skips short months",
			rule: rule("2024-01-31", "2024-05-01", Monthly{Every: 1, Day: 31}),
			want: dates("2024-01-31", "2024-03-31"),
		},
		{
			name: "monthly seeds forward to the day",
			rule: rule("2024-01-20", "2024-04-01", Monthly{Every: 1, Day: 15}),
			want: dates("2024-02-15", "2024-03-15"),
		},
		{
			name: "monthly every 2 months",
			rule: rule("2024-01-10", "2024-07-01", Monthly{Every: 2, Day: 10}),
			want: dates("2024-01-10", "2024-03-10", "2024-05-10"),
		},
		{
			name: "monthly day out of range",
			rule: rule("2024-01-01", "2024-12-31", Monthly{Every: 1, Day: 32}),
			want: nil,
		},
		{
			name: "annually on several months",
			rule: rule("2024-03-01", "2026-01-01", Annually{Every: 1, Months: []time.Month{time.June, time.February}, Day: 10}),
			want: dates("2024-06-10", "2025-02-10", "2025-06-10"),
		},
		{
			name: "annually on february 29th skips common years",
			rule: rule("2023-03-01", "2029-01-01", Annually{Every: 1, Months: []time.Month{time.February}, Day: 29}),
			want: dates("2024-02-29", "2028-02-29"),
		},
		{
			name: "annually every 2 years",
			rule: rule("2024-01-01", "2029-01-01", Annually{Every: 2, Months: []time.Month{time.May}, Day: 1}),
			want: dates("2024-05-01", "2026-05-01", "2028-05-01"),
		},
		{
			name: "no termination date",
			rule: rule("2024-01-01", "", Daily{Every: 1}),
			want: nil,
		},
		{
			name: "termination before first",
			rule: rule("2024-01-10", "2024-01-01", Daily{Every: 1}),
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Expand(tt.rule)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpand_bounds(t *testing.T) {
	patterns := []Pattern{
		Daily{Every: 2},
		Weekly{Every: 1, Days: []time.Weekday{time.Sunday, time.Thursday, time.Saturday}},
		Monthly{Every: 1, Day: 30},
		Annually{Every: 1, Months: []time.Month{time.January, time.December}, Day: 31},
	}
	for _, p := range patterns {
		t.Run(string(p.Kind()), func(t *testing.T) {
			r := rule("2023-11-15", "2026-02-01", p)
			got := Expand(r)
			assert.NotEmpty(t, got)
			for i, d := range got {
				assert.False(t, d.Before(r.First.Date), "%s before first occurrence", d)
				assert.True(t, d.Before(*r.Until), "%s not before termination", d)
				if i > 0 {
					assert.True(t, got[i-1].Before(d), "dates not strictly ascending")
				}
			}
			// deterministic
			assert.Equal(t, got, Expand(r))
		})
	}
}

func TestExpandN(t *testing.T) {
	r := rule("2024-01-01", "2025-01-01", Daily{Every: 1})

	got, truncated := ExpandN(r, 10)
	assert.True(t, truncated)
	assert.Len(t, got, 10)
	assert.Equal(t, date("2024-01-10"), got[9])

	got, truncated = ExpandN(r, 0)
	assert.False(t, truncated)
	assert.Len(t, got, 366)
}

func TestExpandN_streams(t *testing.T) {
	tests := []struct {
		name          string
		rule          Rule
		max           int
		want          []time.Time
		wantTruncated bool
	}{
		{
			name: "exactly max is not truncated",
			rule: rule("2024-01-01", "2024-01-04", Daily{Every: 1}),
			max:  3,
			want: dates("2024-01-01", "2024-01-02", "2024-01-03"),
		},
		{
			name:          "far future daily",
			rule:          rule("2024-01-01", "9999-12-31", Daily{Every: 1}),
			max:           2,
			want:          dates("2024-01-01", "2024-01-02"),
			wantTruncated: true,
		},
		{
			name:          "far future weekly merges streams",
			rule:          rule("2024-01-01", "9999-12-31", Weekly{Every: 1, Days: []time.Weekday{time.Monday, time.Wednesday}}),
			max:           3,
			want:          dates("2024-01-01", "2024-01-03", "2024-01-08"),
			wantTruncated: true,
		},
		{
			name:          "far future monthly",
			rule:          rule("2024-01-31", "9999-12-31", Monthly{Every: 1, Day: 31}),
			max:           2,
			want:          dates("2024-01-31", "2024-03-31"),
			wantTruncated: true,
		},
		{
			name:          "far future annually merges streams",
			rule:          rule("2024-01-01", "9999-12-31", Annually{Every: 1, Months: []time.Month{time.March, time.January}, Day: 1}),
			max:           3,
			want:          dates("2024-01-01", "2024-03-01", "2025-01-01"),
			wantTruncated: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := ExpandN(tt.rule, tt.max)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantTruncated, truncated)
		})
	}
}

func TestExpand_uncapped(t *testing.T) {
	r := rule("2000-01-01", "2020-01-01", Daily{Every: 1})
	got := Expand(r)
	assert.Len(t, got, 7305)
	assert.Greater(t, len(got), DefaultMaxOccurrences)
	assert.Equal(t, date("2019-12-31"), got[len(got)-1])
}
