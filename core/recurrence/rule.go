package recurrence

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
)

const DateLayout = "2006-01-02"

var (
	ErrRuleNotFound = errors.New("recurrence rule not found")
	ErrInvalidRule  = errors.New("invalid recurrence rule")
)

type Kind string

const (
	KindDaily    Kind = "daily"
	KindWeekly   Kind = "weekly"
	KindMonthly  Kind = "monthly"
	KindAnnually Kind = "annually"
)

// Pattern is one of Daily, Weekly, Monthly or Annually.
type Pattern interface {
	Kind() Kind
}

type Daily struct {
	Every int // days
}

type Weekly struct {
	Every int // weeks
	Days  []time.Weekday
}

type Monthly struct {
	Every int // months
	Day   int
}

type Annually struct {
	Every  int // years
	Months []time.Month
	Day    int
}

func (Daily) Kind() Kind    { return KindDaily }
func (Weekly) Kind() Kind   { return KindWeekly }
func (Monthly) Kind() Kind  { return KindMonthly }
func (Annually) Kind() Kind { return KindAnnually }

// Slot is the first occurrence of a rule.
type Slot struct {
	Date      time.Time // UTC midnight
	StartTime string    // HH:MM
	EndTime   string    // HH:MM
}

// Rule is a recurring calendar event of a course.
type Rule struct {
	ID        string
	Course    string
	Title     string
	CreatedBy string
	First     Slot
	Until     *time.Time // termination date, exclusive
	Pattern   Pattern
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Record exposes the rule's relationships to access checks.
func (r Rule) Record() record.Record {
	return record.Record{
		ID:        r.ID,
		Type:      record.Recurrences,
		CreatedBy: r.CreatedBy,
		Course:    r.Course,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r Rule) MarshalJSON() ([]byte, error) {
	f := FlagsOf(r.Pattern)
	out := ruleJSON{
		ID:         r.ID,
		Course:     r.Course,
		Title:      r.Title,
		CreatedBy:  r.CreatedBy,
		Date:       r.First.Date.Format(DateLayout),
		StartTime:  r.First.StartTime,
		EndTime:    r.First.EndTime,
		DayOfMonth: f.DayOfMonth,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.Until != nil {
		out.TerminationDate = r.Until.Format(DateLayout)
	}
	if r.Pattern != nil {
		out.Kind = r.Pattern.Kind()
		out.Every = f.every()
	}
	for _, d := range f.Weekdays {
		out.Weekdays = append(out.Weekdays, strings.ToLower(d.String()[:3]))
	}
	for _, m := range f.Months {
		out.Months = append(out.Months, strings.ToLower(m.String()[:3]))
	}
	return json.Marshal(out)
}

type ruleJSON struct {
	ID              string    `json:"id"`
	Course          string    `json:"course"`
	Title           string    `json:"title"`
	CreatedBy       string    `json:"created_by"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time,omitempty"`
	EndTime         string    `json:"end_time,omitempty"`
	TerminationDate string    `json:"termination_date,omitempty"`
	Kind            Kind      `json:"kind,omitempty"`
	Every           int       `json:"every,omitempty"`
	Weekdays        []string  `json:"weekdays,omitempty"`
	Months          []string  `json:"months,omitempty"`
	DayOfMonth      int       `json:"day_of_month,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Flags is the stored form of a pattern: four independent kind flags plus every selector.
// Nothing prevents legacy rows from setting more than one flag.
type Flags struct {
	IsDaily      bool
	IsWeekly     bool
	IsMonthly    bool
	IsAnnually   bool
	EveryNDays   int
	EveryNWeeks  int
	EveryNMonths int
	EveryNYears  int
	Weekdays     []time.Weekday
	Months       []time.Month
	DayOfMonth   int
}

// FlagsOf returns the stored form of p.
func FlagsOf(p Pattern) Flags {
	switch p := p.(type) {
	case Daily:
		return Flags{IsDaily: true, EveryNDays: p.Every}
	case Weekly:
		return Flags{IsWeekly: true, EveryNWeeks: p.Every, Weekdays: p.Days}
	case Monthly:
		return Flags{IsMonthly: true, EveryNMonths: p.Every, DayOfMonth: p.Day}
	case Annually:
		return Flags{IsAnnually: true, EveryNYears: p.Every, Months: p.Months, DayOfMonth: p.Day}
	}
	return Flags{}
}

// Count is the number of kind flags set.
func (f Flags) Count() int {
	n := 0
	for _, set := range []bool{f.IsDaily, f.IsWeekly, f.IsMonthly, f.IsAnnually} {
		if set {
			n++
		}
	}
	return n
}

func (f Flags) Ambiguous() bool { return f.Count() > 1 }

// Pattern picks the driving kind: Daily > Weekly > Monthly > Annually.
func (f Flags) Pattern() (Pattern, bool) {
	switch {
	case f.IsDaily:
		return Daily{Every: f.EveryNDays}, true
	case f.IsWeekly:
		return Weekly{Every: f.EveryNWeeks, Days: f.Weekdays}, true
	case f.IsMonthly:
		return Monthly{Every: f.EveryNMonths, Day: f.DayOfMonth}, true
	case f.IsAnnually:
		return Annually{Every: f.EveryNYears, Months: f.Months, Day: f.DayOfMonth}, true
	}
	return nil, false
}

func (f Flags) every() int {
	switch {
	case f.IsDaily:
		return f.EveryNDays
	case f.IsWeekly:
		return f.EveryNWeeks
	case f.IsMonthly:
		return f.EveryNMonths
	case f.IsAnnually:
		return f.EveryNYears
	}
	return 0
}

// RuleInput is a user authored rule. Exactly one kind flag must be set.
type RuleInput struct {
	Course          string   `json:"course" validate:"required"`
	Title           string   `json:"title" validate:"required"`
	Date            string   `json:"date" validate:"required,date"`
	StartTime       string   `json:"start_time" validate:"omitempty,clock"`
	EndTime         string   `json:"end_time" validate:"omitempty,clock"`
	TerminationDate string   `json:"termination_date" validate:"required,date"`
	IsDaily         bool     `json:"is_daily"`
	IsWeekly        bool     `json:"is_weekly"`
	IsMonthly       bool     `json:"is_monthly"`
	IsAnnually      bool     `json:"is_annually"`
	EveryNDays      int      `json:"every_n_days" validate:"gte=0"`
	EveryNWeeks     int      `json:"every_n_weeks" validate:"gte=0"`
	EveryNMonths    int      `json:"every_n_months" validate:"gte=0"`
	EveryNYears     int      `json:"every_n_years" validate:"gte=0"`
	Weekdays        []string `json:"weekdays" validate:"omitempty,weekdays"`
	Months          []string `json:"months" validate:"omitempty,months"`
	DayOfMonth      int      `json:"day_of_month" validate:"gte=0,lte=31"`
}

func (in *RuleInput) Validate(validate *validator.Validate) error {
	in.Course = core.CleanString(in.Course)
	in.Title = core.CleanString(in.Title)
	in.Date = core.CleanString(in.Date)
	in.TerminationDate = core.CleanString(in.TerminationDate)
	in.Weekdays = core.CleanStrings(in.Weekdays, true /* lower */)
	in.Months = core.CleanStrings(in.Months, true /* lower */)
	return validate.Struct(in)
}

func (in RuleInput) flags() Flags {
	f := Flags{
		IsDaily:      in.IsDaily,
		IsWeekly:     in.IsWeekly,
		IsMonthly:    in.IsMonthly,
		IsAnnually:   in.IsAnnually,
		EveryNDays:   in.EveryNDays,
		EveryNWeeks:  in.EveryNWeeks,
		EveryNMonths: in.EveryNMonths,
		EveryNYears:  in.EveryNYears,
		DayOfMonth:   in.DayOfMonth,
	}
	for _, s := range in.Weekdays {
		if d, ok := ParseWeekday(s); ok {
			f.Weekdays = append(f.Weekdays, d)
		}
	}
	for _, s := range in.Months {
		if m, ok := ParseMonth(s); ok {
			f.Months = append(f.Months, m)
		}
	}
	return f
}

// Rule converts a validated input. createdBy is the author of the rule.
func (in RuleInput) Rule(createdBy string) (Rule, error) {
	first, err := ParseDate(in.Date)
	if err != nil {
		return Rule{}, core.NewValidationError(ErrInvalidRule, core.FieldError{Field: "date", Error: "invalid date"})
	}
	until, err := ParseDate(in.TerminationDate)
	if err != nil {
		return Rule{}, core.NewValidationError(ErrInvalidRule, core.FieldError{Field: "termination_date", Error: "invalid date"})
	}
	if !until.After(first) {
		return Rule{}, core.NewValidationError(ErrInvalidRule, core.FieldError{Field: "termination_date", Error: "termination date must be after the first occurrence"})
	}

	f := in.flags()
	if f.Count() != 1 {
		return Rule{}, core.NewValidationError(ErrInvalidRule, core.FieldError{Field: "kind", Error: "exactly one of is_daily, is_weekly, is_monthly or is_annually is required"})
	}
	p, _ := f.Pattern()
	switch p := p.(type) {
	case Weekly:
		if len(p.Days) == 0 {
			return Rule{}, core.NewValidationError(ErrInvalidRule, core.FieldError{Field: "weekdays", Error: "at least one weekday is required"})
		}
	case Monthly:
		if p.Day == 0 {
			return Rule{}, core.NewValidationError(ErrInvalidRule, core.FieldError{Field: "day_of_month", Error: "day of month is required"})
		}
	case Annually:
		if p.Day == 0 || len(p.Months) == 0 {
			return Rule{}, core.NewValidationError(ErrInvalidRule, core.FieldError{Field: "months", Error: "months and day of month are required"})
		}
	}

	return Rule{
		Course:    in.Course,
		Title:     in.Title,
		CreatedBy: createdBy,
		First:     Slot{Date: first, StartTime: in.StartTime, EndTime: in.EndTime},
		Until:     &until,
		Pattern:   p,
	}, nil
}

// ParseDate parses YYYY-MM-DD into a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseWeekday accepts "mon", "monday" or 0 (sunday) to 6.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		return time.Weekday(n), n >= 0 && n <= 6
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) == 3 && s == name[:3]) {
			return d, true
		}
	}
	return 0, false
}

// ParseMonth accepts "jan", "january" or 1 to 12.
func ParseMonth(s string) (time.Month, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		return time.Month(n), n >= 1 && n <= 12
	}
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if s == name || (len(s) == 3 && s == name[:3]) {
			return m, true
		}
	}
	return 0, false
}
