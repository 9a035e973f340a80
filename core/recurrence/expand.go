package recurrence

import (
	"sort"
	"time"
)

// DefaultMaxOccurrences is the cap the Service applies when none is configured.
const DefaultMaxOccurrences = 5000

// Expand returns every date of rule, sorted ascending and deduplicated, in [first, until).
// A rule without a termination date expands to nothing. Expand is not capped: use ExpandN
// for rules authored by users.
func Expand(rule Rule) []time.Time {
	dates, _ := ExpandN(rule, 0)
	return dates
}

// ExpandN is Expand stopping after max dates (max <= 0 means no cap).
// truncated reports whether the rule had more.
func ExpandN(rule Rule, max int) (dates []time.Time, truncated bool) {
	if rule.Until == nil || rule.Pattern == nil {
		return nil, false
	}
	first := DateOf(rule.First.Date)
	until := DateOf(*rule.Until)
	if !first.Before(until) {
		return nil, false
	}

	// every stream is sorted, so its first max+1 dates are enough to
	// build the first max+1 dates of the union
	lim := limit(0)
	if max > 0 {
		lim = limit(max + 1)
	}

	switch p := rule.Pattern.(type) {
	case Daily:
		dates = expandDaily(p, first, until, lim)
	case Weekly:
		dates = expandWeekly(p, first, until, lim)
	case Monthly:
		dates = expandMonthly(p, first, until, lim)
	case Annually:
		dates = expandAnnually(p, first, until, lim)
	}
	dates = sortUnique(dates)

	if max > 0 && len(dates) > max {
		return dates[:max], true
	}
	return dates, false
}

// limit is the number of dates a single stream may emit, 0 meaning unlimited.
type limit int

func (l limit) reached(stream []time.Time) bool {
	return l > 0 && len(stream) >= int(l)
}

func step(every int) int {
	if every < 1 {
		return 1
	}
	return every
}

func expandDaily(p Daily, first, until time.Time, lim limit) []time.Time {
	var dates []time.Time
	every := step(p.Every)
	for d := first; d.Before(until) && !lim.reached(dates); d = d.AddDate(0, 0, every) {
		dates = append(dates, d)
	}
	return dates
}

// Every selected weekday runs its own stream starting on its first match on or after first.
func expandWeekly(p Weekly, first, until time.Time, lim limit) []time.Time {
	var dates []time.Time
	every := step(p.Every)
	for _, wd := range p.Days {
		if wd < time.Sunday || wd > time.Saturday {
			continue
		}
		seed := first
		for seed.Weekday() != wd {
			seed = seed.AddDate(0, 0, 1)
		}
		var stream []time.Time
		for d := seed; d.Before(until) && !lim.reached(stream); d = d.AddDate(0, 0, 7*every) {
			stream = append(stream, d)
		}
		dates = append(dates, stream...)
	}
	return dates
}

// Months lacking the day are skipped, never clamped.
func expandMonthly(p Monthly, first, until time.Time, lim limit) []time.Time {
	if p.Day < 1 || p.Day > 31 {
		return nil
	}
	seed := first
	for seed.Day() != p.Day {
		seed = seed.AddDate(0, 0, 1)
		if !seed.Before(until) {
			return nil
		}
	}

	var dates []time.Time
	every := step(p.Every)
	// walk month starts so that stepping never overflows into the next month
	for cursor := monthStart(seed); cursor.Before(until) && !lim.reached(dates); cursor = cursor.AddDate(0, every, 0) {
		if d, ok := monthDate(cursor.Year(), cursor.Month(), p.Day); ok && d.Before(until) {
			dates = append(dates, d)
		}
	}
	return dates
}

// Every selected month runs its own yearly stream. Years lacking the date are skipped.
func expandAnnually(p Annually, first, until time.Time, lim limit) []time.Time {
	if p.Day < 1 || p.Day > 31 {
		return nil
	}
	var dates []time.Time
	every := step(p.Every)
	for _, m := range p.Months {
		if m < time.January || m > time.December {
			continue
		}

		seedYear := 0
		for y := first.Year(); y <= until.Year(); y++ {
			if d, ok := monthDate(y, m, p.Day); ok && !d.Before(first) {
				seedYear = y
				break
			}
		}
		if seedYear == 0 {
			continue
		}

		var stream []time.Time
		for y := seedYear; y <= until.Year() && !lim.reached(stream); y += every {
			if d, ok := monthDate(y, m, p.Day); ok && d.Before(until) {
				stream = append(stream, d)
			}
		}
		dates = append(dates, stream...)
	}
	return dates
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// monthDate returns y-m-day unless the month is too short for day.
func monthDate(y int, m time.Month, day int) (time.Time, bool) {
	d := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return d, d.Month() == m
}

func sortUnique(dates []time.Time) []time.Time {
	if len(dates) == 0 {
		return dates
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	out := dates[:1]
	for _, d := range dates[1:] {
		if !d.Equal(out[len(out)-1]) {
			out = append(out, d)
		}
	}
	return out
}
