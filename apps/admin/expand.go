package main

import (
	"fmt"

	"github.com/trezcool/academia/core/recurrence"
)

// expand prints the occurrence dates of a rule described by flags, without storing anything.
func (cli *commandLine) expand(args []string) error {
	fs := cli.flagSet("expand")
	first := fs.String("first", "", "The first occurrence, YYYY-MM-DD.")
	until := fs.String("until", "", "The termination date (exclusive), YYYY-MM-DD.")
	kind := fs.String("kind", "", "daily, weekly, monthly or annually.")
	every := fs.Int("every", 1, "The interval, in units of kind.")
	days := fs.String("days", "", "Weekly: comma separated weekdays, e.g. mon,wed.")
	months := fs.String("months", "", "Annually: comma separated months, e.g. jan,jun.")
	day := fs.Int("day", 0, "Monthly & annually: the day of the month.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *first == "" || *until == "" || *kind == "" {
		fs.Usage()
		return errHelp
	}

	in := recurrence.RuleInput{
		Course:          "-",
		Title:           "-",
		Date:            *first,
		TerminationDate: *until,
		Weekdays:        splitList(*days),
		Months:          splitList(*months),
		DayOfMonth:      *day,
	}
	switch recurrence.Kind(*kind) {
	case recurrence.KindDaily:
		in.IsDaily, in.EveryNDays = true, *every
	case recurrence.KindWeekly:
		in.IsWeekly, in.EveryNWeeks = true, *every
	case recurrence.KindMonthly:
		in.IsMonthly, in.EveryNMonths = true, *every
	case recurrence.KindAnnually:
		in.IsAnnually, in.EveryNYears = true, *every
	default:
		return fmt.Errorf("%q: unknown kind", *kind)
	}
	if err := in.Validate(cli.validate); err != nil {
		return err
	}
	rule, err := in.Rule("admin")
	if err != nil {
		return err
	}

	dates, truncated := recurrence.ExpandN(rule, cli.maxOccurrences)
	for _, d := range dates {
		fmt.Fprintln(cli.out, d.Format(recurrence.DateLayout))
	}
	if truncated {
		fmt.Fprintf(cli.out, "truncated after %d occurrences\n", len(dates))
	} else {
		fmt.Fprintf(cli.out, "%d occurrences\n", len(dates))
	}
	return nil
}
