package recurrence

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// Result sums up a reconciliation.
type Result struct {
	Deleted   int          `json:"deleted"`
	Created   []Occurrence `json:"created"`
	Truncated bool         `json:"truncated"`
}

// Reconcile makes the stored occurrences of after match its expansion.
// Occurrences dated before after's first occurrence are history and stay untouched;
// every later one is deleted and regenerated. before is nil on creation.
// Running it twice with the same rule leaves the same set of occurrences.
func Reconcile(ctx context.Context, before *Rule, after Rule, repo OccurrenceWriter, max int, exec ...core.DBExecutor) (Result, error) {
	if after.ID == "" {
		return Result{}, errors.New("reconciling an unsaved rule")
	}
	if before != nil && before.ID != after.ID {
		return Result{}, errors.Errorf("reconciling rule %s against rule %s", after.ID, before.ID)
	}

	var res Result
	cutoff := DateOf(after.First.Date)
	deleted, err := repo.DeleteOccurrencesFrom(ctx, after.ID, cutoff, exec...)
	if err != nil {
		return Result{}, errors.Wrap(err, "deleting future occurrences")
	}
	res.Deleted = deleted

	dates, truncated := ExpandN(after, max)
	res.Truncated = truncated
	if len(dates) == 0 {
		return res, nil
	}

	occs := make([]Occurrence, 0, len(dates))
	for _, d := range dates {
		occs = append(occs, OccurrenceOf(after, d))
	}
	if res.Created, err = repo.CreateOccurrences(ctx, occs, exec...); err != nil {
		return Result{}, errors.Wrap(err, "creating occurrences")
	}
	return res, nil
}
