package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
	"github.com/trezcool/academia/core/recurrence"
)

// recurrenceRepository has no transactions: the rule service serializes writers per rule.
type recurrenceRepository struct {
	db *recurrenceTable
}

var _ recurrence.Repository = (*recurrenceRepository)(nil)

func NewRecurrenceRepository(db *DB) recurrence.Repository {
	return &recurrenceRepository{db: db.recurrence}
}

func cloneRule(r recurrence.Rule) recurrence.Rule {
	if r.Until != nil {
		until := *r.Until
		r.Until = &until
	}
	return r
}

func (repo *recurrenceRepository) CreateRule(_ context.Context, rule recurrence.Rule, _ ...core.DBExecutor) (recurrence.Rule, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	stored := cloneRule(rule)
	repo.db.rules[rule.ID] = &stored
	return cloneRule(rule), nil
}

func (repo *recurrenceRepository) GetRule(_ context.Context, id string, _ ...core.DBExecutor) (recurrence.Rule, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.rules[id]; ok {
		return cloneRule(*r), nil
	}
	return recurrence.Rule{}, recurrence.ErrRuleNotFound
}

func (repo *recurrenceRepository) LockRule(ctx context.Context, id string, exec ...core.DBExecutor) (recurrence.Rule, error) {
	return repo.GetRule(ctx, id, exec...)
}

func (repo *recurrenceRepository) QueryRules(_ context.Context, filter *record.Filter, _ ...core.DBExecutor) ([]recurrence.Rule, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rules := make([]recurrence.Rule, 0, len(repo.db.rules))
	for _, r := range repo.db.rules {
		if filter == nil || filter.Matches(r.Record()) {
			rules = append(rules, cloneRule(*r))
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules, nil
}

func (repo *recurrenceRepository) UpdateRule(_ context.Context, rule recurrence.Rule, _ ...core.DBExecutor) (recurrence.Rule, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rules[rule.ID]; !ok {
		return recurrence.Rule{}, recurrence.ErrRuleNotFound
	}
	stored := cloneRule(rule)
	repo.db.rules[rule.ID] = &stored
	return cloneRule(rule), nil
}

func (repo *recurrenceRepository) DeleteRule(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rules[id]; !ok {
		return recurrence.ErrRuleNotFound
	}
	delete(repo.db.rules, id)
	return nil
}

func (repo *recurrenceRepository) QueryOccurrences(_ context.Context, ruleID string, _ ...core.DBExecutor) ([]recurrence.Occurrence, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	occs := make([]recurrence.Occurrence, 0)
	for _, o := range repo.db.occurrences {
		if o.RuleID == ruleID {
			occs = append(occs, *o)
		}
	}
	sort.Slice(occs, func(i, j int) bool {
		if occs[i].Date.Equal(occs[j].Date) {
			return occs[i].ID < occs[j].ID
		}
		return occs[i].Date.Before(occs[j].Date)
	})
	return occs, nil
}

func (repo *recurrenceRepository) DeleteOccurrencesFrom(_ context.Context, ruleID string, from time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for id, o := range repo.db.occurrences {
		if o.RuleID == ruleID && !o.Date.Before(from) {
			delete(repo.db.occurrences, id)
			n++
		}
	}
	return n, nil
}

func (repo *recurrenceRepository) CreateOccurrences(_ context.Context, occs []recurrence.Occurrence, _ ...core.DBExecutor) ([]recurrence.Occurrence, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	now := time.Now().UTC()
	created := make([]recurrence.Occurrence, 0, len(occs))
	for _, o := range occs {
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		o.CreatedAt = now
		stored := o
		repo.db.occurrences[o.ID] = &stored
		created = append(created, o)
	}
	return created, nil
}
