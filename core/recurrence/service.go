package recurrence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
)

type Service struct {
	db             core.DB // nil with in-memory storage
	repo           Repository
	logger         core.Logger
	maxOccurrences int
	locks          *keyedMutex
}

func NewService(db core.DB, repo Repository, logger core.Logger, maxOccurrences int) *Service {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}
	return &Service{
		db:             db,
		repo:           repo,
		logger:         logger,
		maxOccurrences: maxOccurrences,
		locks:          newKeyedMutex(),
	}
}

// Preview expands rule without storing anything.
func (svc *Service) Preview(rule Rule) (dates []time.Time, truncated bool) {
	dates, truncated = ExpandN(rule, svc.maxOccurrences)
	svc.warnTruncated(rule, truncated)
	return dates, truncated
}

func (svc *Service) Get(ctx context.Context, id string) (Rule, error) {
	return svc.repo.GetRule(ctx, id)
}

// Query lists the rules matching filter, nil meaning all.
func (svc *Service) Query(ctx context.Context, filter *record.Filter) ([]Rule, error) {
	return svc.repo.QueryRules(ctx, filter)
}

func (svc *Service) Occurrences(ctx context.Context, ruleID string) ([]Occurrence, error) {
	if _, err := svc.repo.GetRule(ctx, ruleID); err != nil {
		return nil, err
	}
	return svc.repo.QueryOccurrences(ctx, ruleID)
}

// Create stores rule and its occurrences in one transaction.
func (svc *Service) Create(ctx context.Context, rule Rule) (created Rule, res Result, err error) {
	now := time.Now().UTC()
	rule.ID = uuid.New().String()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	err = core.Transact(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if created, err = svc.repo.CreateRule(ctx, rule, core.Executors(exec)...); err != nil {
			return err
		}
		res, err = Reconcile(ctx, nil, created, svc.repo, svc.maxOccurrences, core.Executors(exec)...)
		return err
	})
	if err != nil {
		return Rule{}, Result{}, err
	}
	svc.warnTruncated(created, res.Truncated)
	return created, res, nil
}

// Update replaces the rule id with rule and regenerates its occurrences from the new first date on.
// Updates of the same rule are serialized.
func (svc *Service) Update(ctx context.Context, id string, rule Rule) (updated Rule, res Result, err error) {
	unlock := svc.locks.lock(id)
	defer unlock()

	err = core.Transact(ctx, svc.db, func(exec core.DBExecutor) error {
		before, err := svc.repo.LockRule(ctx, id, core.Executors(exec)...)
		if err != nil {
			return err
		}
		rule.ID = before.ID
		rule.CreatedBy = before.CreatedBy
		rule.CreatedAt = before.CreatedAt
		rule.UpdatedAt = time.Now().UTC()

		if updated, err = svc.repo.UpdateRule(ctx, rule, core.Executors(exec)...); err != nil {
			return err
		}
		res, err = Reconcile(ctx, &before, updated, svc.repo, svc.maxOccurrences, core.Executors(exec)...)
		return err
	})
	if err != nil {
		return Rule{}, Result{}, err
	}
	svc.warnTruncated(updated, res.Truncated)
	return updated, res, nil
}

// Delete removes the rule and its occurrences from its first date on. Earlier occurrences stay.
func (svc *Service) Delete(ctx context.Context, id string) error {
	unlock := svc.locks.lock(id)
	defer unlock()

	return core.Transact(ctx, svc.db, func(exec core.DBExecutor) error {
		rule, err := svc.repo.LockRule(ctx, id, core.Executors(exec)...)
		if err != nil {
			return err
		}
		if _, err := svc.repo.DeleteOccurrencesFrom(ctx, id, DateOf(rule.First.Date), core.Executors(exec)...); err != nil {
			return err
		}
		return svc.repo.DeleteRule(ctx, id, core.Executors(exec)...)
	})
}

// PatternFromFlags reads a stored pattern, logging when several kind flags compete.
func PatternFromFlags(ruleID string, f Flags, logger core.Logger) (Pattern, bool) {
	p, ok := f.Pattern()
	if ok && f.Ambiguous() && logger != nil {
		logger.Warn(fmt.Sprintf("recurrence rule %s sets %d kinds, using %s", ruleID, f.Count(), p.Kind()))
	}
	return p, ok
}

func (svc *Service) warnTruncated(rule Rule, truncated bool) {
	if truncated && svc.logger != nil {
		svc.logger.Warn(fmt.Sprintf("recurrence rule %s truncated to %d occurrences", rule.ID, svc.maxOccurrences))
	}
}

// keyedMutex hands out one mutex per key, dropped once nobody holds it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (km *keyedMutex) lock(key string) (unlock func()) {
	km.mu.Lock()
	m, ok := km.locks[key]
	if !ok {
		m = new(refMutex)
		km.locks[key] = m
	}
	m.refs++
	km.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		km.mu.Lock()
		if m.refs--; m.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}
