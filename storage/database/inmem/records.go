package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
)

type recordRepository struct {
	db *recordTable
}

var _ record.Repository = (*recordRepository)(nil)

func NewRecordRepository(db *DB) record.Repository {
	return &recordRepository{db: db.record}
}

// query returns copies of the matching records. Callers hold the lock.
func (repo *recordRepository) query(rtype record.Resource, filter *record.Filter) []record.Record {
	recs := make([]record.Record, 0, len(repo.db.table[rtype]))
	for _, rec := range repo.db.table[rtype] {
		if filter == nil || filter.Matches(*rec) {
			recs = append(recs, rec.Clone())
		}
	}
	return recs
}

func (repo *recordRepository) FindByID(_ context.Context, rtype record.Resource, id string, _ ...core.DBExecutor) (record.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rec, ok := repo.db.table[rtype][id]; ok {
		return rec.Clone(), nil
	}
	return record.Record{}, record.ErrNotFound
}

func (repo *recordRepository) Find(_ context.Context, rtype record.Resource, filter *record.Filter, opts record.FindOptions, _ ...core.DBExecutor) ([]record.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	recs := repo.query(rtype, filter)
	sortRecords(recs, opts.Ordering)

	if opts.Offset > 0 {
		if opts.Offset >= len(recs) {
			return []record.Record{}, nil
		}
		recs = recs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(recs) {
		recs = recs[:opts.Limit]
	}
	return recs, nil
}

func (repo *recordRepository) Create(_ context.Context, rec record.Record, _ ...core.DBExecutor) (record.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	table, ok := repo.db.table[rec.Type]
	if !ok {
		table = make(map[string]*record.Record)
		repo.db.table[rec.Type] = table
	}
	stored := rec.Clone()
	table[rec.ID] = &stored
	return rec.Clone(), nil
}

func (repo *recordRepository) Update(_ context.Context, rtype record.Resource, filter *record.Filter, rec record.Record, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	now := time.Now().UTC()
	for id, orig := range repo.db.table[rtype] {
		if filter != nil && !filter.Matches(*orig) {
			continue
		}
		// only mutable fields
		upd := rec.Clone()
		upd.ID = id
		upd.Type = rtype
		upd.CreatedBy = orig.CreatedBy
		upd.CreatedAt = orig.CreatedAt
		upd.UpdatedAt = now
		repo.db.table[rtype][id] = &upd
		n++
	}
	return n, nil
}

func (repo *recordRepository) Delete(_ context.Context, rtype record.Resource, filter *record.Filter, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for id, rec := range repo.db.table[rtype] {
		if filter == nil || filter.Matches(*rec) {
			delete(repo.db.table[rtype], id)
			n++
		}
	}
	return n, nil
}

// sortRecords orders by ords, then by creation date and id.
func sortRecords(recs []record.Record, ords []core.DBOrdering) {
	ords = append(append([]core.DBOrdering(nil), ords...),
		core.DBOrdering{Field: "created_at", Ascending: true},
		core.DBOrdering{Field: record.FieldID, Ascending: true},
	)
	sort.SliceStable(recs, func(i, j int) bool {
		for _, ord := range ords {
			c := compareField(recs[i], recs[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compareField(a, b record.Record, field string) int {
	switch field {
	case "created_at":
		return compareTime(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTime(a.UpdatedAt, b.UpdatedAt)
	}
	av, _ := a.Values(field)
	bv, _ := b.Values(field)
	var as, bs string
	if len(av) > 0 {
		as = av[0]
	}
	if len(bv) > 0 {
		bs = bv[0]
	}
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
