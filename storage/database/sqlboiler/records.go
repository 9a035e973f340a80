package boiledrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
)

type recordRow struct {
	ID         string            `boil:"id"`
	Type       string            `boil:"type"`
	CreatedBy  string            `boil:"created_by"`
	Course     string            `boil:"course"`
	Author     string            `boil:"author"`
	Grader     string            `boil:"grader"`
	Members    types.StringArray `boil:"members"`
	Roles      types.StringArray `boil:"roles"`
	ActiveRole string            `boil:"active_role"`
	Data       types.JSON        `boil:"data"`
	CreatedAt  time.Time         `boil:"created_at"`
	UpdatedAt  time.Time         `boil:"updated_at"`
}

type recordRepository struct {
	exec core.DBExecutor
}

var _ record.Repository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(exec core.DBExecutor) *recordRepository {
	return &recordRepository{exec: exec}
}

func (repo recordRepository) boil(rec record.Record) (*recordRow, error) {
	data := rec.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "encoding record data")
	}
	members, roles := rec.Members, rec.Roles
	if members == nil {
		members = []string{}
	}
	if roles == nil {
		roles = []string{}
	}
	return &recordRow{
		ID:         rec.ID,
		Type:       rec.Type.String(),
		CreatedBy:  rec.CreatedBy,
		Course:     rec.Course,
		Author:     rec.Author,
		Grader:     rec.Grader,
		Members:    members,
		Roles:      roles,
		ActiveRole: rec.ActiveRole,
		Data:       raw,
		CreatedAt:  rec.CreatedAt.UTC(),
		UpdatedAt:  rec.UpdatedAt.UTC(),
	}, nil
}

func (repo recordRepository) unboil(row *recordRow) record.Record {
	rec := record.Record{
		ID:         row.ID,
		Type:       record.Resource(row.Type),
		CreatedBy:  row.CreatedBy,
		Course:     row.Course,
		Author:     row.Author,
		Grader:     row.Grader,
		Members:    row.Members,
		Roles:      row.Roles,
		ActiveRole: row.ActiveRole,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
	if len(row.Data) > 0 {
		_ = row.Data.Unmarshal(&rec.Data)
	}
	return rec
}

// trapNoRowsErr maps psql "no rows" err to record.ErrNotFound
func (repo recordRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return record.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo recordRepository) query(rtype record.Resource, filter *record.Filter, mods ...qm.QueryMod) *queries.Query {
	mods = appendMods([]qm.QueryMod{from(TableNames.Record), qm.Where(`"type" = ?`, rtype.String())}, mods...)
	return newQuery(appendMods(mods, filterMod(filter))...)
}

func (repo recordRepository) FindByID(ctx context.Context, rtype record.Resource, id string, exec ...core.DBExecutor) (record.Record, error) {
	var row recordRow
	q := repo.query(rtype, record.ByID(id), qm.Limit(1))
	if err := q.Bind(ctx, getExec(repo.exec, exec), &row); err != nil {
		return record.Record{}, repo.trapNoRowsErr(err, "finding record by ID")
	}
	return repo.unboil(&row), nil
}

func (repo recordRepository) Find(ctx context.Context, rtype record.Resource, filter *record.Filter, opts record.FindOptions, exec ...core.DBExecutor) ([]record.Record, error) {
	mods := []qm.QueryMod{orderMod(opts.Ordering, record.SortableFields...)}
	if opts.Limit > 0 {
		mods = append(mods, qm.Limit(opts.Limit))
	}
	if opts.Offset > 0 {
		mods = append(mods, qm.Offset(opts.Offset))
	}

	var rows []*recordRow
	if err := repo.query(rtype, filter, mods...).Bind(ctx, getExec(repo.exec, exec), &rows); err != nil {
		return nil, errors.Wrapf(err, "querying %s", rtype)
	}
	recs := make([]record.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, repo.unboil(row))
	}
	return recs, nil
}

func (repo recordRepository) Create(ctx context.Context, rec record.Record, exec ...core.DBExecutor) (record.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	row, err := repo.boil(rec)
	if err != nil {
		return record.Record{}, err
	}
	stmt := fmt.Sprintf(
		`INSERT INTO %q ("id", "type", "created_by", "course", "author", "grader", "members", "roles", "active_role", "data", "created_at", "updated_at") VALUES %s`,
		TableNames.Record, placeholders(1, 12))
	_, err = queries.Raw(stmt,
		row.ID, row.Type, row.CreatedBy, row.Course, row.Author, row.Grader,
		row.Members, row.Roles, row.ActiveRole, row.Data, row.CreatedAt, row.UpdatedAt,
	).ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		return record.Record{}, errors.Wrap(err, "inserting record")
	}
	return repo.unboil(row), nil
}

func (repo recordRepository) Update(ctx context.Context, rtype record.Resource, filter *record.Filter, rec record.Record, exec ...core.DBExecutor) (int, error) {
	row, err := repo.boil(rec)
	if err != nil {
		return 0, err
	}
	q := repo.query(rtype, filter)
	queries.SetUpdate(q, map[string]interface{}{
		"course":      row.Course,
		"author":      row.Author,
		"grader":      row.Grader,
		"members":     row.Members,
		"roles":       row.Roles,
		"active_role": row.ActiveRole,
		"data":        row.Data,
		"updated_at":  time.Now().UTC(),
	})
	res, err := q.ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		return 0, errors.Wrapf(err, "updating %s", rtype)
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting updated records")
	}
	return int(cnt), nil
}

func (repo recordRepository) Delete(ctx context.Context, rtype record.Resource, filter *record.Filter, exec ...core.DBExecutor) (int, error) {
	q := repo.query(rtype, filter)
	queries.SetDelete(q)
	res, err := q.ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		return 0, errors.Wrapf(err, "deleting %s", rtype)
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting deleted records")
	}
	return int(cnt), nil
}
