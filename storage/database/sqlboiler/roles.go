package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/user"
)

const pqUniqueViolation = "23505"

type roleRow struct {
	ID          string            `boil:"id"`
	DisplayName string            `boil:"display_name"`
	IAMName     string            `boil:"iam_name"`
	Permissions types.StringArray `boil:"permissions"`
	Views       types.StringArray `boil:"views"`
	CreatedAt   time.Time         `boil:"created_at"`
	UpdatedAt   time.Time         `boil:"updated_at"`
}

type roleRepository struct {
	exec core.DBExecutor
}

var _ user.RoleRepository = (*roleRepository)(nil) // interface compliance check

func NewRoleRepository(exec core.DBExecutor) *roleRepository {
	return &roleRepository{exec: exec}
}

func (repo roleRepository) unboil(row *roleRow) access.Role {
	return access.Role{
		ID:          row.ID,
		DisplayName: row.DisplayName,
		IAMName:     row.IAMName,
		Permissions: row.Permissions,
		Views:       row.Views,
	}
}

func nonNil(ss []string) types.StringArray {
	if ss == nil {
		return types.StringArray{}
	}
	return ss
}

func (repo roleRepository) CreateRole(ctx context.Context, role access.Role, exec ...core.DBExecutor) (access.Role, error) {
	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	stmt := fmt.Sprintf(
		`INSERT INTO %q ("id", "display_name", "iam_name", "permissions", "views", "created_at", "updated_at") VALUES %s`,
		TableNames.Role, placeholders(1, 7))
	_, err := queries.Raw(stmt,
		role.ID, role.DisplayName, role.IAMName, nonNil(role.Permissions), nonNil(role.Views), now, now,
	).ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return access.Role{}, user.ErrIAMNameExists
		}
		return access.Role{}, errors.Wrap(err, "inserting role")
	}
	return role, nil
}

func (repo roleRepository) QueryRoles(ctx context.Context, exec ...core.DBExecutor) ([]access.Role, error) {
	var rows []*roleRow
	q := newQuery(from(TableNames.Role), qm.OrderBy(`"iam_name" ASC`))
	if err := q.Bind(ctx, getExec(repo.exec, exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying roles")
	}
	roles := make([]access.Role, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, repo.unboil(row))
	}
	return roles, nil
}

func (repo roleRepository) GetRole(ctx context.Context, iamName string, exec ...core.DBExecutor) (access.Role, error) {
	var row roleRow
	q := newQuery(from(TableNames.Role), qm.Where(`"iam_name" = ?`, iamName), qm.Limit(1))
	if err := q.Bind(ctx, getExec(repo.exec, exec), &row); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return access.Role{}, user.ErrRoleNotFound
		}
		return access.Role{}, errors.Wrap(err, "finding role")
	}
	return repo.unboil(&row), nil
}

func (repo roleRepository) GetRoles(ctx context.Context, iamNames []string, exec ...core.DBExecutor) ([]access.Role, error) {
	if len(iamNames) == 0 {
		return []access.Role{}, nil
	}
	args := make([]interface{}, 0, len(iamNames))
	for _, name := range iamNames {
		args = append(args, name)
	}

	var rows []*roleRow
	q := newQuery(from(TableNames.Role), qm.WhereIn(`"iam_name" IN ?`, args...))
	if err := q.Bind(ctx, getExec(repo.exec, exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying roles")
	}

	byName := make(map[string]access.Role, len(rows))
	for _, row := range rows {
		byName[row.IAMName] = repo.unboil(row)
	}
	roles := make([]access.Role, 0, len(rows))
	for _, name := range iamNames {
		if r, ok := byName[name]; ok {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

func (repo roleRepository) UpdateRole(ctx context.Context, role access.Role, exec ...core.DBExecutor) (access.Role, error) {
	q := newQuery(from(TableNames.Role), qm.Where(`"iam_name" = ?`, role.IAMName))
	queries.SetUpdate(q, map[string]interface{}{
		"display_name": role.DisplayName,
		"permissions":  nonNil(role.Permissions),
		"views":        nonNil(role.Views),
		"updated_at":   time.Now().UTC(),
	})
	res, err := q.ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		return access.Role{}, errors.Wrap(err, "updating role")
	}
	if cnt, _ := res.RowsAffected(); cnt == 0 {
		return access.Role{}, user.ErrRoleNotFound
	}
	return repo.GetRole(ctx, role.IAMName, exec...)
}

func (repo roleRepository) DeleteRole(ctx context.Context, iamName string, exec ...core.DBExecutor) error {
	q := newQuery(from(TableNames.Role), qm.Where(`"iam_name" = ?`, iamName))
	queries.SetDelete(q)
	res, err := q.ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		return errors.Wrap(err, "deleting role")
	}
	if cnt, _ := res.RowsAffected(); cnt == 0 {
		return user.ErrRoleNotFound
	}
	return nil
}
