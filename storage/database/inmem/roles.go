package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/user"
)

type roleRepository struct {
	db *roleTable
}

var _ user.RoleRepository = (*roleRepository)(nil)

func NewRoleRepository(db *DB) user.RoleRepository {
	return &roleRepository{db: db.role}
}

func cloneRole(r access.Role) access.Role {
	r.Permissions = append([]string(nil), r.Permissions...)
	r.Views = append([]string(nil), r.Views...)
	return r
}

func (repo *roleRepository) CreateRole(_ context.Context, role access.Role, _ ...core.DBExecutor) (access.Role, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[role.IAMName]; ok {
		return access.Role{}, user.ErrIAMNameExists
	}
	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	stored := cloneRole(role)
	repo.db.table[role.IAMName] = &stored
	return cloneRole(role), nil
}

func (repo *roleRepository) QueryRoles(_ context.Context, _ ...core.DBExecutor) ([]access.Role, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	roles := make([]access.Role, 0, len(repo.db.table))
	for _, r := range repo.db.table {
		roles = append(roles, cloneRole(*r))
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].IAMName < roles[j].IAMName })
	return roles, nil
}

func (repo *roleRepository) GetRole(_ context.Context, iamName string, _ ...core.DBExecutor) (access.Role, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.table[iamName]; ok {
		return cloneRole(*r), nil
	}
	return access.Role{}, user.ErrRoleNotFound
}

func (repo *roleRepository) GetRoles(_ context.Context, iamNames []string, _ ...core.DBExecutor) ([]access.Role, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	roles := make([]access.Role, 0, len(iamNames))
	for _, name := range iamNames {
		if r, ok := repo.db.table[name]; ok {
			roles = append(roles, cloneRole(*r))
		}
	}
	return roles, nil
}

func (repo *roleRepository) UpdateRole(_ context.Context, role access.Role, _ ...core.DBExecutor) (access.Role, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[role.IAMName]
	if !ok {
		return access.Role{}, user.ErrRoleNotFound
	}
	// the IAM name is immutable
	role.ID = orig.ID
	stored := cloneRole(role)
	repo.db.table[role.IAMName] = &stored
	return cloneRole(role), nil
}

func (repo *roleRepository) DeleteRole(_ context.Context, iamName string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[iamName]; !ok {
		return user.ErrRoleNotFound
	}
	delete(repo.db.table, iamName)
	return nil
}
