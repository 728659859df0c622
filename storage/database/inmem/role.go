package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
)

type roleRepository struct {
	db *DB
}

var _ role.Repository = (*roleRepository)(nil) // interface compliance check

func NewRoleRepository(db *DB) *roleRepository {
	return &roleRepository{db: db}
}

func (repo *roleRepository) RolePermissions(_ context.Context, roleID int64) ([]role.Permission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if _, ok := repo.db.roles[roleID]; !ok {
		return nil, role.ErrNotFound
	}
	perms := make([]role.Permission, 0, len(repo.db.grants[roleID]))
	for name := range repo.db.grants[roleID] {
		if p, ok := repo.db.permissions[name]; ok {
			perms = append(perms, *p)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}

func (repo *roleRepository) CreateRole(_ context.Context, r role.Role) (role.Role, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	r.ID = repo.db.nextPK()
	repo.db.roles[r.ID] = &r
	return r, nil
}

func (repo *roleRepository) GetRole(_ context.Context, id int64) (role.Role, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.roles[id]; ok {
		return *r, nil
	}
	return role.Role{}, role.ErrNotFound
}

func (repo *roleRepository) GetRoleByName(_ context.Context, name string) (role.Role, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, r := range repo.db.roles {
		if strings.EqualFold(r.Name, name) {
			return *r, nil
		}
	}
	return role.Role{}, role.ErrNotFound
}

func (repo *roleRepository) QueryRoles(_ context.Context) ([]role.Role, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	roles := make([]role.Role, 0, len(repo.db.roles))
	for _, r := range repo.db.roles {
		roles = append(roles, *r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (repo *roleRepository) UpdateRole(_ context.Context, r role.Role) (role.Role, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.roles[r.ID]; !ok {
		return role.Role{}, role.ErrNotFound
	}
	repo.db.roles[r.ID] = &r
	return r, nil
}

func (repo *roleRepository) DeleteRole(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.roles, id)
	delete(repo.db.grants, id)
	return nil
}

func (repo *roleRepository) CountRoleUsers(_ context.Context, id int64) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	n := 0
	for _, u := range repo.db.users {
		if u.RoleID == id {
			n++
		}
	}
	return n, nil
}

func (repo *roleRepository) EnsurePermissions(_ context.Context, perms []role.Permission) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, p := range perms {
		p := p // per-iteration copy (Go 1.22 loop semantics; module builds with go 1.21)
		if _, ok := repo.db.permissions[p.Name]; ok {
			continue
		}
		p.ID = repo.db.nextPK()
		repo.db.permissions[p.Name] = &p
	}
	return nil
}

func (repo *roleRepository) QueryPermissions(_ context.Context) ([]role.Permission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	perms := make([]role.Permission, 0, len(repo.db.permissions))
	for _, p := range repo.db.permissions {
		perms = append(perms, *p)
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Module != perms[j].Module {
			return perms[i].Module < perms[j].Module
		}
		return perms[i].Action < perms[j].Action
	})
	return perms, nil
}

func (repo *roleRepository) SetRolePermissions(_ context.Context, roleID int64, names []string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.roles[roleID]; !ok {
		return role.ErrNotFound
	}
	grants := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := repo.db.permissions[name]; !ok {
			return role.ErrUnknownPermission
		}
		grants[name] = true
	}
	repo.db.grants[roleID] = grants
	return nil
}
