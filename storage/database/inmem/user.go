package inmemdb

import (
	"context"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

// load copies a stored user, with the current name of its role. Must be called with a lock held.
func (repo *userRepository) load(u *user.User) user.User {
	usr := *u
	usr.PasswordHash = append([]byte(nil), u.PasswordHash...)
	usr.LockedUntil = copyTime(u.LockedUntil)
	usr.LastLogin = copyTime(u.LastLogin)
	if r, ok := repo.db.roles[u.RoleID]; ok {
		usr.RoleName = r.Name
	}
	return usr
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedUsers ...user.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excl := make([]int64, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excl = append(excl, u.ID)
	}
	for _, u := range repo.db.users {
		if u.Email == email && !isExcluded(u.ID, excl) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, u := range repo.db.users {
		if u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	usr.ID = repo.db.nextPK()
	repo.db.users[usr.ID] = &usr
	return repo.load(&usr), nil
}

func (repo *userRepository) GetUser(_ context.Context, id int64, scope tenant.Scope) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if u, ok := repo.db.users[id]; ok && scope.Allows(u.SchoolID) {
		return repo.load(u), nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, u := range repo.db.users {
		if u.Email == email {
			return repo.load(u), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

var userComparers = comparers[user.User]{
	"id":         byID(func(u user.User) int64 { return u.ID }),
	"name":       func(a, b user.User) int { return cmpFold(a.Name, b.Name) },
	"email":      func(a, b user.User) int { return cmpFold(a.Email, b.Email) },
	"status":     func(a, b user.User) int { return cmpFold(string(a.Status), string(b.Status)) },
	"created_at": func(a, b user.User) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	"last_login": func(a, b user.User) int { return cmpTimePtr(a.LastLogin, b.LastLogin) },
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0)
	for _, u := range repo.db.users {
		if !scope.Allows(u.SchoolID) {
			continue
		}
		if filter.Search != "" && !containsFold(filter.Search, u.Name, u.Email, u.CPF) {
			continue
		}
		if filter.RoleID != 0 && u.RoleID != filter.RoleID {
			continue
		}
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		users = append(users, repo.load(u))
	}
	sortRows(users, ordering, userComparers, asc("name"), asc("id"))
	return paginate(users, page), nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	// login state has its own writer
	usr.FailedLogins = orig.FailedLogins
	usr.LockedUntil = orig.LockedUntil
	usr.LastLogin = orig.LastLogin
	usr.CreatedAt = orig.CreatedAt
	repo.db.users[usr.ID] = &usr
	return repo.load(&usr), nil
}

func (repo *userRepository) UpdateLoginState(_ context.Context, usr user.User) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.ErrNotFound
	}
	orig.FailedLogins = usr.FailedLogins
	orig.LockedUntil = copyTime(usr.LockedUntil)
	orig.LastLogin = copyTime(usr.LastLogin)
	return nil
}

func (repo *userRepository) DeleteUser(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(repo.db.users, id)
	return nil
}
