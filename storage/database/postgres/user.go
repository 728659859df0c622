package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
)

type (
	userRow struct {
		ID           int64       `db:"id"`
		Name         string      `db:"name"`
		CPF          null.String `db:"cpf"`
		Email        string      `db:"email"`
		Phone        null.String `db:"phone"`
		SchoolID     int64       `db:"school_id"`
		RoleID       int64       `db:"role_id"`
		RoleName     null.String `db:"role_name"`
		Status       string      `db:"status"`
		PasswordHash []byte      `db:"password_hash"`
		FailedLogins int         `db:"failed_logins"`
		LockedUntil  null.Time   `db:"locked_until"`
		LastLogin    null.Time   `db:"last_login"`
		Photo        null.String `db:"photo"`
		CreatedAt    time.Time   `db:"created_at"`
		UpdatedAt    time.Time   `db:"updated_at"`
	}

	userRepository struct {
		db *sqlx.DB
	}
)

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		CPF:          nullString(usr.CPF),
		Email:        usr.Email,
		Phone:        nullString(usr.Phone),
		SchoolID:     usr.SchoolID,
		RoleID:       usr.RoleID,
		Status:       string(usr.Status),
		PasswordHash: usr.PasswordHash,
		FailedLogins: usr.FailedLogins,
		LockedUntil:  nullTime(usr.LockedUntil),
		LastLogin:    nullTime(usr.LastLogin),
		Photo:        nullString(usr.Photo),
		CreatedAt:    utc(usr.CreatedAt),
		UpdatedAt:    utc(usr.UpdatedAt),
	}
}

func (row userRow) toUser() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		CPF:          row.CPF.String,
		Email:        row.Email,
		Phone:        row.Phone.String,
		SchoolID:     row.SchoolID,
		RoleID:       row.RoleID,
		RoleName:     row.RoleName.String,
		Status:       user.Status(row.Status),
		PasswordHash: row.PasswordHash,
		FailedLogins: row.FailedLogins,
		LockedUntil:  utcPtr(row.LockedUntil),
		LastLogin:    utcPtr(row.LastLogin),
		Photo:        row.Photo.String,
		CreatedAt:    utc(row.CreatedAt),
		UpdatedAt:    utc(row.UpdatedAt),
	}
}

const userSelect = `SELECT u.id, u.name, u.cpf, u.email, u.phone, u.school_id, u.role_id, r.name AS role_name,
	u.status, u.password_hash, u.failed_logins, u.locked_until, u.last_login, u.photo, u.created_at, u.updated_at
	FROM users u LEFT JOIN roles r ON r.id = u.role_id`

var userColumns = map[string]string{
	"id":         "u.id",
	"name":       "u.name",
	"email":      "u.email",
	"status":     "u.status",
	"created_at": "u.created_at",
	"last_login": "u.last_login",
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	var c conds
	c.add("email = ?", email)
	ids := make([]int64, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		ids = append(ids, u.ID)
	}
	if q, args := excludedIDs(ids); q != "" {
		c.add(q, args...)
	}
	q, args := selectQuery("SELECT count(*) FROM users", c, "", core.Page{})
	var n int
	if err := repo.db.GetContext(ctx, &n, q, args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if n > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) get(ctx context.Context, c conds) (user.User, error) {
	q, args := selectQuery(userSelect, c, "", core.Page{})
	var row userRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `INSERT INTO users (name, cpf, email, phone, school_id, role_id, status, password_hash,
		failed_logins, locked_until, last_login, photo, created_at, updated_at)
		VALUES (:name, :cpf, :email, :phone, :school_id, :role_id, :status, :password_hash,
		:failed_logins, :locked_until, :last_login, :photo, :created_at, :updated_at) RETURNING id`
	id, err := insert(ctx, repo.db, q, toUserRow(usr))
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	usr.ID = id
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, id int64, scope tenant.Scope) (user.User, error) {
	var c conds
	c.add("u.id = ?", id)
	c.scope(scope, "u.school_id")
	return repo.get(ctx, c)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var c conds
	c.add("u.email = ?", email)
	return repo.get(ctx, c)
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]user.User, error) {
	var c conds
	c.scope(scope, "u.school_id")
	c.search(filter.Search, "u.name", "u.email", "u.cpf")
	if filter.RoleID != 0 {
		c.add("u.role_id = ?", filter.RoleID)
	}
	if filter.Status != "" {
		c.add("u.status = ?", string(filter.Status))
	}

	orderBy := core.OrderByClause(ordering, userColumns, "u.name ASC, u.id ASC")
	q, args := selectQuery(userSelect, c, orderBy, page)
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

// UpdateUser writes everything but the login state, see UpdateLoginState.
func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET name = :name, cpf = :cpf, email = :email, phone = :phone, school_id = :school_id,
		role_id = :role_id, status = :status, password_hash = :password_hash, photo = :photo, updated_at = :updated_at
		WHERE id = :id`
	if err := updateOne(ctx, repo.db, q, toUserRow(usr), user.ErrNotFound); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		if err == user.ErrNotFound {
			return user.User{}, err
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return repo.GetUser(ctx, usr.ID, tenant.AllSchools())
}

func (repo *userRepository) UpdateLoginState(ctx context.Context, usr user.User) error {
	q := `UPDATE users SET failed_logins = :failed_logins, locked_until = :locked_until, last_login = :last_login
		WHERE id = :id`
	if err := updateOne(ctx, repo.db, q, toUserRow(usr), user.ErrNotFound); err != nil {
		if err == user.ErrNotFound {
			return err
		}
		return errors.Wrap(err, "updating login state")
	}
	return nil
}

func (repo *userRepository) DeleteUser(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrNotFound
	}
	return nil
}
