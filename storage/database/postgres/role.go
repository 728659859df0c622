package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
)

type (
	roleRow struct {
		ID          int64       `db:"id"`
		Name        string      `db:"name"`
		Description null.String `db:"description"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	permissionRow struct {
		ID          int64       `db:"id"`
		Name        string      `db:"name"`
		Description null.String `db:"description"`
		Module      string      `db:"module"`
		Action      string      `db:"action"`
	}

	roleRepository struct {
		db *sqlx.DB
	}
)

var _ role.Repository = (*roleRepository)(nil) // interface compliance check

func NewRoleRepository(db *sqlx.DB) *roleRepository {
	return &roleRepository{db: db}
}

func toRoleRow(r role.Role) roleRow {
	return roleRow{
		ID:          r.ID,
		Name:        r.Name,
		Description: nullString(r.Description),
		CreatedAt:   utc(r.CreatedAt),
		UpdatedAt:   utc(r.UpdatedAt),
	}
}

func (row roleRow) toRole() role.Role {
	return role.Role{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description.String,
		CreatedAt:   utc(row.CreatedAt),
		UpdatedAt:   utc(row.UpdatedAt),
	}
}

func (row permissionRow) toPermission() role.Permission {
	return role.Permission{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description.String,
		Module:      role.Module(row.Module),
		Action:      role.Action(row.Action),
	}
}

func permissions(rows []permissionRow) []role.Permission {
	perms := make([]role.Permission, 0, len(rows))
	for _, row := range rows {
		perms = append(perms, row.toPermission())
	}
	return perms
}

func (repo *roleRepository) RolePermissions(ctx context.Context, roleID int64) ([]role.Permission, error) {
	var exists bool
	if err := repo.db.GetContext(ctx, &exists, "SELECT true FROM roles WHERE id = $1", roleID); err != nil {
		return nil, trapNoRowsErr(err, role.ErrNotFound, "finding role")
	}
	var rows []permissionRow
	q := `SELECT p.id, p.name, p.description, p.module, p.action
		FROM permissions p JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1 ORDER BY p.name`
	if err := repo.db.SelectContext(ctx, &rows, q, roleID); err != nil {
		return nil, errors.Wrap(err, "querying role permissions")
	}
	return permissions(rows), nil
}

func (repo *roleRepository) CreateRole(ctx context.Context, r role.Role) (role.Role, error) {
	row := toRoleRow(r)
	q := `INSERT INTO roles (name, description, created_at, updated_at)
		VALUES (:name, :description, :created_at, :updated_at) RETURNING id`
	id, err := insert(ctx, repo.db, q, row)
	if err != nil {
		if isUniqueViolation(err) {
			return role.Role{}, role.ErrNameExists
		}
		return role.Role{}, errors.Wrap(err, "inserting role")
	}
	row.ID = id
	return row.toRole(), nil
}

const roleColumns = "id, name, description, created_at, updated_at"

func (repo *roleRepository) GetRole(ctx context.Context, id int64) (role.Role, error) {
	var row roleRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+roleColumns+" FROM roles WHERE id = $1", id); err != nil {
		return role.Role{}, trapNoRowsErr(err, role.ErrNotFound, "finding role")
	}
	return row.toRole(), nil
}

func (repo *roleRepository) GetRoleByName(ctx context.Context, name string) (role.Role, error) {
	var row roleRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+roleColumns+" FROM roles WHERE lower(name) = lower($1)", name); err != nil {
		return role.Role{}, trapNoRowsErr(err, role.ErrNotFound, "finding role by name")
	}
	return row.toRole(), nil
}

func (repo *roleRepository) QueryRoles(ctx context.Context) ([]role.Role, error) {
	var rows []roleRow
	if err := repo.db.SelectContext(ctx, &rows, "SELECT "+roleColumns+" FROM roles ORDER BY name"); err != nil {
		return nil, errors.Wrap(err, "querying roles")
	}
	roles := make([]role.Role, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, row.toRole())
	}
	return roles, nil
}

func (repo *roleRepository) UpdateRole(ctx context.Context, r role.Role) (role.Role, error) {
	q := `UPDATE roles SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	if err := updateOne(ctx, repo.db, q, toRoleRow(r), role.ErrNotFound); err != nil {
		if isUniqueViolation(err) {
			return role.Role{}, role.ErrNameExists
		}
		if err == role.ErrNotFound {
			return role.Role{}, err
		}
		return role.Role{}, errors.Wrap(err, "updating role")
	}
	return r, nil
}

func (repo *roleRepository) DeleteRole(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM roles WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting role")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return role.ErrNotFound
	}
	return nil
}

func (repo *roleRepository) CountRoleUsers(ctx context.Context, id int64) (int, error) {
	var n int
	if err := repo.db.GetContext(ctx, &n, "SELECT count(*) FROM users WHERE role_id = $1", id); err != nil {
		return 0, errors.Wrap(err, "counting role users")
	}
	return n, nil
}

func (repo *roleRepository) EnsurePermissions(ctx context.Context, perms []role.Permission) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO permissions (name, description, module, action)
			VALUES (:name, :description, :module, :action) ON CONFLICT (name) DO NOTHING`
		for _, p := range perms {
			row := permissionRow{Name: p.Name, Description: nullString(p.Description), Module: string(p.Module), Action: string(p.Action)}
			if _, err := sqlx.NamedExecContext(ctx, tx, q, row); err != nil {
				return errors.Wrap(err, "inserting permission "+p.Name)
			}
		}
		return nil
	})
}

func (repo *roleRepository) QueryPermissions(ctx context.Context) ([]role.Permission, error) {
	var rows []permissionRow
	q := "SELECT id, name, description, module, action FROM permissions ORDER BY module, action"
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying permissions")
	}
	return permissions(rows), nil
}

// SetRolePermissions replaces the grants of roleID in one transaction.
func (repo *roleRepository) SetRolePermissions(ctx context.Context, roleID int64, names []string) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var ids []int64
		if err := tx.SelectContext(ctx, &ids, "SELECT id FROM permissions WHERE name = ANY($1)", pq.Array(names)); err != nil {
			return errors.Wrap(err, "finding permissions")
		}
		if len(ids) != len(uniq(names)) {
			return role.ErrUnknownPermission
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id = $1", roleID); err != nil {
			return errors.Wrap(err, "clearing role permissions")
		}
		q := `INSERT INTO role_permissions (role_id, permission_id) SELECT $1, unnest($2::bigint[])`
		if _, err := tx.ExecContext(ctx, q, roleID, pq.Array(ids)); err != nil {
			return errors.Wrap(err, "granting role permissions")
		}
		return nil
	})
}

func uniq(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
