// Package pgrepos implements the repositories on PostgreSQL with sqlx.
package pgrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique index violation, optionally on the named constraint.
func isUniqueViolation(err error, constraint ...string) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok || pqErr.Code != uniqueViolation {
		return false
	}
	return len(constraint) == 0 || pqErr.Constraint == constraint[0]
}

// trapNoRowsErr maps "no rows" to the notFound error of the calling repository.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// withTx runs fn in a transaction, rolled back when fn fails.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// insert runs a named INSERT ... RETURNING id.
func insert(ctx context.Context, ext sqlx.ExtContext, query string, arg interface{}) (int64, error) {
	rows, err := sqlx.NamedQueryContext(ctx, ext, query, arg)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	var id int64
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
	}
	return id, rows.Err()
}

// updateOne runs a named UPDATE or DELETE and returns notFound when no row matched.
func updateOne(ctx context.Context, ext sqlx.ExtContext, query string, arg interface{}, notFound error) error {
	res, err := sqlx.NamedExecContext(ctx, ext, query, arg)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// conds accumulates AND-ed WHERE conditions written with `?` placeholders.
type conds struct {
	parts []string
	args  []interface{}
}

func (c *conds) add(expr string, args ...interface{}) {
	c.parts = append(c.parts, expr)
	c.args = append(c.args, args...)
}

// search matches term case-insensitively against any of columns.
func (c *conds) search(term string, columns ...string) {
	if term == "" {
		return
	}
	like := "%" + term + "%"
	ors := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, col := range columns {
		ors = append(ors, col+" ILIKE ?")
		args = append(args, like)
	}
	c.add("("+strings.Join(ors, " OR ")+")", args...)
}

// scope filters column on the scope's school unless it is unscoped.
func (c *conds) scope(sc tenant.Scope, column string) {
	if !sc.All {
		c.add(column+" = ?", sc.SchoolID)
	}
}

func (c conds) where() string {
	if len(c.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.parts, " AND ")
}

// selectQuery renders base + conditions + ordering + page, bound for postgres.
func selectQuery(base string, c conds, orderBy string, page core.Page) (string, []interface{}) {
	q := base + c.where()
	if orderBy != "" {
		q += " ORDER BY " + orderBy
	}
	args := c.args
	if page.Limit > 0 {
		page = page.Clean()
		q += " LIMIT ? OFFSET ?"
		args = append(args, page.Limit, page.Offset)
	}
	return sqlx.Rebind(sqlx.DOLLAR, q), args
}

func excludedIDs(ids []int64) (string, []interface{}) {
	if len(ids) == 0 {
		return "", nil
	}
	q, args, _ := sqlx.In("id NOT IN (?)", ids)
	return q, args
}

func nullString(s string) null.String { return null.NewString(s, s != "") }

func nullID(id int64) null.Int64 { return null.NewInt64(id, id != 0) }

func utc(t time.Time) time.Time { return t.UTC() }

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}
