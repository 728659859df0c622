package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

type (
	auditLogRow struct {
		ID        int64       `db:"id"`
		UserID    null.Int64  `db:"user_id"`
		Action    string      `db:"action"`
		Target    null.String `db:"target"`
		IP        null.String `db:"ip"`
		UserAgent null.String `db:"user_agent"`
		Detail    null.String `db:"detail"`
		SchoolID  null.Int64  `db:"school_id"`
		At        time.Time   `db:"at"`
	}

	systemLogRow struct {
		ID       int64       `db:"id"`
		Level    string      `db:"level"`
		Module   string      `db:"module"`
		Function null.String `db:"function"`
		Message  string      `db:"message"`
		UserID   null.Int64  `db:"user_id"`
		At       time.Time   `db:"at"`
	}

	auditRepository struct {
		db *sqlx.DB
	}
)

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *sqlx.DB) *auditRepository {
	return &auditRepository{db: db}
}

func (row auditLogRow) toLog() audit.Log {
	return audit.Log{
		ID:        row.ID,
		UserID:    row.UserID.Ptr(),
		Action:    audit.Action(row.Action),
		Target:    row.Target.String,
		IP:        row.IP.String,
		UserAgent: row.UserAgent.String,
		Detail:    row.Detail.String,
		SchoolID:  row.SchoolID.Ptr(),
		At:        utc(row.At),
	}
}

func (row systemLogRow) toSystemLog() audit.SystemLog {
	return audit.SystemLog{
		ID:       row.ID,
		Level:    audit.Level(row.Level),
		Module:   row.Module,
		Function: row.Function.String,
		Message:  row.Message,
		UserID:   row.UserID.Ptr(),
		At:       utc(row.At),
	}
}

// timeRange adds the From/To bounds of filter on column.
func timeRange(c *conds, filter audit.QueryFilter, column string) {
	if !filter.From.IsZero() {
		c.add(column+" >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		c.add(column+" <= ?", filter.To.UTC())
	}
}

func (repo *auditRepository) CreateAuditLog(ctx context.Context, l audit.Log) (audit.Log, error) {
	row := auditLogRow{
		UserID:    null.Int64FromPtr(l.UserID),
		Action:    string(l.Action),
		Target:    nullString(l.Target),
		IP:        nullString(l.IP),
		UserAgent: nullString(l.UserAgent),
		Detail:    nullString(l.Detail),
		SchoolID:  null.Int64FromPtr(l.SchoolID),
		At:        utc(l.At),
	}
	q := `INSERT INTO audit_logs (user_id, action, target, ip, user_agent, detail, school_id, at)
		VALUES (:user_id, :action, :target, :ip, :user_agent, :detail, :school_id, :at) RETURNING id`
	id, err := insert(ctx, repo.db, q, row)
	if err != nil {
		return audit.Log{}, errors.Wrap(err, "inserting audit log")
	}
	l.ID = id
	return l, nil
}

func (repo *auditRepository) QueryAuditLogs(ctx context.Context, filter audit.QueryFilter, scope tenant.Scope, page core.Page) ([]audit.Log, error) {
	var c conds
	c.scope(scope, "school_id")
	if filter.UserID != 0 {
		c.add("user_id = ?", filter.UserID)
	}
	if filter.Action != "" {
		c.add("action = ?", filter.Action)
	}
	timeRange(&c, filter, "at")

	q, args := selectQuery(`SELECT id, user_id, action, target, ip, user_agent, detail, school_id, at FROM audit_logs`,
		c, "at DESC, id DESC", page)
	var rows []auditLogRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying audit logs")
	}
	logs := make([]audit.Log, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, row.toLog())
	}
	return logs, nil
}

func (repo *auditRepository) CreateSystemLog(ctx context.Context, l audit.SystemLog) (audit.SystemLog, error) {
	row := systemLogRow{
		Level:    string(l.Level),
		Module:   l.Module,
		Function: nullString(l.Function),
		Message:  l.Message,
		UserID:   null.Int64FromPtr(l.UserID),
		At:       utc(l.At),
	}
	q := `INSERT INTO system_logs (level, module, function, message, user_id, at)
		VALUES (:level, :module, :function, :message, :user_id, :at) RETURNING id`
	id, err := insert(ctx, repo.db, q, row)
	if err != nil {
		return audit.SystemLog{}, errors.Wrap(err, "inserting system log")
	}
	l.ID = id
	return l, nil
}

func (repo *auditRepository) QuerySystemLogs(ctx context.Context, filter audit.QueryFilter, page core.Page) ([]audit.SystemLog, error) {
	var c conds
	if filter.Level != "" {
		c.add("level = ?", filter.Level)
	}
	if filter.UserID != 0 {
		c.add("user_id = ?", filter.UserID)
	}
	timeRange(&c, filter, "at")

	q, args := selectQuery(`SELECT id, level, module, function, message, user_id, at FROM system_logs`,
		c, "at DESC, id DESC", page)
	var rows []systemLogRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying system logs")
	}
	logs := make([]audit.SystemLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, row.toSystemLog())
	}
	return logs, nil
}
