package inmemdb

import (
	"context"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

type auditRepository struct {
	db *DB
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) *auditRepository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) CreateAuditLog(_ context.Context, l audit.Log) (audit.Log, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	l.ID = repo.db.nextPK()
	repo.db.auditLogs = append(repo.db.auditLogs, l)
	return l, nil
}

// QueryAuditLogs returns the newest rows first. Rows without a school are only visible to unscoped queries.
func (repo *auditRepository) QueryAuditLogs(_ context.Context, filter audit.QueryFilter, scope tenant.Scope, page core.Page) ([]audit.Log, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	logs := make([]audit.Log, 0)
	for i := len(repo.db.auditLogs) - 1; i >= 0; i-- {
		l := repo.db.auditLogs[i]
		if !scope.All && (l.SchoolID == nil || *l.SchoolID != scope.SchoolID) {
			continue
		}
		if !filter.Matches(l.UserID, string(l.Action), l.At) {
			continue
		}
		logs = append(logs, l)
	}
	return paginate(logs, page), nil
}

func (repo *auditRepository) CreateSystemLog(_ context.Context, l audit.SystemLog) (audit.SystemLog, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	l.ID = repo.db.nextPK()
	repo.db.systemLogs = append(repo.db.systemLogs, l)
	return l, nil
}

func (repo *auditRepository) QuerySystemLogs(_ context.Context, filter audit.QueryFilter, page core.Page) ([]audit.SystemLog, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	logs := make([]audit.SystemLog, 0)
	for i := len(repo.db.systemLogs) - 1; i >= 0; i-- {
		l := repo.db.systemLogs[i]
		if filter.Level != "" && string(l.Level) != filter.Level {
			continue
		}
		if !filter.Matches(l.UserID, "", l.At) {
			continue
		}
		logs = append(logs, l)
	}
	return paginate(logs, page), nil
}
