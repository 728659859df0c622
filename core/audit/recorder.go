package audit

import (
	"context"
	"time"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

// writeTimeout bounds a background write, it is detached from the request context.
const writeTimeout = 5 * time.Second

type (
	Repository interface {
		CreateAuditLog(ctx context.Context, l Log) (Log, error)
		QueryAuditLogs(ctx context.Context, filter QueryFilter, scope tenant.Scope, page core.Page) ([]Log, error)
		CreateSystemLog(ctx context.Context, l SystemLog) (SystemLog, error)
		QuerySystemLogs(ctx context.Context, filter QueryFilter, page core.Page) ([]SystemLog, error)
	}

	// Recorder appends audit rows in the background. A failed write is logged and never reaches the caller.
	Recorder struct {
		repo   Repository
		logger core.Logger
		goFunc func(fn func())
	}
)

func NewRecorder(repo Repository, logger core.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger,
		goFunc: func(fn func()) { go fn() },
	}
}

// NewRecorderMock returns a Recorder that writes synchronously.
func NewRecorderMock(repo Repository, logger core.Logger) *Recorder {
	rec := NewRecorder(repo, logger)
	rec.goFunc = func(fn func()) { fn() }
	return rec
}

// Record appends l, stamping At when unset.
func (rec *Recorder) Record(l Log) {
	if l.At.IsZero() {
		l.At = core.Now()
	}
	rec.goFunc(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if _, err := rec.repo.CreateAuditLog(ctx, l); err != nil {
			rec.logger.Error("recording audit log", err, map[string]interface{}{"action": string(l.Action)})
		}
	})
}

// System appends an application event.
func (rec *Recorder) System(level Level, module, function, message string, userID *int64) {
	l := SystemLog{Level: level, Module: module, Function: function, Message: message, UserID: userID, At: core.Now()}
	rec.goFunc(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if _, err := rec.repo.CreateSystemLog(ctx, l); err != nil {
			rec.logger.Error("recording system log", err, map[string]interface{}{"module": module})
		}
	})
}

func (rec *Recorder) Query(ctx context.Context, filter QueryFilter, scope tenant.Scope, page core.Page) ([]Log, error) {
	return rec.repo.QueryAuditLogs(ctx, filter, scope, page.Clean())
}

func (rec *Recorder) QuerySystem(ctx context.Context, filter QueryFilter, page core.Page) ([]SystemLog, error) {
	return rec.repo.QuerySystemLogs(ctx, filter, page.Clean())
}

// Int64Ptr is a helper for optional ids.
func Int64Ptr(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
