package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
	"github.com/fedimaraquino/dossie-escolar-sub000/services/backup"
)

type adminApi struct {
	recorder *audit.Recorder
	backups  *backup.Service
	resolver *role.Resolver
	users    *user.Service
}

func registerAdminAPI(g *echo.Group, guard permissionGuard, recorder *audit.Recorder, backups *backup.Service, resolver *role.Resolver, users *user.Service) {
	api := adminApi{
		recorder: recorder,
		backups:  backups,
		resolver: resolver,
		users:    users,
	}

	ag := g.Group("/admin")
	ag.GET("/audit-logs", api.auditLogs, guard(role.ModuleAdmin, role.ActionLogs))
	ag.GET("/system-logs", api.systemLogs, guard(role.ModuleAdmin, role.ActionLogs))
	ag.GET("/backups", api.queryBackups, guard(role.ModuleAdmin, role.ActionBackup))
	ag.POST("/backups", api.runBackup, guard(role.ModuleAdmin, role.ActionBackup))
	ag.GET("/cache", api.cacheStats, guard(role.ModuleAdmin, role.ActionTotal))
	ag.DELETE("/cache", api.clearCache, guard(role.ModuleAdmin, role.ActionTotal))
	ag.POST("/cache/warm", api.warmCache, guard(role.ModuleAdmin, role.ActionTotal))
}

func bindLogFilter(ctx echo.Context) audit.QueryFilter {
	var filter audit.QueryFilter
	_ = ctx.Bind(&filter)
	filter.Clean()
	tr := new(TimeRange)
	tr.Bind(ctx)
	filter.From, filter.To = tr.From, tr.To
	return filter
}

// Handlers

func (api *adminApi) auditLogs(ctx echo.Context) error {
	scope, err := contextScope(ctx)
	if err != nil {
		return err
	}
	logs, err := api.recorder.Query(ctx.Request().Context(), bindLogFilter(ctx), scope, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying audit logs")
	}
	if logs == nil {
		logs = []audit.Log{}
	}
	return ctx.JSON(http.StatusOK, logs)
}

// systemLogs are not tied to a school: only the super role reads them.
func (api *adminApi) systemLogs(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if !sess.IsSuper() {
		return core.ErrForbidden
	}
	logs, err := api.recorder.QuerySystem(ctx.Request().Context(), bindLogFilter(ctx), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying system logs")
	}
	if logs == nil {
		logs = []audit.SystemLog{}
	}
	return ctx.JSON(http.StatusOK, logs)
}

func (api *adminApi) queryBackups(ctx echo.Context) error {
	if api.backups == nil {
		return errBackupsDisabled
	}
	backups, err := api.backups.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing backups")
	}
	if backups == nil {
		backups = []backup.Backup{}
	}
	return ctx.JSON(http.StatusOK, backups)
}

// runBackup dumps the database synchronously. The outcome is audited by the backup service.
func (api *adminApi) runBackup(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if api.backups == nil {
		return errBackupsDisabled
	}
	res, err := api.backups.Run(ctx.Request().Context(), sess.UserID)
	if err != nil {
		return errors.Wrap(err, "running backup")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *adminApi) cacheStats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.resolver.Stats())
}

func (api *adminApi) clearCache(ctx echo.Context) error {
	api.resolver.InvalidateAll()
	return ctx.NoContent(http.StatusNoContent)
}

// warmCache preloads the permissions of the active users, up to one page of them.
func (api *adminApi) warmCache(ctx echo.Context) error {
	c := ctx.Request().Context()
	users, err := api.users.Query(c, user.QueryFilter{Status: user.StatusActive}, tenant.AllSchools(), nil, core.Page{})
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	subs := make([]role.Subject, 0, len(users))
	for _, usr := range users {
		subs = append(subs, usr.Subject())
	}
	if err := api.resolver.Warm(c, subs...); err != nil {
		return errors.Wrap(err, "warming permission cache")
	}
	return ctx.JSON(http.StatusOK, api.resolver.Stats())
}
