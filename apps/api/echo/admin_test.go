package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/tests"
)

func Test_adminApi_auditLogs(t *testing.T) {
	app := setup(t)
	app.CreateDossier(t, app.oper, "001", "Ana Souza")

	// one login per school
	require.Equal(t, http.StatusOK, login(t, app, app.oper.Email, testutil.Password, "10.1.0.1").code)
	require.Equal(t, http.StatusOK, login(t, app, app.alien.Email, testutil.Password, "10.1.0.2").code)

	superToken := app.token(t, app.super)
	runHTTPTests(t, app, []httpTest{
		{name: "school admins have no admin module", path: "/v1/admin/audit-logs", token: app.token(t, app.admin), wantCode: http.StatusForbidden},
		{name: "bad time range", path: "/v1/admin/audit-logs?from=yesterday", token: superToken},
	})

	var logs []audit.Log
	req, rec := newAuthRequest(http.MethodGet, "/v1/admin/audit-logs?action=LOGIN_SUCESSO", superToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshal(t, rec, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, app.oper.ID, *logs[0].UserID)

	req, rec = newAuthRequest(http.MethodGet, "/v1/admin/audit-logs?action=LOGIN_SUCESSO&all_schools=true", superToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshal(t, rec, &logs)
	require.Len(t, logs, 2)
	// newest first
	assert.Equal(t, app.alien.ID, *logs[0].UserID)
	assert.Equal(t, "10.1.0.2", logs[0].IP)
}

func Test_adminApi_systemLogs(t *testing.T) {
	app := setup(t)

	// a custom role holding admin/logs still does not reach the system logs
	ctx := context.Background()
	auditor, err := app.Roles.Create(ctx, role.NewRole{Name: "Auditoria"})
	require.NoError(t, err)
	require.NoError(t, app.Roles.SetPermissions(ctx, auditor, []role.Permission{{Module: role.ModuleAdmin, Action: role.ActionLogs}}))
	usr := app.CreateUser(t, "Auditor", "auditor@escola.br", "", "Auditoria", app.home.ID)

	runHTTPTests(t, app, []httpTest{
		{name: "super role only", path: "/v1/admin/system-logs", token: app.token(t, usr), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "audit logs are fine", path: "/v1/admin/audit-logs", token: app.token(t, usr)},
		{name: "super", path: "/v1/admin/system-logs", token: app.token(t, app.super)},
	})
}

func Test_adminApi_backupsAndCache(t *testing.T) {
	app := setup(t)
	superToken := app.token(t, app.super)
	notConfigured := marchallObj(t, httpErr{Error: "backups are not configured"})

	// warm the permission cache
	req, rec := newAuthRequest(http.MethodGet, "/v1/permissions/check?module=dossie&action=criar", app.token(t, app.oper))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	runHTTPTests(t, app, []httpTest{
		{name: "backups need the admin module", path: "/v1/admin/backups", token: app.token(t, app.admin), wantCode: http.StatusForbidden},
		{name: "list without a backup job", path: "/v1/admin/backups", token: superToken, wantCode: http.StatusServiceUnavailable, wantData: notConfigured},
		{name: "run without a backup job", method: http.MethodPost, path: "/v1/admin/backups", token: superToken, wantCode: http.StatusServiceUnavailable, wantData: notConfigured},
	})

	req, rec = newAuthRequest(http.MethodGet, "/v1/admin/cache", superToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats role.CacheStats
	unmarshal(t, rec, &stats)
	assert.NotZero(t, stats.Total)

	runHTTPTests(t, app, []httpTest{
		{name: "clear", method: http.MethodDelete, path: "/v1/admin/cache", token: superToken, wantCode: http.StatusNoContent},
		{name: "stats after clear", path: "/v1/admin/cache", token: superToken, wantData: marchallObj(t, role.CacheStats{})},
		{name: "warm needs the super role", method: http.MethodPost, path: "/v1/admin/cache/warm", token: app.token(t, app.admin), wantCode: http.StatusForbidden},
	})

	req, rec = newAuthRequest(http.MethodPost, "/v1/admin/cache/warm", superToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshal(t, rec, &stats)
	// every active user but the super role one
	assert.Equal(t, 4, stats.Total)
	assert.Zero(t, stats.Expired)
}
