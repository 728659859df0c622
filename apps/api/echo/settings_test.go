package echoapi

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
)

func putSetting(t *testing.T, app *testApp, token string, ss setting.SetSetting) (setting.Setting, int, string) {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPut, "/v1/settings", token, marchallObj(t, ss))
	app.ServeHTTP(rec, req)
	var s setting.Setting
	if rec.Code == http.StatusOK {
		unmarshal(t, rec, &s)
	}
	return s, rec.Code, rec.Body.String()
}

func resolveSetting(t *testing.T, app *testApp, token, key string) setting.Setting {
	t.Helper()
	req, rec := newAuthRequest(http.MethodGet, "/v1/settings/resolve?key="+key, token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s setting.Setting
	unmarshal(t, rec, &s)
	return s
}

func Test_settingApi_set(t *testing.T) {
	app := setup(t)
	superToken := app.token(t, app.super)
	homeID := app.home.ID

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", path: "/v1/settings", wantCode: http.StatusUnauthorized},
		{
			name: "school admins read but do not write", method: http.MethodPut, path: "/v1/settings", token: app.token(t, app.admin),
			body:     marchallObj(t, setting.SetSetting{Scope: setting.ScopeSchool, SchoolID: &homeID, Key: setting.KeyAllowExport, Value: "false"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "value must match the type", method: http.MethodPut, path: "/v1/settings", token: superToken,
			body:     marchallObj(t, setting.SetSetting{Scope: setting.ScopeGlobal, Key: setting.KeyMaxLoginAttempts, Value: "five"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "school scope needs a school", method: http.MethodPut, path: "/v1/settings", token: superToken,
			body:     marchallObj(t, setting.SetSetting{Scope: setting.ScopeSchool, Key: setting.KeyAllowExport, Value: "false"}),
			wantCode: http.StatusBadRequest,
		},
		{name: "unknown key", path: "/v1/settings/resolve?key=nope", token: app.token(t, app.guest), wantCode: http.StatusNotFound},
	})

	// built-in default until a row exists
	s := resolveSetting(t, app, app.token(t, app.guest), setting.KeyRetentionDays)
	assert.Equal(t, "2555", s.Value)
	assert.Equal(t, setting.ScopeGlobal, s.Scope)

	school, code, body := putSetting(t, app, superToken, setting.SetSetting{
		Scope: setting.ScopeSchool, SchoolID: &homeID, Key: " PERMITIR_EXPORTACAO ", Value: "false",
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, setting.KeyAllowExport, school.Key)
	assert.Equal(t, setting.TypeBoolean, school.Type)

	// the school row wins over the global one, only in that school
	assert.Equal(t, "false", resolveSetting(t, app, app.token(t, app.guest), setting.KeyAllowExport).Value)
	assert.Equal(t, "true", resolveSetting(t, app, app.token(t, app.alien), setting.KeyAllowExport).Value)

	// the user row wins over the school one
	guestID := app.guest.ID
	_, code, body = putSetting(t, app, superToken, setting.SetSetting{
		Scope: setting.ScopeUser, UserID: &guestID, Key: setting.KeyAllowExport, Value: "true",
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "true", resolveSetting(t, app, app.token(t, app.guest), setting.KeyAllowExport).Value)
	assert.Equal(t, "false", resolveSetting(t, app, app.token(t, app.oper), setting.KeyAllowExport).Value)

	// a second write keeps the row and records the change
	again, code, body := putSetting(t, app, superToken, setting.SetSetting{
		Scope: setting.ScopeSchool, SchoolID: &homeID, Key: setting.KeyAllowExport, Value: "true",
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, school.ID, again.ID)

	req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/v1/settings/%d/history", school.ID), app.token(t, app.admin))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var hist []setting.History
	unmarshal(t, rec, &hist)
	require.Len(t, hist, 1)
	assert.Equal(t, "false", hist[0].OldValue)
	assert.Equal(t, "true", hist[0].NewValue)
	require.NotNil(t, hist[0].ChangedBy)
	assert.Equal(t, app.super.ID, *hist[0].ChangedBy)

	assert.Contains(t, app.AuditActions(t), audit.ActionSettingChanged)
}

func Test_settingApi_queryDelete(t *testing.T) {
	app := setup(t)
	superToken := app.token(t, app.super)
	homeID, otherID := app.home.ID, app.other.ID

	home, code, body := putSetting(t, app, superToken, setting.SetSetting{Scope: setting.ScopeSchool, SchoolID: &homeID, Key: setting.KeyAllowDownload, Value: "false"})
	require.Equal(t, http.StatusOK, code, body)
	other, code, body := putSetting(t, app, superToken, setting.SetSetting{Scope: setting.ScopeSchool, SchoolID: &otherID, Key: setting.KeyAllowDownload, Value: "false"})
	require.Equal(t, http.StatusOK, code, body)

	adminToken := app.token(t, app.admin)
	runHTTPTests(t, app, []httpTest{
		{name: "school rows of the session school", path: "/v1/settings?scope=school", token: adminToken, wantData: marchallList(t, home)},
		{name: "another school is forbidden", path: fmt.Sprintf("/v1/settings?school_id=%d", otherID), token: adminToken, wantCode: http.StatusForbidden},
		{name: "another school row is hidden", path: fmt.Sprintf("/v1/settings/%d", other.ID), token: adminToken, wantCode: http.StatusNotFound},
		{name: "retrieve", path: fmt.Sprintf("/v1/settings/%d", home.ID), token: adminToken, wantData: marchallObj(t, home)},
		{name: "school admins cannot delete", method: http.MethodDelete, path: fmt.Sprintf("/v1/settings/%d", home.ID), token: adminToken, wantCode: http.StatusForbidden},
		{name: "deleted", method: http.MethodDelete, path: fmt.Sprintf("/v1/settings/%d", home.ID), token: superToken, wantCode: http.StatusNoContent},
		{name: "gone", path: fmt.Sprintf("/v1/settings/%d", home.ID), token: superToken, wantCode: http.StatusNotFound},
	})

	// back to the global value
	assert.Equal(t, "true", resolveSetting(t, app, adminToken, setting.KeyAllowDownload).Value)
}
