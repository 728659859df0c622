package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
	"github.com/fedimaraquino/dossie-escolar-sub000/tests"
)

func login(t *testing.T, app *testApp, email, pwd, ip string) *httpTestResult {
	t.Helper()
	req, rec := newRequest(http.MethodPost, "/v1/auth/login", marchallObj(t, LoginRequest{Email: email, Password: pwd}))
	req.Header.Set("X-Real-IP", ip)
	app.ServeHTTP(rec, req)
	return &httpTestResult{code: rec.Code, body: rec.Body.String(), cookies: rec.Result().Cookies()}
}

type httpTestResult struct {
	code    int
	body    string
	cookies []*http.Cookie
}

func Test_authApi_login(t *testing.T) {
	app := setup(t)
	inactive := app.CreateUser(t, "Inativo", "inativo@escola.br", testutil.Password, role.Operator, app.home.ID)
	app.Deactivate(t, inactive)

	tests := []httpTest{
		{
			name: "invalid data", method: http.MethodPost, path: "/v1/auth/login", body: marchallObj(t, LoginRequest{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/v1/auth/login",
			body:     marchallObj(t, LoginRequest{Email: "ninguem@escola.br", Password: testutil.Password}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/auth/login",
			body:     marchallObj(t, LoginRequest{Email: app.oper.Email, Password: "nope"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "inactive account", method: http.MethodPost, path: "/v1/auth/login",
			body:     marchallObj(t, LoginRequest{Email: inactive.Email, Password: testutil.Password}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("success", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/login", marchallObj(t, LoginRequest{Email: " OPERADOR@escola.br ", Password: testutil.Password}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp LoginResponse
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, app.oper.ID, resp.User.ID)
		assert.Equal(t, app.home.ID, resp.Session.SchoolID())
		assert.False(t, resp.Session.CanSwitchSchool)
		assert.NotNil(t, resp.User.LastLogin)
		assert.Zero(t, resp.User.FailedLogins)

		var cookie *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == app.Conf.Server.CookieName {
				cookie = c
			}
		}
		require.NotNil(t, cookie)
		assert.Equal(t, resp.Token, cookie.Value)
		assert.True(t, cookie.HttpOnly)

		// the cookie alone authenticates
		req, rec = newRequest(http.MethodGet, "/v1/auth/me")
		req.AddCookie(cookie)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	assert.Contains(t, app.AuditActions(t), audit.ActionLogin)
	assert.Contains(t, app.AuditActions(t), audit.ActionLoginFailed)
}

func Test_authApi_loginLockout(t *testing.T) {
	app := setup(t)

	for i := 1; i <= app.Conf.Security.MaxLoginAttempts; i++ {
		res := login(t, app, app.oper.Email, "wrong-password", fmt.Sprintf("10.0.0.%d", i))
		assert.Equal(t, http.StatusBadRequest, res.code, "attempt %d", i)
		assert.JSONEq(t, `{"error":"invalid credentials"}`, res.body)
	}

	// locked: even the right password is refused
	res := login(t, app, app.oper.Email, testutil.Password, "10.0.1.1")
	require.Equal(t, http.StatusLocked, res.code, res.body)
	assert.Contains(t, res.body, `"remaining_minutes":30`)

	usr, err := app.UserRepo.GetUser(context.Background(), app.oper.ID, tenant.AllSchools())
	require.NoError(t, err)
	assert.Zero(t, usr.FailedLogins)
	require.NotNil(t, usr.LockedUntil)

	actions := app.AuditActions(t)
	assert.Contains(t, actions, audit.ActionUserLocked)

	sent := app.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, app.oper.Email, sent[0].To[0].Address)
	assert.Equal(t, "account_locked", sent[0].TemplateName)

	// an administrator unlocks the account
	req, rec := newAuthRequest(http.MethodPost, fmt.Sprintf("/v1/users/%d/unlock", app.oper.ID), app.token(t, app.admin))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res = login(t, app, app.oper.Email, testutil.Password, "10.0.1.2")
	assert.Equal(t, http.StatusOK, res.code, res.body)
}

func Test_authApi_loginIPBlock(t *testing.T) {
	app := setup(t)

	max := app.Conf.Security.IPMaxAttempts
	for i := 0; i < max; i++ {
		res := login(t, app, fmt.Sprintf("ghost%d@escola.br", i), "whatever", "192.0.2.10")
		assert.Equal(t, http.StatusBadRequest, res.code)
	}

	res := login(t, app, app.oper.Email, testutil.Password, "192.0.2.10")
	assert.Equal(t, http.StatusTooManyRequests, res.code, res.body)
	assert.Contains(t, res.body, "remaining_minutes")

	// other addresses are not affected
	res = login(t, app, app.oper.Email, testutil.Password, "192.0.2.11")
	assert.Equal(t, http.StatusOK, res.code, res.body)
}

func Test_authApi_me(t *testing.T) {
	app := setup(t)

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", path: "/v1/auth/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "invalid token", path: "/v1/auth/me", token: "not.a.jwt", wantCode: http.StatusUnauthorized},
	})

	tests := []struct {
		name      string
		usr       user.User
		wantMenus map[string]bool
		can       []role.Permission
		cannot    []role.Permission
	}{
		{
			name: "super role", usr: app.super,
			wantMenus: map[string]bool{"cadastro": true, "dossie": true, "movimentacao": true, "relatorio": true, "admin": true, "manutencao": true},
			can:       []role.Permission{{Module: role.ModuleAdmin, Action: role.ActionBackup}},
		},
		{
			name: "read only", usr: app.guest,
			wantMenus: map[string]bool{"cadastro": true, "dossie": true, "movimentacao": true, "relatorio": false, "admin": false, "manutencao": true},
			can:       []role.Permission{{Module: role.ModuleDossier, Action: role.ActionView}},
			cannot:    []role.Permission{{Module: role.ModuleDossier, Action: role.ActionCreate}, {Module: role.ModuleUser, Action: role.ActionView}},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/auth/me", app.token(t, tt.usr))
			app.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp MeResponse
			unmarshal(t, rec, &resp)
			assert.Equal(t, tt.usr.ID, resp.User.ID)
			assert.Equal(t, tt.wantMenus, resp.Menus)
			for _, p := range tt.can {
				assert.True(t, resp.Permissions.Has(p.Module, p.Action), "%s.%s", p.Module, p.Action)
			}
			for _, p := range tt.cannot {
				assert.False(t, resp.Permissions.Has(p.Module, p.Action), "%s.%s", p.Module, p.Action)
			}
		})
	}
}

func Test_authApi_switchSchool(t *testing.T) {
	app := setup(t)

	runHTTPTests(t, app, []httpTest{
		{
			name: "only the super role switches", method: http.MethodPost, path: "/v1/auth/switch-school",
			token: app.token(t, app.admin), body: marchallObj(t, SwitchSchoolRequest{SchoolID: app.other.ID}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "unknown school", method: http.MethodPost, path: "/v1/auth/switch-school",
			token: app.token(t, app.super), body: marchallObj(t, SwitchSchoolRequest{SchoolID: 9999}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
	})

	req, rec := newAuthRequest(http.MethodPost, "/v1/auth/switch-school", app.token(t, app.super), marchallObj(t, SwitchSchoolRequest{SchoolID: app.other.ID}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SessionResponse
	unmarshal(t, rec, &resp)
	assert.Equal(t, app.other.ID, resp.Session.SchoolID())
	assert.Equal(t, app.home.ID, resp.Session.HomeSchoolID)

	// the new token operates on the other school
	app.CreateDossier(t, app.alien, "N-1", "Aluno Norte")
	req, rec = newAuthRequest(http.MethodGet, "/v1/dossiers", resp.Token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Aluno Norte")

	// and going back home
	req, rec = newAuthRequest(http.MethodPost, "/v1/auth/switch-school", resp.Token, marchallObj(t, SwitchSchoolRequest{}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var back SessionResponse
	unmarshal(t, rec, &back)
	assert.Equal(t, app.home.ID, back.Session.SchoolID())
	assert.Nil(t, back.Session.CurrentSchoolID)

	assert.Contains(t, app.AuditActions(t), audit.ActionSchoolSwitch)
}

func Test_authApi_refreshAndLogout(t *testing.T) {
	app := setup(t)
	token := app.token(t, app.oper)

	req, rec := newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	unmarshal(t, rec, &resp)
	assert.Equal(t, app.oper.ID, resp.User.ID)

	// deactivated users cannot refresh
	app.Deactivate(t, app.oper)
	req, rec = newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", token)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req, rec = newAuthRequest(http.MethodPost, "/v1/auth/logout", app.token(t, app.guest))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, app.AuditActions(t), audit.ActionLogout)
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == app.Conf.Server.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func Test_authApi_sessionFollowsStore(t *testing.T) {
	app := setup(t)
	operToken := app.token(t, app.oper)
	superToken := app.token(t, app.super)
	backup := fmt.Sprintf("/v1/permissions/check?module=%s&action=%s", role.ModuleAdmin, role.ActionBackup)

	runHTTPTests(t, app, []httpTest{
		{name: "operator before", path: "/v1/dossiers", token: operToken, wantCode: http.StatusOK},
		{name: "super before", path: "/v1/dossiers?all_schools=true", token: superToken, wantCode: http.StatusOK},
		{name: "backup before", path: backup, token: superToken, wantCode: http.StatusOK, wantData: []byte(`{"allowed":true}`)},
	})

	app.Deactivate(t, app.oper)
	readOnly := app.Role(t, role.ReadOnly).ID
	_, err := app.Users.Update(context.Background(), app.super.Session(nil), app.super, user.UpdateUser{
		Name: app.super.Name, Email: app.super.Email, RoleID: &readOnly,
	})
	require.NoError(t, err)

	runHTTPTests(t, app, []httpTest{
		{
			name: "deactivated operator", path: "/v1/dossiers", token: operToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "demoted super loses every school", path: "/v1/dossiers?all_schools=true", token: superToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "demoted super loses backup", path: backup, token: superToken, wantCode: http.StatusOK, wantData: []byte(`{"allowed":false}`)},
		{name: "demoted super keeps viewing home", path: "/v1/dossiers", token: superToken, wantCode: http.StatusOK},
	})

	// a deleted account no longer authenticates
	require.NoError(t, app.UserRepo.DeleteUser(context.Background(), app.guest.ID))
	req, rec := newAuthRequest(http.MethodGet, "/v1/auth/me", app.token(t, app.guest))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func Test_authApi_expiredToken(t *testing.T) {
	app := setup(t)
	issuer := app.srv.tokens
	issuer.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }
	token, err := issuer.Generate(issuer.Claims(app.oper.Session(nil), false))
	require.NoError(t, err)

	req, rec := newAuthRequest(http.MethodGet, "/v1/auth/me", token)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid or expired jwt"}`, rec.Body.String())
}

func Test_authApi_changePassword(t *testing.T) {
	app := setup(t)
	token := app.token(t, app.oper)
	newPwd := "Nov4#Senha!Forte"

	runHTTPTests(t, app, []httpTest{
		{
			name: "wrong current password", method: http.MethodPost, path: "/v1/auth/password", token: token,
			body:     marchallObj(t, ChangePasswordRequest{CurrentPassword: "nope", Password: newPwd, PasswordConfirm: newPwd}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"current_password": errWrongPassword.Error()}),
		},
		{
			name: "weak password", method: http.MethodPost, path: "/v1/auth/password", token: token,
			body:     marchallObj(t, ChangePasswordRequest{CurrentPassword: testutil.Password, Password: "abc", PasswordConfirm: "abc"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "mismatch", method: http.MethodPost, path: "/v1/auth/password", token: token,
			body:     marchallObj(t, ChangePasswordRequest{CurrentPassword: testutil.Password, Password: newPwd, PasswordConfirm: newPwd + "x"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "changed", method: http.MethodPost, path: "/v1/auth/password", token: token,
			body: marchallObj(t, ChangePasswordRequest{CurrentPassword: testutil.Password, Password: newPwd, PasswordConfirm: newPwd}),
		},
	})

	assert.Equal(t, http.StatusBadRequest, login(t, app, app.oper.Email, testutil.Password, "10.1.0.1").code)
	assert.Equal(t, http.StatusOK, login(t, app, app.oper.Email, newPwd, "10.1.0.2").code)
	assert.Contains(t, app.AuditActions(t), audit.ActionPasswordSet)
}

func Test_authApi_passwordReset(t *testing.T) {
	app := setup(t)
	msg := "If the email address supplied is associated with an active account"

	for _, email := range []string{"ninguem@escola.br", app.guest.Email} {
		req, rec := newRequest(http.MethodPost, "/v1/auth/password-reset", marchallObj(t, PasswordResetRequest{Email: email}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), msg))
	}
	sent := app.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "password_reset", sent[0].TemplateName)

	newPwd := "Outr@Senha#2024"
	data := user.ResetUserPassword{UID: user.EncodeUID(app.guest), Token: app.Users.MakeResetToken(app.guest), Password: newPwd, PasswordConfirm: newPwd}
	runHTTPTests(t, app, []httpTest{
		{
			name: "bad token", method: http.MethodPost, path: "/v1/auth/password-reset-confirm",
			body:     marchallObj(t, user.ResetUserPassword{UID: data.UID, Token: "garbage-token", Password: newPwd, PasswordConfirm: newPwd}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "reset", method: http.MethodPost, path: "/v1/auth/password-reset-confirm", body: marchallObj(t, data),
			wantData: marchallObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
		},
		{
			name: "token used once", method: http.MethodPost, path: "/v1/auth/password-reset-confirm", body: marchallObj(t, data),
			wantCode: http.StatusBadRequest,
		},
	})
	assert.Equal(t, http.StatusOK, login(t, app, app.guest.Email, newPwd, "10.2.0.1").code)
}
