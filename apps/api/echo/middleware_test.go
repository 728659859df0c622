package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
)

func Test_ipAllowed(t *testing.T) {
	allowed := []string{"200.10.1.7", "10.0.0.0/8", "not an ip"}
	tests := []struct {
		ip   string
		want bool
	}{
		{"200.10.1.7", true},
		{"200.10.1.8", false},
		{"10.20.30.40", true},
		{"11.0.0.1", false},
		{"garbage", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, ipAllowed(tt.ip, allowed))
		})
	}
	assert.False(t, ipAllowed("10.0.0.1", nil))
}

func newQueryContext(query string) echo.Context {
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func Test_Ordering_Bind(t *testing.T) {
	tests := []struct {
		query string
		want  []core.DBOrdering
	}{
		{"", nil},
		{"ordering=", nil},
		{"ordering=name", []core.DBOrdering{{Field: "name", Ascending: true}}},
		{"ordering=-created_at,%20name", []core.DBOrdering{{Field: "created_at"}, {Field: "name", Ascending: true}}},
		{"ordering=-,,id", []core.DBOrdering{{Field: "id", Ascending: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			ord := new(Ordering)
			ord.Bind(newQueryContext(tt.query))
			assert.Equal(t, tt.want, ord.Orderings)
		})
	}
}

func Test_bindPage(t *testing.T) {
	tests := []struct {
		query string
		want  core.Page
	}{
		{"", core.Page{Limit: core.MaxPageSize}},
		{"limit=20&offset=40", core.Page{Limit: 20, Offset: 40}},
		{"limit=abc&offset=-3", core.Page{Limit: core.MaxPageSize}},
		{"limit=100000", core.Page{Limit: core.MaxPageSize}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, bindPage(newQueryContext(tt.query)))
		})
	}
}

func Test_parseTime(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		s         string
		endOfDay  bool
		want      time.Time
		wantFound bool
	}{
		{name: "empty", s: " "},
		{name: "garbage", s: "yesterday"},
		{name: "date", s: "2024-03-15", want: day, wantFound: true},
		{name: "date, end of day", s: "2024-03-15", endOfDay: true, want: day.Add(24*time.Hour - time.Nanosecond), wantFound: true},
		{name: "rfc3339 to utc", s: "2024-03-15T10:00:00-03:00", want: day.Add(13 * time.Hour), wantFound: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := parseTime(tt.s, tt.endOfDay)
			assert.Equal(t, tt.wantFound, found)
			assert.True(t, tt.want.Equal(got), "got %v; want %v", got, tt.want)
		})
	}
}

func Test_ipRestriction(t *testing.T) {
	app := setup(t)
	superToken := app.token(t, app.super)
	homeID := app.home.ID

	for _, ss := range []setting.SetSetting{
		{Scope: setting.ScopeSchool, SchoolID: &homeID, Key: setting.KeyRestrictIP, Value: "true"},
		{Scope: setting.ScopeSchool, SchoolID: &homeID, Key: setting.KeyAllowedIPs, Value: `["192.168.0.0/24"]`},
	} {
		_, code, body := putSetting(t, app, superToken, ss)
		require.Equal(t, http.StatusOK, code, body)
	}

	get := func(token, ip string) *httptest.ResponseRecorder {
		req, rec := newAuthRequest(http.MethodGet, "/v1/dossiers", token)
		req.Header.Set(echo.HeaderXRealIP, ip)
		app.ServeHTTP(rec, req)
		return rec
	}

	rec := get(app.token(t, app.oper), "192.168.0.20")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = get(app.token(t, app.oper), "172.16.0.9")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"access from this address is not allowed"}`, rec.Body.String())

	// other schools and the super role are not restricted
	assert.Equal(t, http.StatusOK, get(app.token(t, app.alien), "172.16.0.9").Code)
	assert.Equal(t, http.StatusOK, get(superToken, "172.16.0.9").Code)
}
