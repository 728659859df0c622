package echoapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
	"github.com/fedimaraquino/dossie-escolar-sub000/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
	errNotFound     = httpErr{Error: "not found"}
)

type testApp struct {
	*testutil.Stack
	srv *Server

	home  school.School
	other school.School
	super user.User
	admin user.User // SchoolAdmin of home
	oper  user.User // Operator of home
	guest user.User // ReadOnly of home
	alien user.User // SchoolAdmin of other
}

// setup builds a server over a fresh in-memory stack with one user per default role.
func setup(t *testing.T) *testApp {
	t.Helper()
	st := testutil.NewStack(t)
	app := &testApp{Stack: st}
	app.srv = NewServer(ServerDeps{
		Conf:           st.Conf,
		Logger:         st.Logger,
		Validate:       st.Validate,
		Translator:     st.Translator,
		DisableReqLogs: true,
		Auth:           st.Auth,
		Users:          st.Users,
		Roles:          st.Roles,
		Schools:        st.Schools,
		Cities:         st.Cities,
		Directors:      st.Directors,
		Requesters:     st.Requesters,
		Dossiers:       st.Dossiers,
		Attachments:    st.Attachments,
		Photos:         st.Photos,
		Movements:      st.Movements,
		Settings:       st.Settings,
		Recorder:       st.Recorder,
	})

	app.home = st.CreateSchool(t, "Escola Estadual Central")
	app.other = st.CreateSchool(t, "Escola Municipal Norte")
	app.super = st.CreateUser(t, "Root", "root@escola.br", testutil.Password, role.SuperRoleName, app.home.ID)
	app.admin = st.CreateUser(t, "Diretora", "diretora@escola.br", testutil.Password, role.SchoolAdmin, app.home.ID)
	app.oper = st.CreateUser(t, "Operador", "operador@escola.br", testutil.Password, role.Operator, app.home.ID)
	app.guest = st.CreateUser(t, "Consulta", "consulta@escola.br", testutil.Password, role.ReadOnly, app.home.ID)
	app.alien = st.CreateUser(t, "Outra Diretora", "norte@escola.br", testutil.Password, role.SchoolAdmin, app.other.ID)
	return app
}

func (app *testApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	app.srv.ServeHTTP(w, r)
}

func (app *testApp) token(t *testing.T, usr user.User, schoolID ...int64) string {
	t.Helper()
	var current *int64
	if len(schoolID) > 0 {
		current = &schoolID[0]
	}
	token, err := app.srv.tokens.Generate(app.srv.tokens.Claims(usr.Session(current), false))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func newUploadRequest(t *testing.T, path, token, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	return newMultipartRequest(t, http.MethodPost, path, token, "file", filename, content, map[string]string{"description": "digitalizado"})
}

// newPhotoRequest sends content as the "photo" field of a PUT.
func newPhotoRequest(t *testing.T, path, token, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	return newMultipartRequest(t, http.MethodPut, path, token, "photo", filename, content, nil)
}

func newMultipartRequest(t *testing.T, method, path, token, field, filename string, content []byte, values map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		part, err := w.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		_, _ = part.Write(content)
	}
	for k, v := range values {
		_ = w.WriteField(k, v)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart.Close() failed: %v", err)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

// checkCodeAndData compares the body only when tt.wantData is set.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
