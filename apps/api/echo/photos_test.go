package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/photo"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
)

var pngContent = []byte("\x89PNG\r\n\x1a\nretrato")

func Test_userApi_photo(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	adminToken := app.token(t, app.admin)
	path := fmt.Sprintf("/v1/users/%d/photo", app.oper.ID)

	// rejected uploads
	req, rec := newPhotoRequest(t, path, adminToken, "", nil)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"photo":"a file is required"}`, rec.Body.String())

	req, rec = newPhotoRequest(t, path, adminToken, "retrato.gif", pngContent)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, string(marchallObj(t, map[string]string{"photo": photo.ErrExtNotAllowed.Error()})), rec.Body.String())

	req, rec = newPhotoRequest(t, path, app.token(t, app.oper), "retrato.png", pngContent)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req, rec = newPhotoRequest(t, fmt.Sprintf("/v1/users/%d/photo", app.super.ID), adminToken, "retrato.png", pngContent)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, string(marchallObj(t, errForbidden)), rec.Body.String())

	runHTTPTests(t, app, []httpTest{
		{name: "no photo yet", path: path, token: adminToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "nothing to remove", method: http.MethodDelete, path: path, token: adminToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
	})

	// accepted upload
	req, rec = newPhotoRequest(t, path, adminToken, "Retrato.PNG", pngContent)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var usr user.User
	unmarshal(t, rec, &usr)
	prefix := fmt.Sprintf("users/%d/photo/", app.oper.ID)
	assert.True(t, strings.HasPrefix(usr.Photo, prefix), usr.Photo)
	assert.True(t, strings.HasSuffix(usr.Photo, ".png"), usr.Photo)

	req, rec = newAuthRequest(http.MethodGet, path, adminToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, pngContent, rec.Body.Bytes())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	// a new photo replaces the old file
	req, rec = newPhotoRequest(t, path, adminToken, "novo.jpg", []byte("jpeg"))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	files, err := app.Files.List(ctx, prefix)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0].Key, ".jpg"), files[0].Key)

	// the JSON update leaves the photo alone
	req, rec = newAuthRequest(http.MethodPut, fmt.Sprintf("/v1/users/%d", app.oper.ID), adminToken, []byte(`{"name":"Operador","photo":"users/1/photo/outra.png"}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshal(t, rec, &usr)
	assert.Equal(t, files[0].Key, usr.Photo)

	runHTTPTests(t, app, []httpTest{
		{name: "removed", method: http.MethodDelete, path: path, token: adminToken, wantCode: http.StatusNoContent},
		{name: "gone", path: path, token: adminToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
	})
	files, err = app.Files.List(ctx, prefix)
	require.NoError(t, err)
	assert.Empty(t, files)

	got, err := app.Users.Get(ctx, app.oper.ID, tenant.AllSchools())
	require.NoError(t, err)
	assert.Empty(t, got.Photo)
}

func Test_dossierApi_photo(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	d := app.CreateDossier(t, app.oper, "001", "Ana Souza")
	operToken := app.token(t, app.oper)
	path := fmt.Sprintf("/v1/dossiers/%d/photo", d.ID)

	req, rec := newPhotoRequest(t, path, app.token(t, app.guest), "aluna.png", pngContent)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req, rec = newPhotoRequest(t, path, app.token(t, app.alien), "aluna.png", pngContent)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req, rec = newPhotoRequest(t, path, operToken, "aluna.pdf", pngContent)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, string(marchallObj(t, map[string]string{"photo": photo.ErrExtNotAllowed.Error()})), rec.Body.String())

	req, rec = newPhotoRequest(t, path, operToken, "aluna.jpeg", []byte("jpeg"))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got dossier.Dossier
	unmarshal(t, rec, &got)
	prefix := fmt.Sprintf("dossiers/%d/photo/", d.ID)
	assert.True(t, strings.HasPrefix(got.Photo, prefix), got.Photo)

	req, rec = newAuthRequest(http.MethodGet, path, app.token(t, app.guest))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []byte("jpeg"), rec.Body.Bytes())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	// the JSON update leaves the photo alone
	req, rec = newAuthRequest(http.MethodPut, fmt.Sprintf("/v1/dossiers/%d", d.ID), operToken, []byte(`{"photo":""}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshal(t, rec, &got)
	assert.True(t, strings.HasPrefix(got.Photo, prefix), got.Photo)

	// deleting the dossier drops its photo
	req, rec = newAuthRequest(http.MethodDelete, fmt.Sprintf("/v1/dossiers/%d", d.ID), app.token(t, app.admin))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	files, err := app.Files.List(ctx, prefix)
	require.NoError(t, err)
	assert.Empty(t, files)
}
