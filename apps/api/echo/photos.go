package echoapi

import (
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/photo"
)

// photoUpload reads the "photo" multipart field. The caller closes the returned file.
func photoUpload(ctx echo.Context) (photo.Upload, multipart.File, error) {
	fh, err := ctx.FormFile("photo")
	if err != nil {
		return photo.Upload{}, nil, core.NewFieldValidationError("photo", errFileRequired)
	}
	f, err := fh.Open()
	if err != nil {
		return photo.Upload{}, nil, errors.Wrap(err, "opening uploaded photo")
	}
	return photo.Upload{
		Filename:    fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Content:     f,
	}, f, nil
}

func servePhoto(ctx echo.Context, photos *photo.Store, key string) error {
	rc, err := photos.Open(ctx.Request().Context(), key)
	if err != nil {
		return err
	}
	defer rc.Close()
	return ctx.Stream(http.StatusOK, photo.ContentType(key), rc)
}

// User photos

func (api *userApi) uploadPhoto(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextObjectUser(ctx)
	if err != nil {
		return err
	}
	up, f, err := photoUpload(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	c := ctx.Request().Context()
	key, err := api.photos.Put(c, photo.OwnerUser, usr.ID, up)
	if err != nil {
		return errors.Wrap(err, "storing user photo")
	}
	usr, old, err := api.svc.SetPhoto(c, sess, usr, key)
	if err != nil {
		api.photos.Discard(c, key)
		return errors.Wrap(err, "setting user photo")
	}
	api.photos.Discard(c, old)
	api.recorder.Record(auditEntry(ctx, audit.ActionUserUpdated, usr.Email, "photo"))
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) removePhoto(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextObjectUser(ctx)
	if err != nil {
		return err
	}
	if usr.Photo == "" {
		return photo.ErrNotFound
	}
	c := ctx.Request().Context()
	usr, old, err := api.svc.SetPhoto(c, sess, usr, "")
	if err != nil {
		return errors.Wrap(err, "removing user photo")
	}
	api.photos.Discard(c, old)
	api.recorder.Record(auditEntry(ctx, audit.ActionUserUpdated, usr.Email, "photo removed"))
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) downloadPhoto(ctx echo.Context) error {
	usr, err := getContextObjectUser(ctx)
	if err != nil {
		return err
	}
	return servePhoto(ctx, api.photos, usr.Photo)
}

// Dossier photos

func (api *dossierApi) uploadPhoto(ctx echo.Context) error {
	d, err := getContextObjectDossier(ctx)
	if err != nil {
		return err
	}
	up, f, err := photoUpload(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	c := ctx.Request().Context()
	key, err := api.photos.Put(c, photo.OwnerDossier, d.ID, up)
	if err != nil {
		return errors.Wrap(err, "storing dossier photo")
	}
	d, old, err := api.svc.SetPhoto(c, d, key)
	if err != nil {
		api.photos.Discard(c, key)
		return errors.Wrap(err, "setting dossier photo")
	}
	api.photos.Discard(c, old)
	api.recorder.Record(auditEntry(ctx, audit.ActionDossierUpdated, d.Number, "photo"))
	return ctx.JSON(http.StatusOK, d)
}

func (api *dossierApi) removePhoto(ctx echo.Context) error {
	d, err := getContextObjectDossier(ctx)
	if err != nil {
		return err
	}
	if d.Photo == "" {
		return photo.ErrNotFound
	}
	c := ctx.Request().Context()
	d, old, err := api.svc.SetPhoto(c, d, "")
	if err != nil {
		return errors.Wrap(err, "removing dossier photo")
	}
	api.photos.Discard(c, old)
	api.recorder.Record(auditEntry(ctx, audit.ActionDossierUpdated, d.Number, "photo removed"))
	return ctx.NoContent(http.StatusNoContent)
}

func (api *dossierApi) downloadPhoto(ctx echo.Context) error {
	d, err := getContextObjectDossier(ctx)
	if err != nil {
		return err
	}
	return servePhoto(ctx, api.photos, d.Photo)
}
