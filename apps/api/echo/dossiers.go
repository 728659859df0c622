package echoapi

import (
	"mime"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/attachment"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/photo"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

const attachmentIDParam = "attachment_id"

var (
	errDossierNotFoundInCtx = errors.New("dossier object not found in echo.Context")
	errFileRequired         = errors.New("a file is required")
)

type dossierApi struct {
	svc         *dossier.Service
	attachments *attachment.Service
	photos      *photo.Store
	settings    *setting.Service
	validate    *validator.Validate
	recorder    *audit.Recorder
}

func registerDossierAPI(
	g *echo.Group,
	guard permissionGuard,
	svc *dossier.Service,
	attachments *attachment.Service,
	photos *photo.Store,
	settings *setting.Service,
	validate *validator.Validate,
	recorder *audit.Recorder,
) {
	api := dossierApi{
		svc:         svc,
		attachments: attachments,
		photos:      photos,
		settings:    settings,
		validate:    validate,
		recorder:    recorder,
	}
	load := objectMiddleware(func(ctx echo.Context, id int64, scope tenant.Scope) (interface{}, error) {
		return api.svc.Get(ctx.Request().Context(), id, scope)
	})

	dg := g.Group("/dossiers")
	dg.POST("", api.create, guard(role.ModuleDossier, role.ActionCreate))
	dg.GET("", api.query, guard(role.ModuleDossier, role.ActionView))

	// detail endpoints
	dg.GET("/:id", api.retrieve, guard(role.ModuleDossier, role.ActionView), load)
	dg.PUT("/:id", api.update, guard(role.ModuleDossier, role.ActionEdit), load)
	dg.DELETE("/:id", api.destroy, guard(role.ModuleDossier, role.ActionDelete), load)
	dg.POST("/:id/archive", api.archive, guard(role.ModuleDossier, role.ActionEdit), load)
	dg.POST("/:id/unarchive", api.unarchive, guard(role.ModuleDossier, role.ActionEdit), load)
	dg.GET("/:id/photo", api.downloadPhoto, guard(role.ModuleDossier, role.ActionView), load)
	dg.PUT("/:id/photo", api.uploadPhoto, guard(role.ModuleDossier, role.ActionEdit), load)
	dg.DELETE("/:id/photo", api.removePhoto, guard(role.ModuleDossier, role.ActionEdit), load)

	// attachments
	dg.GET("/:id/attachments", api.queryAttachments, guard(role.ModuleAttach, role.ActionView), load)
	dg.POST("/:id/attachments", api.upload, guard(role.ModuleAttach, role.ActionCreate), load)
	dg.GET("/:id/attachments/:attachment_id", api.download, guard(role.ModuleAttach, role.ActionView), load)
	dg.DELETE("/:id/attachments/:attachment_id", api.destroyAttachment, guard(role.ModuleAttach, role.ActionDelete), load)
}

func getContextObjectDossier(ctx echo.Context) (dossier.Dossier, error) {
	d, ok := ctx.Get(contextObjectKey).(dossier.Dossier)
	if !ok {
		return dossier.Dossier{}, errors.Wrap(errDossierNotFoundInCtx, "retrieving object from context")
	}
	return d, nil
}

// Handlers

func (api *dossierApi) create(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data dossier.NewDossier
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDossier")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.svc.Create(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "creating dossier")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionDossierCreated, d.Number))
	return ctx.JSON(http.StatusCreated, d)
}

func (api *dossierApi) query(ctx echo.Context) error {
	scope, err := contextScope(ctx)
	if err != nil {
		return err
	}
	filter := new(dossier.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []dossier.Dossier{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	dossiers, err := api.svc.Query(ctx.Request().Context(), *filter, scope, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying dossiers")
	}
	if dossiers == nil {
		dossiers = []dossier.Dossier{}
	}
	return ctx.JSON(http.StatusOK, dossiers)
}

func (api *dossierApi) retrieve(ctx echo.Context) error {
	d, err := getContextObjectDossier(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *dossierApi) update(ctx echo.Context) error {
	d, err := getContextObjectDossier(ctx)
	if err != nil {
		return err
	}
	var data dossier.UpdateDossier
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDossier")
	}
	if err := data.Validate(d, api.validate); err != nil {
		return err
	}

	d, err = api.svc.Update(ctx.Request().Context(), d, data)
	if err != nil {
		return errors.Wrap(err, "updating dossier")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionDossierUpdated, d.Number))
	return ctx.JSON(http.StatusOK, d)
}

// destroy removes the dossier with its attachments. Loaned dossiers stay.
func (api *dossierApi) destroy(ctx echo.Context) error {
	d, err := getContextObjectDossier(ctx)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()
	if d.IsLoaned() {
		return api.svc.Delete(c, d)
	}
	if err := api.attachments.DeleteAll(c, d.ID); err != nil {
		return errors.Wrap(err, "deleting dossier attachments")
	}
	if err := api.svc.Delete(c, d); err != nil {
		return errors.Wrap(err, "deleting dossier")
	}
	api.photos.Discard(c, d.Photo)
	api.recorder.Record(auditEntry(ctx, audit.ActionDossierDeleted, d.Number))
	return ctx.NoContent(http.StatusNoContent)
}

func (api *dossierApi) archive(ctx echo.Context) error {
	d, err := getContextObjectDossier(ctx)
	if err != nil {
		return err
	}
	d, err = api.svc.Archive(ctx.Request().Context(), d)
	if err != nil {
		return errors.Wrap(err, "archiving dossier")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionDossierArchived, d.Number))
	return ctx.JSON(http.StatusOK, d)
}

func (api *dossierApi) unarchive(ctx echo.Context) error {
	d, err := getContextObjectDossier(ctx)
	if err != nil {
		return err
	}
	d, err = api.svc.Unarchive(ctx.Request().Context(), d)
	if err != nil {
		return errors.Wrap(err, "unarchiving dossier")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionDossierUpdated, d.Number, "unarchived"))
	return ctx.JSON(http.StatusOK, d)
}

// Attachments

func (api *dossierApi) getAttachment(ctx echo.Context, d dossier.Dossier) (attachment.Attachment, error) {
	id, err := paramID(ctx, attachmentIDParam)
	if err != nil {
		return attachment.Attachment{}, err
	}
	a, err := api.attachments.Get(ctx.Request().Context(), id)
	if err != nil {
		return attachment.Attachment{}, errors.Wrap(err, "finding attachment")
	}
	if a.DossierID != d.ID {
		return attachment.Attachment{}, attachment.ErrNotFound
	}
	return a, nil
}

func (api *dossierApi) queryAttachments(ctx echo.Context) error {
	d, err := getContextObjectDossier(ctx)
	if err != nil {
		return err
	}
	atts, err := api.attachments.Query(ctx.Request().Context(), d.ID)
	if err != nil {
		return errors.Wrap(err, "querying attachments")
	}
	out := make([]AttachmentResponse, 0, len(atts))
	for _, a := range atts {
		out = append(out, AttachmentResponse{Attachment: a, SizeLabel: a.SizeLabel()})
	}
	return ctx.JSON(http.StatusOK, out)
}

// upload stores the multipart `file` field. `display_name` is optional.
func (api *dossierApi) upload(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	d, err := getContextObjectDossier(ctx)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewFieldValidationError("file", errFileRequired)
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	a, err := api.attachments.Upload(ctx.Request().Context(), sess.UserID, attachment.Upload{
		DossierID:    d.ID,
		OriginalName: fh.Filename,
		DisplayName:  ctx.FormValue("display_name"),
		Size:         fh.Size,
		ContentType:  fh.Header.Get(echo.HeaderContentType),
		Content:      f,
	})
	if err != nil {
		return errors.Wrap(err, "uploading attachment")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionAttachmentAdded, d.Number, a.OriginalName))
	return ctx.JSON(http.StatusCreated, AttachmentResponse{Attachment: a, SizeLabel: a.SizeLabel()})
}

func (api *dossierApi) download(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	d, err := getContextObjectDossier(ctx)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()
	if api.settings != nil && !api.settings.Bool(c, setting.KeyAllowDownload, d.SchoolID, sess.UserID) {
		return attachment.ErrDownloadDisabled
	}
	a, err := api.getAttachment(ctx, d)
	if err != nil {
		return err
	}

	rc, err := api.attachments.Open(c, a)
	if err != nil {
		return errors.Wrap(err, "opening attachment")
	}
	defer rc.Close()

	api.recorder.Record(auditEntry(ctx, audit.ActionAttachmentDownloaded, d.Number, a.OriginalName))
	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": a.OriginalName}))
	return ctx.Stream(http.StatusOK, a.ContentType, rc)
}

func (api *dossierApi) destroyAttachment(ctx echo.Context) error {
	d, err := getContextObjectDossier(ctx)
	if err != nil {
		return err
	}
	a, err := api.getAttachment(ctx, d)
	if err != nil {
		return err
	}
	if err := api.attachments.Delete(ctx.Request().Context(), a); err != nil {
		return errors.Wrap(err, "deleting attachment")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionAttachmentRemoved, d.Number, a.OriginalName))
	return ctx.NoContent(http.StatusNoContent)
}

type AttachmentResponse struct {
	attachment.Attachment
	SizeLabel string `json:"size_label"`
}
