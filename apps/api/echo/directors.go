package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/director"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/photo"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

var errDirectorNotFoundInCtx = errors.New("director object not found in echo.Context")

type directorApi struct {
	svc      *director.Service
	photos   *photo.Store
	validate *validator.Validate
	recorder *audit.Recorder
}

func registerDirectorAPI(g *echo.Group, guard permissionGuard, svc *director.Service, photos *photo.Store, validate *validator.Validate, recorder *audit.Recorder) {
	api := directorApi{
		svc:      svc,
		photos:   photos,
		validate: validate,
		recorder: recorder,
	}
	load := objectMiddleware(func(ctx echo.Context, id int64, _ tenant.Scope) (interface{}, error) {
		return api.svc.Get(ctx.Request().Context(), id)
	})

	dg := g.Group("/directors")
	dg.POST("", api.create, guard(role.ModuleDirector, role.ActionCreate))
	dg.GET("", api.query, guard(role.ModuleDirector, role.ActionView))
	dg.GET("/search", api.search, guard(role.ModuleDirector, role.ActionView))
	dg.GET("/stats", api.stats, guard(role.ModuleDirector, role.ActionView))

	// detail endpoints
	dg.GET("/:id", api.retrieve, guard(role.ModuleDirector, role.ActionView), load)
	dg.PUT("/:id", api.update, guard(role.ModuleDirector, role.ActionEdit), load)
	dg.DELETE("/:id", api.destroy, guard(role.ModuleDirector, role.ActionDelete), load)
	dg.GET("/:id/photo", api.downloadPhoto, guard(role.ModuleDirector, role.ActionView), load)
	dg.PUT("/:id/photo", api.uploadPhoto, guard(role.ModuleDirector, role.ActionEdit), load)
	dg.DELETE("/:id/photo", api.removePhoto, guard(role.ModuleDirector, role.ActionEdit), load)
}

func getContextObjectDirector(ctx echo.Context) (director.Director, error) {
	d, ok := ctx.Get(contextObjectKey).(director.Director)
	if !ok {
		return director.Director{}, errors.Wrap(errDirectorNotFoundInCtx, "retrieving object from context")
	}
	return d, nil
}

// Handlers

func (api *directorApi) create(ctx echo.Context) error {
	var data director.NewDirector
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDirector")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating director")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionDirectorCreated, d.Name))
	return ctx.JSON(http.StatusCreated, d)
}

func (api *directorApi) query(ctx echo.Context) error {
	filter := new(director.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []director.Director{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	directors, err := api.svc.Query(ctx.Request().Context(), *filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying directors")
	}
	if directors == nil {
		directors = []director.Director{}
	}
	return ctx.JSON(http.StatusOK, directors)
}

// DirectorHit is a search result, shaped for the school form's autocompletion.
type DirectorHit struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	CPF     string `json:"cpf,omitempty"`
	Mandate string `json:"mandate,omitempty"`
	City    string `json:"city,omitempty"`
}

// search looks active directors up by `?q=` (two characters at least), at most `?limit=` results.
func (api *directorApi) search(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	directors, err := api.svc.Search(ctx.Request().Context(), ctx.QueryParam("q"), limit)
	if err != nil {
		return errors.Wrap(err, "searching directors")
	}
	hits := make([]DirectorHit, 0, len(directors))
	for _, d := range directors {
		hits = append(hits, DirectorHit{ID: d.ID, Name: d.Name, CPF: d.FormattedCPF(), Mandate: d.Mandate, City: d.City})
	}
	return ctx.JSON(http.StatusOK, hits)
}

func (api *directorApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "counting directors")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *directorApi) retrieve(ctx echo.Context) error {
	d, err := getContextObjectDirector(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *directorApi) update(ctx echo.Context) error {
	d, err := getContextObjectDirector(ctx)
	if err != nil {
		return err
	}
	var data director.UpdateDirector
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDirector")
	}
	if err := data.Validate(d, api.validate); err != nil {
		return err
	}

	d, err = api.svc.Update(ctx.Request().Context(), d, data)
	if err != nil {
		return errors.Wrap(err, "updating director")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionDirectorUpdated, d.Name))
	return ctx.JSON(http.StatusOK, d)
}

func (api *directorApi) destroy(ctx echo.Context) error {
	d, err := getContextObjectDirector(ctx)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()
	if err := api.svc.Delete(c, d); err != nil {
		return errors.Wrap(err, "deleting director")
	}
	api.photos.Discard(c, d.Photo)
	api.recorder.Record(auditEntry(ctx, audit.ActionDirectorDeleted, d.Name))
	return ctx.NoContent(http.StatusNoContent)
}

func (api *directorApi) uploadPhoto(ctx echo.Context) error {
	d, err := getContextObjectDirector(ctx)
	if err != nil {
		return err
	}
	up, f, err := photoUpload(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	c := ctx.Request().Context()
	key, err := api.photos.Put(c, photo.OwnerDirector, d.ID, up)
	if err != nil {
		return errors.Wrap(err, "storing director photo")
	}
	d, old, err := api.svc.SetPhoto(c, d, key)
	if err != nil {
		api.photos.Discard(c, key)
		return errors.Wrap(err, "setting director photo")
	}
	api.photos.Discard(c, old)
	api.recorder.Record(auditEntry(ctx, audit.ActionDirectorUpdated, d.Name, "photo"))
	return ctx.JSON(http.StatusOK, d)
}

func (api *directorApi) removePhoto(ctx echo.Context) error {
	d, err := getContextObjectDirector(ctx)
	if err != nil {
		return err
	}
	if d.Photo == "" {
		return photo.ErrNotFound
	}
	c := ctx.Request().Context()
	d, old, err := api.svc.SetPhoto(c, d, "")
	if err != nil {
		return errors.Wrap(err, "removing director photo")
	}
	api.photos.Discard(c, old)
	api.recorder.Record(auditEntry(ctx, audit.ActionDirectorUpdated, d.Name, "photo removed"))
	return ctx.NoContent(http.StatusNoContent)
}

func (api *directorApi) downloadPhoto(ctx echo.Context) error {
	d, err := getContextObjectDirector(ctx)
	if err != nil {
		return err
	}
	return servePhoto(ctx, api.photos, d.Photo)
}
