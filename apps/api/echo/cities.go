package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/city"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

var errCityNotFoundInCtx = errors.New("city object not found in echo.Context")

type cityApi struct {
	svc      *city.Service
	validate *validator.Validate
	recorder *audit.Recorder
}

func registerCityAPI(g *echo.Group, guard permissionGuard, svc *city.Service, validate *validator.Validate, recorder *audit.Recorder) {
	api := cityApi{
		svc:      svc,
		validate: validate,
		recorder: recorder,
	}
	load := objectMiddleware(func(ctx echo.Context, id int64, _ tenant.Scope) (interface{}, error) {
		return api.svc.Get(ctx.Request().Context(), id)
	})

	cg := g.Group("/cities")
	cg.POST("", api.create, guard(role.ModuleCity, role.ActionCreate))
	cg.GET("", api.query, guard(role.ModuleCity, role.ActionView))
	// lookup feeds address forms, any authenticated user may use it
	cg.GET("/lookup", api.lookup)
	cg.GET("/:id", api.retrieve, guard(role.ModuleCity, role.ActionView), load)
	cg.PUT("/:id", api.update, guard(role.ModuleCity, role.ActionEdit), load)
	cg.DELETE("/:id", api.destroy, guard(role.ModuleCity, role.ActionDelete), load)
}

func getContextObjectCity(ctx echo.Context) (city.City, error) {
	c, ok := ctx.Get(contextObjectKey).(city.City)
	if !ok {
		return city.City{}, errors.Wrap(errCityNotFoundInCtx, "retrieving object from context")
	}
	return c, nil
}

// Handlers

func (api *cityApi) create(ctx echo.Context) error {
	var data city.NewCity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCity")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating city")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionCityCreated, c.Label()))
	return ctx.JSON(http.StatusCreated, c)
}

func (api *cityApi) query(ctx echo.Context) error {
	filter := new(city.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []city.City{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	cities, err := api.svc.Query(ctx.Request().Context(), *filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying cities")
	}
	if cities == nil {
		cities = []city.City{}
	}
	return ctx.JSON(http.StatusOK, cities)
}

// lookup autocompletes `?q=` within `?uf=`, at most `?limit=` results.
func (api *cityApi) lookup(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	cities, err := api.svc.Lookup(ctx.Request().Context(), ctx.QueryParam("q"), ctx.QueryParam("uf"), limit)
	if err != nil {
		return errors.Wrap(err, "looking up cities")
	}
	if cities == nil {
		cities = []city.City{}
	}
	return ctx.JSON(http.StatusOK, cities)
}

func (api *cityApi) retrieve(ctx echo.Context) error {
	c, err := getContextObjectCity(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *cityApi) update(ctx echo.Context) error {
	c, err := getContextObjectCity(ctx)
	if err != nil {
		return err
	}
	var data city.UpdateCity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCity")
	}
	if err := data.Validate(c, api.validate); err != nil {
		return err
	}

	c, err = api.svc.Update(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "updating city")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionCityUpdated, c.Label()))
	return ctx.JSON(http.StatusOK, c)
}

func (api *cityApi) destroy(ctx echo.Context) error {
	c, err := getContextObjectCity(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), c); err != nil {
		return errors.Wrap(err, "deleting city")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionCityDeleted, c.Label()))
	return ctx.NoContent(http.StatusNoContent)
}
