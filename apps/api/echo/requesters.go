package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/requester"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

var errRequesterNotFoundInCtx = errors.New("requester object not found in echo.Context")

type requesterApi struct {
	svc      *requester.Service
	validate *validator.Validate
	recorder *audit.Recorder
}

func registerRequesterAPI(g *echo.Group, guard permissionGuard, svc *requester.Service, validate *validator.Validate, recorder *audit.Recorder) {
	api := requesterApi{
		svc:      svc,
		validate: validate,
		recorder: recorder,
	}
	load := objectMiddleware(func(ctx echo.Context, id int64, scope tenant.Scope) (interface{}, error) {
		return api.svc.Get(ctx.Request().Context(), id, scope)
	})

	rg := g.Group("/requesters")
	rg.POST("", api.create, guard(role.ModuleRequester, role.ActionCreate))
	rg.GET("", api.query, guard(role.ModuleRequester, role.ActionView))
	rg.GET("/:id", api.retrieve, guard(role.ModuleRequester, role.ActionView), load)
	rg.PUT("/:id", api.update, guard(role.ModuleRequester, role.ActionEdit), load)
	rg.DELETE("/:id", api.destroy, guard(role.ModuleRequester, role.ActionDelete), load)
}

func getContextObjectRequester(ctx echo.Context) (requester.Requester, error) {
	r, ok := ctx.Get(contextObjectKey).(requester.Requester)
	if !ok {
		return requester.Requester{}, errors.Wrap(errRequesterNotFoundInCtx, "retrieving object from context")
	}
	return r, nil
}

// Handlers

func (api *requesterApi) create(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data requester.NewRequester
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequester")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	r, err := api.svc.Create(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "creating requester")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionRequesterCreated, r.Name))
	return ctx.JSON(http.StatusCreated, r)
}

func (api *requesterApi) query(ctx echo.Context) error {
	scope, err := contextScope(ctx)
	if err != nil {
		return err
	}
	filter := new(requester.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []requester.Requester{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	reqs, err := api.svc.Query(ctx.Request().Context(), *filter, scope, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying requesters")
	}
	if reqs == nil {
		reqs = []requester.Requester{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *requesterApi) retrieve(ctx echo.Context) error {
	r, err := getContextObjectRequester(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *requesterApi) update(ctx echo.Context) error {
	r, err := getContextObjectRequester(ctx)
	if err != nil {
		return err
	}
	var data requester.UpdateRequester
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRequester")
	}
	if err := data.Validate(r, api.validate); err != nil {
		return err
	}

	r, err = api.svc.Update(ctx.Request().Context(), r, data)
	if err != nil {
		return errors.Wrap(err, "updating requester")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionRequesterUpdated, r.Name))
	return ctx.JSON(http.StatusOK, r)
}

func (api *requesterApi) destroy(ctx echo.Context) error {
	r, err := getContextObjectRequester(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), r); err != nil {
		return errors.Wrap(err, "deleting requester")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionRequesterDeleted, r.Name))
	return ctx.NoContent(http.StatusNoContent)
}
