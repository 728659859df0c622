package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/movement"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

var errMovementNotFoundInCtx = errors.New("movement object not found in echo.Context")

type movementApi struct {
	svc      *movement.Service
	dossiers *dossier.Service
	validate *validator.Validate
	recorder *audit.Recorder
}

func registerMovementAPI(
	g *echo.Group,
	guard permissionGuard,
	svc *movement.Service,
	dossiers *dossier.Service,
	validate *validator.Validate,
	recorder *audit.Recorder,
) {
	api := movementApi{
		svc:      svc,
		dossiers: dossiers,
		validate: validate,
		recorder: recorder,
	}
	load := objectMiddleware(func(ctx echo.Context, id int64, scope tenant.Scope) (interface{}, error) {
		return api.svc.Get(ctx.Request().Context(), id, scope)
	})

	mg := g.Group("/movements")
	mg.POST("", api.create, guard(role.ModuleMovement, role.ActionCreate))
	mg.GET("", api.query, guard(role.ModuleMovement, role.ActionView))
	mg.GET("/overdue", api.overdue, guard(role.ModuleMovement, role.ActionView))

	// detail endpoints
	mg.GET("/:id", api.retrieve, guard(role.ModuleMovement, role.ActionView), load)
	mg.PUT("/:id", api.update, guard(role.ModuleMovement, role.ActionEdit), load)
	mg.DELETE("/:id", api.destroy, guard(role.ModuleMovement, role.ActionDelete), load)
	mg.POST("/:id/complete", api.complete, guard(role.ModuleMovement, role.ActionEdit), load)
	mg.POST("/:id/cancel", api.cancel, guard(role.ModuleMovement, role.ActionEdit), load)
}

func getContextObjectMovement(ctx echo.Context) (movement.Movement, error) {
	m, ok := ctx.Get(contextObjectKey).(movement.Movement)
	if !ok {
		return movement.Movement{}, errors.Wrap(errMovementNotFoundInCtx, "retrieving object from context")
	}
	return m, nil
}

// Handlers

func (api *movementApi) create(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data movement.NewMovement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMovement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// the dossier must be visible from the current school
	c := ctx.Request().Context()
	d, err := api.dossiers.Get(c, data.DossierID, tenant.ForSchool(sess.SchoolID()))
	if err != nil {
		if errors.Cause(err) == dossier.ErrNotFound {
			return core.NewFieldValidationError("dossier_id", err)
		}
		return errors.Wrap(err, "finding dossier")
	}

	m, err := api.svc.Create(c, sess, d, data)
	if err != nil {
		return errors.Wrap(err, "creating movement")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionMovementCreated, d.Number, string(m.Kind)))
	return ctx.JSON(http.StatusCreated, m)
}

func (api *movementApi) query(ctx echo.Context) error {
	scope, err := contextScope(ctx)
	if err != nil {
		return err
	}
	filter := new(movement.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []movement.Movement{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	movs, err := api.svc.Query(ctx.Request().Context(), *filter, scope, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying movements")
	}
	if movs == nil {
		movs = []movement.Movement{}
	}
	return ctx.JSON(http.StatusOK, movs)
}

func (api *movementApi) overdue(ctx echo.Context) error {
	scope, err := contextScope(ctx)
	if err != nil {
		return err
	}
	movs, err := api.svc.Overdue(ctx.Request().Context(), scope, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying overdue movements")
	}
	now := core.Now()
	out := make([]OverdueResponse, 0, len(movs))
	for _, m := range movs {
		out = append(out, OverdueResponse{Movement: m, DaysOverdue: m.DaysOverdue(now)})
	}
	return ctx.JSON(http.StatusOK, out)
}

func (api *movementApi) retrieve(ctx echo.Context) error {
	m, err := getContextObjectMovement(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *movementApi) update(ctx echo.Context) error {
	m, err := getContextObjectMovement(ctx)
	if err != nil {
		return err
	}
	var data movement.UpdateMovement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMovement")
	}
	if err := data.Validate(m, api.validate); err != nil {
		return err
	}

	m, err = api.svc.Update(ctx.Request().Context(), m, data)
	if err != nil {
		return errors.Wrap(err, "updating movement")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionMovementUpdated, movementTarget(m)))
	return ctx.JSON(http.StatusOK, m)
}

func (api *movementApi) complete(ctx echo.Context) error {
	m, err := getContextObjectMovement(ctx)
	if err != nil {
		return err
	}
	m, err = api.svc.Complete(ctx.Request().Context(), m)
	if err != nil {
		return errors.Wrap(err, "completing movement")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionMovementConcluded, movementTarget(m)))
	return ctx.JSON(http.StatusOK, m)
}

func (api *movementApi) cancel(ctx echo.Context) error {
	m, err := getContextObjectMovement(ctx)
	if err != nil {
		return err
	}
	m, err = api.svc.Cancel(ctx.Request().Context(), m)
	if err != nil {
		return errors.Wrap(err, "cancelling movement")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionMovementCancelled, movementTarget(m)))
	return ctx.JSON(http.StatusOK, m)
}

func (api *movementApi) destroy(ctx echo.Context) error {
	m, err := getContextObjectMovement(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), m); err != nil {
		return errors.Wrap(err, "deleting movement")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionMovementDeleted, movementTarget(m)))
	return ctx.NoContent(http.StatusNoContent)
}

func movementTarget(m movement.Movement) string {
	return string(m.Kind) + " #" + strconv.FormatInt(m.ID, 10)
}

type OverdueResponse struct {
	movement.Movement
	DaysOverdue int `json:"days_overdue"`
}
