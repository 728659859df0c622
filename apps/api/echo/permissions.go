package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

var errRoleNotFoundInCtx = errors.New("role object not found in echo.Context")

type permissionApi struct {
	svc      *role.Service
	validate *validator.Validate
	recorder *audit.Recorder
}

func registerPermissionAPI(g *echo.Group, guard permissionGuard, svc *role.Service, validate *validator.Validate, recorder *audit.Recorder) {
	api := permissionApi{
		svc:      svc,
		validate: validate,
		recorder: recorder,
	}
	load := objectMiddleware(func(ctx echo.Context, id int64, _ tenant.Scope) (interface{}, error) {
		return api.svc.Get(ctx.Request().Context(), id)
	})

	g.GET("/permissions", api.queryPermissions, guard(role.ModulePerm, role.ActionView))
	g.GET("/permissions/check", api.check)

	rg := g.Group("/roles")
	rg.POST("", api.create, guard(role.ModuleRole, role.ActionCreate))
	rg.GET("", api.query, guard(role.ModuleRole, role.ActionView))
	rg.GET("/:id", api.retrieve, guard(role.ModuleRole, role.ActionView), load)
	rg.PUT("/:id", api.update, guard(role.ModuleRole, role.ActionEdit), load)
	rg.DELETE("/:id", api.destroy, guard(role.ModuleRole, role.ActionDelete), load)
	rg.GET("/:id/permissions", api.rolePermissions, guard(role.ModulePerm, role.ActionView), load)
	rg.PUT("/:id/permissions", api.setRolePermissions, guard(role.ModulePerm, role.ActionEdit), load)
}

func getContextObjectRole(ctx echo.Context) (role.Role, error) {
	r, ok := ctx.Get(contextObjectKey).(role.Role)
	if !ok {
		return role.Role{}, errors.Wrap(errRoleNotFoundInCtx, "retrieving object from context")
	}
	return r, nil
}

// Handlers

func (api *permissionApi) create(ctx echo.Context) error {
	var data role.NewRole
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRole")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	r, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating role")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionRoleCreated, r.Name))
	return ctx.JSON(http.StatusCreated, r)
}

func (api *permissionApi) query(ctx echo.Context) error {
	roles, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying roles")
	}
	if roles == nil {
		roles = []role.Role{}
	}
	return ctx.JSON(http.StatusOK, roles)
}

func (api *permissionApi) retrieve(ctx echo.Context) error {
	r, err := getContextObjectRole(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *permissionApi) update(ctx echo.Context) error {
	r, err := getContextObjectRole(ctx)
	if err != nil {
		return err
	}
	var data role.UpdateRole
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRole")
	}
	if err := data.Validate(r, api.validate); err != nil {
		return err
	}

	r, err = api.svc.Update(ctx.Request().Context(), r, data)
	if err != nil {
		return errors.Wrap(err, "updating role")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionRoleUpdated, r.Name))
	return ctx.JSON(http.StatusOK, r)
}

func (api *permissionApi) destroy(ctx echo.Context) error {
	r, err := getContextObjectRole(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), r); err != nil {
		return errors.Wrap(err, "deleting role")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionRoleDeleted, r.Name))
	return ctx.NoContent(http.StatusNoContent)
}

func (api *permissionApi) rolePermissions(ctx echo.Context) error {
	r, err := getContextObjectRole(ctx)
	if err != nil {
		return err
	}
	perms, err := api.svc.Permissions(ctx.Request().Context(), r)
	if err != nil {
		return errors.Wrap(err, "querying role permissions")
	}
	if perms == nil {
		perms = []role.Permission{}
	}
	return ctx.JSON(http.StatusOK, perms)
}

func (api *permissionApi) setRolePermissions(ctx echo.Context) error {
	r, err := getContextObjectRole(ctx)
	if err != nil {
		return err
	}
	var data role.SetPermissions
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetPermissions")
	}
	perms, err := data.Validate(api.validate)
	if err != nil {
		return err
	}

	c := ctx.Request().Context()
	if err := api.svc.SetPermissions(c, r, perms); err != nil {
		return errors.Wrap(err, "setting role permissions")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionPermissionChanged, r.Name))

	perms, err = api.svc.Permissions(c, r)
	if err != nil {
		return errors.Wrap(err, "querying role permissions")
	}
	return ctx.JSON(http.StatusOK, perms)
}

func (api *permissionApi) queryPermissions(ctx echo.Context) error {
	perms, err := api.svc.QueryPermissions(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying permissions")
	}
	if perms == nil {
		perms = []role.Permission{}
	}
	return ctx.JSON(http.StatusOK, perms)
}

// check answers whether the current session holds `?module=&action=`. Unknown pairs are never allowed.
func (api *permissionApi) check(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	allowed := false
	if m, err := role.ParseModule(ctx.QueryParam("module")); err == nil {
		if a, err := role.ParseAction(m, ctx.QueryParam("action")); err == nil {
			allowed = api.svc.Resolver().HasPermission(ctx.Request().Context(), sess.Subject(), m, a)
		}
	}
	return ctx.JSON(http.StatusOK, CheckResponse{Allowed: allowed})
}

type CheckResponse struct {
	Allowed bool `json:"allowed"`
}
