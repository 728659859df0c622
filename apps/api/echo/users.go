package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/photo"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
)

var errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")

type userApi struct {
	svc      *user.Service
	photos   *photo.Store
	validate *validator.Validate
	recorder *audit.Recorder
}

func registerUserAPI(g *echo.Group, guard permissionGuard, svc *user.Service, photos *photo.Store, validate *validator.Validate, recorder *audit.Recorder) {
	api := userApi{
		svc:      svc,
		photos:   photos,
		validate: validate,
		recorder: recorder,
	}
	load := objectMiddleware(func(ctx echo.Context, id int64, scope tenant.Scope) (interface{}, error) {
		return api.svc.Get(ctx.Request().Context(), id, scope)
	})

	ug := g.Group("/users")
	ug.POST("", api.create, guard(role.ModuleUser, role.ActionCreate))
	ug.GET("", api.query, guard(role.ModuleUser, role.ActionView))

	// detail endpoints
	ug.GET("/:id", api.retrieve, guard(role.ModuleUser, role.ActionView), load)
	ug.PUT("/:id", api.update, guard(role.ModuleUser, role.ActionEdit), load)
	ug.DELETE("/:id", api.destroy, guard(role.ModuleUser, role.ActionDelete), load)
	ug.POST("/:id/unlock", api.unlock, guard(role.ModuleUser, role.ActionEdit), load)
	ug.GET("/:id/photo", api.downloadPhoto, guard(role.ModuleUser, role.ActionView), load)
	ug.PUT("/:id/photo", api.uploadPhoto, guard(role.ModuleUser, role.ActionEdit), load)
	ug.DELETE("/:id/photo", api.removePhoto, guard(role.ModuleUser, role.ActionEdit), load)
}

func getContextObjectUser(ctx echo.Context) (user.User, error) {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return user.User{}, errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return usr, nil
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	c := ctx.Request().Context()
	if err := data.Validate(c, api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Create(c, sess, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionUserCreated, usr.Email))
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	scope, err := contextScope(ctx)
	if err != nil {
		return err
	}
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), *filter, scope, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := getContextObjectUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextObjectUser(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	c := ctx.Request().Context()
	if err := data.Validate(c, usr, api.validate, api.svc); err != nil {
		return err
	}

	usr, err = api.svc.Update(c, sess, usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionUserUpdated, usr.Email))
	if data.Password != "" {
		api.recorder.Record(auditEntry(ctx, audit.ActionPasswordSet, usr.Email))
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextObjectUser(ctx)
	if err != nil {
		return err
	}

	c := ctx.Request().Context()
	if err := api.svc.Delete(c, sess, usr); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	api.photos.Discard(c, usr.Photo)
	api.recorder.Record(auditEntry(ctx, audit.ActionUserDeleted, usr.Email))
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) unlock(ctx echo.Context) error {
	usr, err := getContextObjectUser(ctx)
	if err != nil {
		return err
	}
	usr, err = api.svc.Unlock(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "unlocking user")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionUserUnlocked, usr.Email))
	return ctx.JSON(http.StatusOK, usr)
}
