package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

var errSettingNotFoundInCtx = errors.New("setting object not found in echo.Context")

type settingApi struct {
	svc      *setting.Service
	validate *validator.Validate
	recorder *audit.Recorder
}

func registerSettingAPI(g *echo.Group, guard permissionGuard, svc *setting.Service, validate *validator.Validate, recorder *audit.Recorder) {
	api := settingApi{
		svc:      svc,
		validate: validate,
		recorder: recorder,
	}
	// rows of other schools are invisible to everyone but the super role
	load := objectMiddleware(func(ctx echo.Context, id int64, _ tenant.Scope) (interface{}, error) {
		sess, err := getContextSession(ctx)
		if err != nil {
			return nil, err
		}
		s, err := api.svc.Get(ctx.Request().Context(), id)
		if err != nil {
			return nil, err
		}
		if s.SchoolID != nil && !sess.CanAccessSchool(*s.SchoolID) {
			return nil, setting.ErrNotFound
		}
		return s, nil
	})

	sg := g.Group("/settings")
	sg.PUT("", api.set, guard(role.ModuleSetting, role.ActionEdit))
	sg.GET("", api.query, guard(role.ModuleSetting, role.ActionView))
	sg.GET("/resolve", api.resolve)
	sg.GET("/:id", api.retrieve, guard(role.ModuleSetting, role.ActionView), load)
	sg.GET("/:id/history", api.history, guard(role.ModuleSetting, role.ActionView), load)
	sg.DELETE("/:id", api.destroy, guard(role.ModuleSetting, role.ActionDelete), load)
}

func getContextObjectSetting(ctx echo.Context) (setting.Setting, error) {
	s, ok := ctx.Get(contextObjectKey).(setting.Setting)
	if !ok {
		return setting.Setting{}, errors.Wrap(errSettingNotFoundInCtx, "retrieving object from context")
	}
	return s, nil
}

// Handlers

func (api *settingApi) set(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data setting.SetSetting
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetSetting")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Set(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "setting value")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionSettingChanged, s.Key, string(s.Scope)+"="+s.Value))
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingApi) query(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	filter := new(setting.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []setting.Setting{})
	}
	filter.Clean()
	if !sess.IsSuper() {
		if filter.SchoolID != 0 && !sess.CanAccessSchool(filter.SchoolID) {
			return core.ErrForbidden
		}
		if filter.Scope == setting.ScopeSchool {
			filter.SchoolID = sess.SchoolID()
		}
	}

	settings, err := api.svc.Query(ctx.Request().Context(), *filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying settings")
	}
	out := make([]setting.Setting, 0, len(settings))
	for _, s := range settings {
		if s.SchoolID == nil || sess.CanAccessSchool(*s.SchoolID) {
			out = append(out, s)
		}
	}
	return ctx.JSON(http.StatusOK, out)
}

// resolve returns the effective value of `?key=` for the current user and school.
func (api *settingApi) resolve(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.Resolve(ctx.Request().Context(), ctx.QueryParam("key"), sess.SchoolID(), sess.UserID)
	if err != nil {
		return errors.Wrap(err, "resolving setting")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingApi) retrieve(ctx echo.Context) error {
	s, err := getContextObjectSetting(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingApi) history(ctx echo.Context) error {
	s, err := getContextObjectSetting(ctx)
	if err != nil {
		return err
	}
	hist, err := api.svc.History(ctx.Request().Context(), s)
	if err != nil {
		return errors.Wrap(err, "querying setting history")
	}
	if hist == nil {
		hist = []setting.History{}
	}
	return ctx.JSON(http.StatusOK, hist)
}

func (api *settingApi) destroy(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	s, err := getContextObjectSetting(ctx)
	if err != nil {
		return err
	}
	if s.Scope == setting.ScopeGlobal && !sess.IsSuper() {
		return core.ErrForbidden
	}
	if err := api.svc.Delete(ctx.Request().Context(), s); err != nil {
		return errors.Wrap(err, "deleting setting")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionSettingChanged, s.Key, "deleted"))
	return ctx.NoContent(http.StatusNoContent)
}
