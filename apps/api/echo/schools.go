package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/director"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

var (
	errSchoolNotFoundInCtx = errors.New("school object not found in echo.Context")
	errDirectorInactive    = errors.New("director is not active")
)

type schoolApi struct {
	svc       *school.Service
	directors *director.Service
	validate  *validator.Validate
	recorder  *audit.Recorder
}

func registerSchoolAPI(g *echo.Group, guard permissionGuard, svc *school.Service, directors *director.Service, validate *validator.Validate, recorder *audit.Recorder) {
	api := schoolApi{
		svc:       svc,
		directors: directors,
		validate:  validate,
		recorder:  recorder,
	}
	// the super role reaches any school whichever one it is operating on, everyone else only their own
	load := objectMiddleware(func(ctx echo.Context, id int64, _ tenant.Scope) (interface{}, error) {
		sess, err := getContextSession(ctx)
		if err != nil {
			return nil, err
		}
		scope := tenant.ForSchool(sess.HomeSchoolID)
		if sess.IsSuper() {
			scope = tenant.AllSchools()
		}
		return api.svc.Get(ctx.Request().Context(), id, scope)
	})

	sg := g.Group("/schools")
	sg.POST("", api.create, guard(role.ModuleSchool, role.ActionCreate))
	sg.GET("", api.query, guard(role.ModuleSchool, role.ActionView))
	sg.GET("/:id", api.retrieve, guard(role.ModuleSchool, role.ActionView), load)
	sg.PUT("/:id", api.update, guard(role.ModuleSchool, role.ActionEdit), load)
	sg.PUT("/:id/director", api.setDirector, guard(role.ModuleSchool, role.ActionEdit), load)
	sg.DELETE("/:id", api.destroy, guard(role.ModuleSchool, role.ActionDelete), load)
}

func getContextObjectSchool(ctx echo.Context) (school.School, error) {
	s, ok := ctx.Get(contextObjectKey).(school.School)
	if !ok {
		return school.School{}, errors.Wrap(errSchoolNotFoundInCtx, "retrieving object from context")
	}
	return s, nil
}

// Handlers

func (api *schoolApi) create(ctx echo.Context) error {
	var data school.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionSchoolCreated, s.Name))
	return ctx.JSON(http.StatusCreated, s)
}

func (api *schoolApi) query(ctx echo.Context) error {
	scope, err := contextScope(ctx)
	if err != nil {
		return err
	}
	filter := new(school.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.School{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	schools, err := api.svc.Query(ctx.Request().Context(), *filter, scope, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	s, err := getContextObjectSchool(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *schoolApi) update(ctx echo.Context) error {
	s, err := getContextObjectSchool(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchool")
	}
	if err := data.Validate(s, api.validate); err != nil {
		return err
	}

	s, err = api.svc.Update(ctx.Request().Context(), s, data)
	if err != nil {
		return errors.Wrap(err, "updating school")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionSchoolUpdated, s.Name))
	return ctx.JSON(http.StatusOK, s)
}

func (api *schoolApi) setDirector(ctx echo.Context) error {
	s, err := getContextObjectSchool(ctx)
	if err != nil {
		return err
	}
	var data school.Director
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Director")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if data.DirectorID != nil {
		d, err := api.directors.Get(ctx.Request().Context(), *data.DirectorID)
		if err != nil {
			if errors.Cause(err) == director.ErrNotFound {
				return core.NewFieldValidationError("director_id", err)
			}
			return errors.Wrap(err, "finding director")
		}
		if !d.IsActive() {
			return core.NewFieldValidationError("director_id", errDirectorInactive)
		}
		data.DirectorName = d.Name
	}

	s, err = api.svc.SetDirector(ctx.Request().Context(), s, data)
	if err != nil {
		return errors.Wrap(err, "setting school director")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionSchoolUpdated, s.Name, "director"))
	return ctx.JSON(http.StatusOK, s)
}

func (api *schoolApi) destroy(ctx echo.Context) error {
	s, err := getContextObjectSchool(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), s); err != nil {
		return errors.Wrap(err, "deleting school")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionSchoolDeleted, s.Name))
	return ctx.NoContent(http.StatusNoContent)
}
