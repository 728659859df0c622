package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/movement"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/services/export"
)

const exportDateLayout = "20060102"

type reportApi struct {
	dossiers  *dossier.Service
	movements *movement.Service
	settings  *setting.Service
	recorder  *audit.Recorder
}

func registerReportAPI(
	g *echo.Group,
	guard permissionGuard,
	dossiers *dossier.Service,
	movements *movement.Service,
	settings *setting.Service,
	recorder *audit.Recorder,
) {
	api := reportApi{
		dossiers:  dossiers,
		movements: movements,
		settings:  settings,
		recorder:  recorder,
	}

	rg := g.Group("/reports")
	rg.GET("/summary", api.summary, guard(role.ModuleReport, role.ActionView))
	rg.GET("/dossiers.xlsx", api.exportDossiers, guard(role.ModuleReport, role.ActionGen), api.exportAllowed)
	rg.GET("/movements.xlsx", api.exportMovements, guard(role.ModuleReport, role.ActionGen), api.exportAllowed)
}

// exportAllowed honours the export switch of the session's school.
func (api *reportApi) exportAllowed(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		sess, err := getContextSession(ctx)
		if err != nil {
			return err
		}
		if api.settings != nil && !api.settings.Bool(ctx.Request().Context(), setting.KeyAllowExport, sess.SchoolID(), sess.UserID) {
			return errExportDisabled
		}
		return next(ctx)
	}
}

// Handlers

func (api *reportApi) summary(ctx echo.Context) error {
	scope, err := contextScope(ctx)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()

	dossiers, err := api.dossiers.CountByStatus(c, scope)
	if err != nil {
		return errors.Wrap(err, "counting dossiers")
	}
	movs, err := api.movements.CountByStatus(c, scope)
	if err != nil {
		return errors.Wrap(err, "counting movements")
	}
	overdue, err := api.allOverdue(ctx, scope)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SummaryResponse{Dossiers: dossiers, Movements: movs, Overdue: len(overdue)})
}

func (api *reportApi) exportDossiers(ctx echo.Context) error {
	scope, err := contextScope(ctx)
	if err != nil {
		return err
	}
	filter := new(dossier.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to dossier.QueryFilter")
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	var all []dossier.Dossier
	for page := (core.Page{Limit: core.MaxPageSize}); ; page.Offset += page.Limit {
		ds, err := api.dossiers.Query(ctx.Request().Context(), *filter, scope, ordering.Orderings, page)
		if err != nil {
			return errors.Wrap(err, "querying dossiers")
		}
		all = append(all, ds...)
		if len(ds) < page.Limit {
			break
		}
	}

	buf := new(bytes.Buffer)
	if err := export.Dossiers(buf, all); err != nil {
		return errors.Wrap(err, "writing dossiers spreadsheet")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionExport, "dossiers", fmt.Sprintf("%d rows", len(all))))
	return sendSpreadsheet(ctx, "dossies", buf)
}

// exportMovements writes the movements matching the filter, or the overdue ones with `?overdue=true`.
func (api *reportApi) exportMovements(ctx echo.Context) error {
	scope, err := contextScope(ctx)
	if err != nil {
		return err
	}

	var all []movement.Movement
	if ctx.QueryParam("overdue") == "true" {
		if all, err = api.allOverdue(ctx, scope); err != nil {
			return err
		}
	} else {
		filter := new(movement.QueryFilter)
		if err := ctx.Bind(filter); err != nil {
			return errors.Wrap(err, "binding to movement.QueryFilter")
		}
		filter.Clean()
		ordering := new(Ordering)
		ordering.Bind(ctx)

		for page := (core.Page{Limit: core.MaxPageSize}); ; page.Offset += page.Limit {
			ms, err := api.movements.Query(ctx.Request().Context(), *filter, scope, ordering.Orderings, page)
			if err != nil {
				return errors.Wrap(err, "querying movements")
			}
			all = append(all, ms...)
			if len(ms) < page.Limit {
				break
			}
		}
	}

	buf := new(bytes.Buffer)
	if err := export.Movements(buf, all, core.Now()); err != nil {
		return errors.Wrap(err, "writing movements spreadsheet")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionExport, "movements", fmt.Sprintf("%d rows", len(all))))
	return sendSpreadsheet(ctx, "movimentacoes", buf)
}

func (api *reportApi) allOverdue(ctx echo.Context, scope tenant.Scope) ([]movement.Movement, error) {
	var all []movement.Movement
	for page := (core.Page{Limit: core.MaxPageSize}); ; page.Offset += page.Limit {
		ms, err := api.movements.Overdue(ctx.Request().Context(), scope, page)
		if err != nil {
			return nil, errors.Wrap(err, "querying overdue movements")
		}
		all = append(all, ms...)
		if len(ms) < page.Limit {
			return all, nil
		}
	}
}

func sendSpreadsheet(ctx echo.Context, name string, buf *bytes.Buffer) error {
	filename := fmt.Sprintf("%s_%s.xlsx", name, core.Now().Format(exportDateLayout))
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, export.ContentType, buf.Bytes())
}

type SummaryResponse struct {
	Dossiers  map[dossier.Status]int  `json:"dossiers"`
	Movements map[movement.Status]int `json:"movements"`
	Overdue   int                     `json:"overdue"`
}
