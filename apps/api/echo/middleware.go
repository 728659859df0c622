package echoapi

import (
	"net"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

const (
	contextObjectKey = "object"
	allSchoolsParam  = "all_schools"
)

// permissionGuard returns a middleware rejecting sessions without (module, action).
type permissionGuard func(role.Module, role.Action) echo.MiddlewareFunc

func (s *Server) requirePermission(m role.Module, a role.Action) echo.MiddlewareFunc {
	resolver := s.deps.Roles.Resolver()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return err
			}
			if !resolver.HasPermission(ctx.Request().Context(), sess.Subject(), m, a) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// ipRestriction enforces the allowed address list of the session's school, when enabled.
// The super role is never restricted.
func (s *Server) ipRestriction(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		sess, err := getContextSession(ctx)
		if err != nil {
			return err
		}
		if sess.IsSuper() || s.deps.Settings == nil {
			return next(ctx)
		}
		c := ctx.Request().Context()
		if !s.deps.Settings.Bool(c, setting.KeyRestrictIP, sess.SchoolID(), sess.UserID) {
			return next(ctx)
		}
		if !ipAllowed(ctx.RealIP(), s.deps.Settings.Strings(c, setting.KeyAllowedIPs, sess.SchoolID(), sess.UserID)) {
			return errIPNotAllowed
		}
		return next(ctx)
	}
}

// ipAllowed matches ip against plain addresses and CIDR blocks.
func ipAllowed(ip string, allowed []string) bool {
	addr := net.ParseIP(ip)
	for _, a := range allowed {
		if a == ip {
			return true
		}
		if _, block, err := net.ParseCIDR(a); err == nil && addr != nil && block.Contains(addr) {
			return true
		}
	}
	return false
}

// contextScope is the school filter of the request. `?all_schools=true` is super role only.
func contextScope(ctx echo.Context) (tenant.Scope, error) {
	sess, err := getContextSession(ctx)
	if err != nil {
		return tenant.Scope{}, err
	}
	all, _ := strconv.ParseBool(ctx.QueryParam(allSchoolsParam))
	return sess.Scope(all)
}

func paramID(ctx echo.Context, name ...string) (int64, error) {
	param := "id"
	if len(name) > 0 {
		param = name[0]
	}
	id, err := strconv.ParseInt(ctx.Param(param), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// objectMiddleware loads the object named by the `:id` param, visible in the request scope, into the context.
func objectMiddleware(load func(ctx echo.Context, id int64, scope tenant.Scope) (interface{}, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := paramID(ctx)
			if err != nil {
				return err
			}
			scope, err := contextScope(ctx)
			if err != nil {
				return err
			}
			obj, err := load(ctx, id, scope)
			if err != nil {
				return errors.Wrap(err, "loading object")
			}
			ctx.Set(contextObjectKey, obj)
			return next(ctx)
		}
	}
}

// auditEntry prefills an audit row with the request's actor and origin.
func auditEntry(ctx echo.Context, action audit.Action, target string, detail ...string) audit.Log {
	l := audit.Log{
		Action:    action,
		Target:    target,
		IP:        ctx.RealIP(),
		UserAgent: ctx.Request().UserAgent(),
	}
	if len(detail) > 0 {
		l.Detail = detail[0]
	}
	if sess, err := getContextSession(ctx); err == nil {
		l.UserID = audit.Int64Ptr(sess.UserID)
		l.SchoolID = audit.Int64Ptr(sess.SchoolID())
	}
	return l
}
