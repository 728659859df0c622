package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/attachment"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/auth"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/city"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/director"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/movement"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/photo"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/requester"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
)

var (
	errUnauthorized    = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errInvalidToken    = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired jwt")
	errHttpForbidden   = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound    = echo.NewHTTPError(http.StatusNotFound, "not found")
	errIPNotAllowed    = echo.NewHTTPError(http.StatusForbidden, "access from this address is not allowed")
	errExportDisabled  = echo.NewHTTPError(http.StatusForbidden, "exports are disabled")
	errBackupsDisabled = echo.NewHTTPError(http.StatusServiceUnavailable, "backups are not configured")

	notFoundErrors = []error{
		user.ErrNotFound,
		role.ErrNotFound,
		school.ErrNotFound,
		city.ErrNotFound,
		requester.ErrNotFound,
		dossier.ErrNotFound,
		director.ErrNotFound,
		photo.ErrNotFound,
		attachment.ErrNotFound,
		movement.ErrNotFound,
		setting.ErrNotFound,
	}
	forbiddenErrors = []error{
		core.ErrForbidden,
		tenant.ErrSwitchForbidden,
		tenant.ErrAllForbidden,
		attachment.ErrDownloadDisabled,
	}
)

func isOneOf(err error, errs []error) bool {
	for _, e := range errs {
		if err == e {
			return true
		}
	}
	return false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *auth.LockedError:
			code = http.StatusLocked
			message = echo.Map{"error": origErr.Error(), "remaining_minutes": origErr.Minutes()}
		case *auth.IPBlockedError:
			code = http.StatusTooManyRequests
			message = echo.Map{"error": origErr.Error(), "remaining_minutes": origErr.Minutes()}
		default:
			switch {
			case cause == auth.ErrInvalidCredentials:
				code = http.StatusBadRequest
				message = cause.Error()
			case cause == auth.ErrAccountInactive:
				code = http.StatusForbidden
				message = cause.Error()
			case isOneOf(cause, forbiddenErrors):
				code = http.StatusForbidden
				message = errHttpForbidden.Message
			case isOneOf(cause, notFoundErrors):
				code = http.StatusNotFound
				message = errHttpNotFound.Message
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var actor core.Actor
				if sess, sErr := getContextSession(ctx); sErr == nil {
					actor = core.Actor{ID: sess.UserID, Name: sess.Name, Email: sess.Email}
				}
				logger.Error(msg, errors.Wrap(err, msg), actor)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
