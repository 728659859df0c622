package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/auth"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
)

var errWrongPassword = errors.New("current password is incorrect")

type authApi struct {
	svc      *auth.Service
	users    *user.Service
	schools  *school.Service
	resolver *role.Resolver
	recorder *audit.Recorder
	tokens   tokenIssuer
	validate *validator.Validate
	logger   core.Logger
}

func registerAuthAPI(public, authed *echo.Group, s *Server) {
	api := authApi{
		svc:      s.deps.Auth,
		users:    s.deps.Users,
		schools:  s.deps.Schools,
		resolver: s.deps.Roles.Resolver(),
		recorder: s.deps.Recorder,
		tokens:   s.tokens,
		validate: s.deps.Validate,
		logger:   s.deps.Logger,
	}

	// un-authed endpoints
	public.POST("/auth/login", api.login)
	public.POST("/auth/password-reset", api.resetPassword)
	public.POST("/auth/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	authed.POST("/auth/logout", api.logout)
	authed.POST("/auth/token-refresh", api.refreshToken)
	authed.POST("/auth/switch-school", api.switchSchool)
	authed.POST("/auth/password", api.changePassword)
	authed.GET("/auth/me", api.me)
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Login(ctx.Request().Context(), auth.Attempt{
		Email:     data.Email,
		Password:  data.Password,
		IP:        ctx.RealIP(),
		UserAgent: ctx.Request().UserAgent(),
	})
	if err != nil {
		return err
	}

	sess := usr.Session(nil)
	token, claims, err := api.tokens.issue(ctx, sess, data.RememberMe)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: claims.ExpiresAt, User: usr, Session: sess})
}

func (api *authApi) logout(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	api.svc.Logout(sess, ctx.RealIP(), ctx.Request().UserAgent())
	api.tokens.clearCookie(ctx)
	return ctx.NoContent(http.StatusNoContent)
}

// refreshToken re-issues the session token, provided the account is still usable.
func (api *authApi) refreshToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	usr, err := api.users.Get(ctx.Request().Context(), claims.Session.UserID, tenant.AllSchools())
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errUnauthorized
		}
		return errors.Wrap(err, "finding user")
	}
	if !usr.IsActive() {
		return auth.ErrAccountInactive
	}

	sess := usr.Session(claims.Session.CurrentSchoolID)
	token, newClaims, err := api.tokens.issue(ctx, sess, claims.RememberMe)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: newClaims.ExpiresAt, User: usr, Session: sess})
}

func (api *authApi) switchSchool(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data SwitchSchoolRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SwitchSchoolRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	if !claims.Session.IsSuper() {
		return tenant.ErrSwitchForbidden
	}
	if data.SchoolID != 0 {
		if _, err := api.schools.Get(ctx.Request().Context(), data.SchoolID, tenant.AllSchools()); err != nil {
			return errors.Wrap(err, "finding school")
		}
	}
	sess, err := api.svc.SwitchSchool(claims.Session, data.SchoolID, ctx.RealIP())
	if err != nil {
		return err
	}

	token, newClaims, err := api.tokens.issue(ctx, sess, claims.RememberMe)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, SessionResponse{Token: token, ExpiresAt: newClaims.ExpiresAt, Session: sess})
}

func (api *authApi) me(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()
	usr, err := api.users.Get(c, sess.UserID, tenant.AllSchools())
	if err != nil {
		return errors.Wrap(err, "finding user")
	}
	perms, err := api.resolver.Permissions(c, sess.Subject())
	if err != nil {
		return errors.Wrap(err, "resolving permissions")
	}
	menus := make(map[string]bool, len(role.Menus))
	for menu := range role.Menus {
		menus[menu] = api.resolver.CanAccessMenu(c, sess.Subject(), menu)
	}
	return ctx.JSON(http.StatusOK, MeResponse{User: usr, Session: sess, Permissions: perms, Menus: menus})
}

func (api *authApi) changePassword(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data ChangePasswordRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePasswordRequest")
	}

	c := ctx.Request().Context()
	usr, err := api.users.Get(c, sess.UserID, tenant.AllSchools())
	if err != nil {
		return errors.Wrap(err, "finding user")
	}
	if err := usr.CheckPassword(data.CurrentPassword); err != nil {
		return core.NewFieldValidationError("current_password", errWrongPassword)
	}

	uu := user.UpdateUser{Password: data.Password, PasswordConfirm: data.PasswordConfirm}
	if uu.Password == "" {
		return core.NewFieldValidationError("password", errors.New("this field is required"))
	}
	if err := uu.Validate(c, usr, api.validate, api.users); err != nil {
		return err
	}
	if _, err := api.users.Update(c, sess, usr, uu); err != nil {
		return errors.Wrap(err, "updating password")
	}
	api.recorder.Record(auditEntry(ctx, audit.ActionPasswordSet, usr.Email))
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been changed."})
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.users.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.users.ResetPassword(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "resetting password")
	}
	l := auditEntry(ctx, audit.ActionPasswordSet, usr.Email, "reset")
	l.UserID = audit.Int64Ptr(usr.ID)
	l.SchoolID = audit.Int64Ptr(usr.SchoolID)
	api.recorder.Record(l)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

type (
	LoginRequest struct {
		Email      string `json:"email" validate:"required,email"`
		Password   string `json:"password" validate:"required"`
		RememberMe bool   `json:"remember_me"`
	}

	LoginResponse struct {
		Token     string         `json:"token"`
		ExpiresAt int64          `json:"expires_at"`
		User      user.User      `json:"user"`
		Session   tenant.Session `json:"session"`
	}

	SessionResponse struct {
		Token     string         `json:"token"`
		ExpiresAt int64          `json:"expires_at"`
		Session   tenant.Session `json:"session"`
	}

	MeResponse struct {
		User        user.User       `json:"user"`
		Session     tenant.Session  `json:"session"`
		Permissions role.Set        `json:"permissions"`
		Menus       map[string]bool `json:"menus"`
	}

	SwitchSchoolRequest struct {
		SchoolID int64 `json:"school_id" validate:"min=0"`
	}

	ChangePasswordRequest struct {
		CurrentPassword string `json:"current_password"`
		Password        string `json:"password"`
		PasswordConfirm string `json:"password_confirm"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
