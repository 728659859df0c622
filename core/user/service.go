package user

import (
	"context"
	"errors"
	"net/mail"

	pkgerrors "github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

var (
	// errors
	ErrNotFound        = errors.New("user not found")
	ErrEmailExists     = errors.New("a user with this email already exists")
	ErrDeleteSelf      = errors.New("users cannot delete themselves")
	ErrSchoolForbidden = errors.New("users can only be managed in your own school")
	ErrRoleForbidden   = errors.New("not enough rights to set this role")
	ErrUnknownRole     = errors.New("unknown role")
)

type (
	Repository interface {
		// CheckEmailUniqueness returns ErrEmailExists when another user owns email.
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, id int64, scope tenant.Scope) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Email or User.CPF.
		QueryUsers(ctx context.Context, filter QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		// UpdateLoginState persists FailedLogins, LockedUntil and LastLogin only.
		UpdateLoginState(ctx context.Context, usr User) error
		DeleteUser(ctx context.Context, id int64) error
	}

	// Roles is the part of the role service users depend on.
	Roles interface {
		Get(ctx context.Context, id int64) (role.Role, error)
		InvalidateUser(ctx context.Context, userID int64)
	}

	Service struct {
		repo    Repository
		roles   Roles
		mailSvc core.EmailService
		logger  core.Logger
		tokens  tokenGenerator
		goFunc  func(fn func())
	}
)

func NewService(repo Repository, roles Roles, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		repo:    repo,
		roles:   roles,
		mailSvc: mailSvc,
		logger:  logger,
		tokens: tokenGenerator{
			secret:  conf.SecretKey,
			timeout: conf.PasswordResetTimeoutDelta,
			now:     core.Now,
		},
		goFunc: func(fn func()) { go fn() },
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers...); err != nil {
		if err == ErrEmailExists {
			return core.NewFieldValidationError("email", err)
		}
		return err
	}
	return nil
}

// checkAssignment enforces what a non-super actor may set on a user: their own school, no super role.
func (svc *Service) checkAssignment(ctx context.Context, actor tenant.Session, schoolID, roleID int64) (role.Role, error) {
	if !actor.CanAccessSchool(schoolID) {
		return role.Role{}, core.NewFieldValidationError("school_id", ErrSchoolForbidden)
	}
	r, err := svc.roles.Get(ctx, roleID)
	if err != nil {
		if pkgerrors.Cause(err) == role.ErrNotFound {
			return role.Role{}, core.NewFieldValidationError("role_id", ErrUnknownRole)
		}
		return role.Role{}, pkgerrors.Wrap(err, "finding role")
	}
	if r.IsSuper() && !actor.IsSuper() {
		return role.Role{}, core.NewFieldValidationError("role_id", ErrRoleForbidden)
	}
	return r, nil
}

func (svc *Service) Create(ctx context.Context, actor tenant.Session, nu NewUser) (User, error) {
	r, err := svc.checkAssignment(ctx, actor, nu.SchoolID, nu.RoleID)
	if err != nil {
		return User{}, err
	}

	now := core.Now()
	usr := User{
		Name:      nu.Name,
		CPF:       nu.CPF,
		Email:     nu.Email,
		Phone:     nu.Phone,
		SchoolID:  nu.SchoolID,
		RoleID:    r.ID,
		RoleName:  r.Name,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

// Get finds a user visible in scope.
func (svc *Service) Get(ctx context.Context, id int64, scope tenant.Scope) (User, error) {
	return svc.repo.GetUser(ctx, id, scope)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, scope, ordering, page.Clean())
}

// Update applies uu to orig. Only the super role may modify a super role account.
func (svc *Service) Update(ctx context.Context, actor tenant.Session, orig User, uu UpdateUser) (User, error) {
	if orig.IsSuper() && !actor.IsSuper() {
		return User{}, core.ErrForbidden
	}
	usr := orig
	usr.Name = uu.Name
	usr.Email = uu.Email
	if uu.CPF != nil {
		usr.CPF = *uu.CPF
	}
	if uu.Phone != nil {
		usr.Phone = *uu.Phone
	}
	if uu.Status != nil {
		usr.Status = *uu.Status
	}
	if uu.SchoolID != nil {
		usr.SchoolID = *uu.SchoolID
	}
	if uu.RoleID != nil {
		usr.RoleID = *uu.RoleID
	}

	if usr.SchoolID != orig.SchoolID || usr.RoleID != orig.RoleID {
		r, err := svc.checkAssignment(ctx, actor, usr.SchoolID, usr.RoleID)
		if err != nil {
			return User{}, err
		}
		usr.RoleName = r.Name
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	usr.UpdatedAt = core.Now()

	updated, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	if updated.RoleID != orig.RoleID || updated.Status != orig.Status {
		svc.roles.InvalidateUser(ctx, updated.ID)
	}
	return updated, nil
}

func (svc *Service) Delete(ctx context.Context, actor tenant.Session, usr User) error {
	if usr.ID == actor.UserID {
		return core.NewValidationError(ErrDeleteSelf)
	}
	if usr.IsSuper() && !actor.IsSuper() {
		return core.ErrForbidden
	}
	if err := svc.repo.DeleteUser(ctx, usr.ID); err != nil {
		return err
	}
	svc.roles.InvalidateUser(ctx, usr.ID)
	return nil
}

// SetPassword replaces the password of usr, without policy checks. Used by the admin CLI.
func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, err
	}
	usr.UpdatedAt = core.Now()
	return svc.repo.UpdateUser(ctx, usr)
}

// RecordLoginState persists the lockout counters of usr.
func (svc *Service) RecordLoginState(ctx context.Context, usr User) error {
	return svc.repo.UpdateLoginState(ctx, usr)
}

// Unlock clears a running lockout of usr.
func (svc *Service) Unlock(ctx context.Context, usr User) (User, error) {
	usr.Unlock()
	if err := svc.repo.UpdateLoginState(ctx, usr); err != nil {
		return User{}, err
	}
	return usr, nil
}

// SetPhoto points usr at the photo stored under key, an empty key removes it.
// The previous key is returned so the caller can discard that file.
func (svc *Service) SetPhoto(ctx context.Context, actor tenant.Session, usr User, key string) (User, string, error) {
	if usr.IsSuper() && !actor.IsSuper() {
		return User{}, "", core.ErrForbidden
	}
	old := usr.Photo
	usr.Photo = key
	usr.UpdatedAt = core.Now()
	updated, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, "", err
	}
	return updated, old, nil
}

// RequestPasswordReset mails a reset link to the owner of email, in the background.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive() {
		return ErrNotFound
	}
	svc.goFunc(func() { svc.sendPasswordResetMail(usr) })
	return nil
}

func (svc *Service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": svc.tokens.makeToken(usr),
		},
	})
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) (User, error) {
	invalid := core.NewFieldValidationError("token", errInvalidToken)

	id, err := decodeUID(data.UID)
	if err != nil {
		return User{}, invalid
	}
	usr, err := svc.repo.GetUser(ctx, id, tenant.AllSchools())
	if err != nil {
		if pkgerrors.Cause(err) == ErrNotFound {
			return User{}, invalid
		}
		return User{}, pkgerrors.Wrap(err, "finding user")
	}
	if err := svc.tokens.verifyToken(usr, data.Token); err != nil {
		return User{}, core.NewFieldValidationError("token", err)
	}

	if err := usr.SetPassword(data.Password); err != nil {
		return User{}, err
	}
	usr.Unlock()
	usr.UpdatedAt = core.Now()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	if err := svc.repo.UpdateLoginState(ctx, usr); err != nil {
		return User{}, err
	}
	return usr, nil
}

// NotifyLocked mails usr that their account got locked after attempts failures, in the background.
func (svc *Service) NotifyLocked(usr User, attempts, minutes int) {
	svc.goFunc(func() {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "Account locked",
			TemplateName: "account_locked",
			TemplateData: map[string]interface{}{
				"Name":     usr.Name,
				"Attempts": attempts,
				"Minutes":  minutes,
			},
		})
	})
}
