package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

type Status string

// Statuses
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBlocked  Status = "blocked"
)

var AllStatuses = []Status{StatusActive, StatusInactive, StatusBlocked}

type User struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	CPF          string     `json:"cpf,omitempty"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	SchoolID     int64      `json:"school_id"`
	RoleID       int64      `json:"role_id"`
	RoleName     string     `json:"role_name"`
	Status       Status     `json:"status"`
	PasswordHash []byte     `json:"-"`
	FailedLogins int        `json:"failed_logins"`
	LockedUntil  *time.Time `json:"locked_until,omitempty"` // UTC
	LastLogin    *time.Time `json:"last_login,omitempty"`   // UTC
	Photo        string     `json:"photo,omitempty"` // file store key, set through SetPhoto
	CreatedAt    time.Time  `json:"created_at"` // UTC
	UpdatedAt    time.Time  `json:"updated_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsActive() bool { return u.Status == StatusActive }

func (u User) IsSuper() bool { return u.RoleName == role.SuperRoleName }

func (u User) Subject() role.Subject {
	return role.Subject{UserID: u.ID, RoleID: u.RoleID, RoleName: u.RoleName}
}

func (u User) Actor() core.Actor {
	return core.Actor{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Session builds the tenant session of u, keeping a previous school override if any.
func (u User) Session(currentSchoolID *int64) tenant.Session {
	sess := tenant.NewSession(u.ID, u.Name, u.Email, u.RoleID, u.RoleName, u.SchoolID)
	if currentSchoolID != nil && sess.IsSuper() {
		_ = sess.Switch(*currentSchoolID)
	}
	return sess
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required,max=100"`
	CPF             string `json:"cpf" validate:"omitempty,cpf"`
	Email           string `json:"email" validate:"required,email,max=120"`
	Phone           string `json:"phone" validate:"omitempty,phone_br"`
	SchoolID        int64  `json:"school_id" validate:"required"`
	RoleID          int64  `json:"role_id" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.CPF = core.OnlyDigits(nu.CPF)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Phone = core.OnlyDigits(nu.Phone)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string  `json:"name" validate:"max=100"`
	CPF             *string `json:"cpf" validate:"omitempty,cpf"`
	Email           string  `json:"email" validate:"omitempty,email,max=120"`
	Phone           *string `json:"phone" validate:"omitempty,phone_br"`
	SchoolID        *int64  `json:"school_id" validate:"omitempty,min=1"`
	RoleID          *int64  `json:"role_id" validate:"omitempty,min=1"`
	Status          *Status `json:"status" validate:"omitempty,oneof=active inactive blocked"`
	Password        string  `json:"password" validate:"omitempty"`
	PasswordConfirm string  `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	if uu.CPF != nil {
		cpf := core.OnlyDigits(*uu.CPF)
		uu.CPF = &cpf
	}
	if uu.Phone != nil {
		phone := core.OnlyDigits(*uu.Phone)
		uu.Phone = &phone
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.checkUniqueness(ctx, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search string `query:"search"`
	RoleID int64  `query:"role_id"`
	Status Status `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.RoleID == 0 && qf.Status == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = Status(core.CleanString(string(qf.Status), true /* lower */))
}
