// Package requester manages the external people asking for dossiers.
package requester

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

type Status string

// Statuses
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

var (
	// errors
	ErrNotFound  = errors.New("requester not found")
	ErrCPFExists = errors.New("a requester with this CPF already exists in this school")
)

type Requester struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	CPF          string     `json:"cpf,omitempty"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Address      string     `json:"address,omitempty"`
	CityID       *int64     `json:"city_id"`
	Relationship string     `json:"relationship,omitempty"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	RequestType  string     `json:"request_type,omitempty"`
	Status       Status     `json:"status"`
	SchoolID     int64      `json:"school_id"`
	CreatedAt    time.Time  `json:"created_at"` // UTC
	UpdatedAt    time.Time  `json:"updated_at"` // UTC
}

func (r Requester) IsActive() bool { return r.Status == StatusActive }

type NewRequester struct {
	Name         string     `json:"name" validate:"required,max=200"`
	CPF          string     `json:"cpf" validate:"omitempty,cpf"`
	Email        string     `json:"email" validate:"omitempty,email,max=120"`
	Phone        string     `json:"phone" validate:"omitempty,phone_br"`
	Address      string     `json:"address" validate:"max=300"`
	CityID       *int64     `json:"city_id" validate:"omitempty,min=1"`
	Relationship string     `json:"relationship" validate:"max=50"`
	BirthDate    *time.Time `json:"birth_date"`
	RequestType  string     `json:"request_type" validate:"max=50"`
}

func (nr *NewRequester) Validate(validate *validator.Validate) error {
	nr.Name = core.CleanString(nr.Name)
	nr.CPF = core.OnlyDigits(nr.CPF)
	nr.Email = core.CleanString(nr.Email, true /* lower */)
	nr.Phone = core.OnlyDigits(nr.Phone)
	nr.Address = core.CleanString(nr.Address)
	nr.Relationship = core.CleanString(nr.Relationship)
	nr.RequestType = core.CleanString(nr.RequestType)
	return validate.Struct(nr)
}

type UpdateRequester struct {
	Name         string     `json:"name" validate:"max=200"`
	CPF          *string    `json:"cpf" validate:"omitempty,cpf"`
	Email        *string    `json:"email" validate:"omitempty,email,max=120"`
	Phone        *string    `json:"phone" validate:"omitempty,phone_br"`
	Address      *string    `json:"address" validate:"omitempty,max=300"`
	CityID       *int64     `json:"city_id" validate:"omitempty,min=1"`
	Relationship *string    `json:"relationship" validate:"omitempty,max=50"`
	BirthDate    *time.Time `json:"birth_date"`
	RequestType  *string    `json:"request_type" validate:"omitempty,max=50"`
	Status       *Status    `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (ur *UpdateRequester) Validate(orig Requester, validate *validator.Validate) error {
	if ur.Name = core.CleanString(ur.Name); ur.Name == "" {
		ur.Name = orig.Name
	}
	if ur.CPF != nil {
		cpf := core.OnlyDigits(*ur.CPF)
		ur.CPF = &cpf
	}
	if ur.Phone != nil {
		phone := core.OnlyDigits(*ur.Phone)
		ur.Phone = &phone
	}
	if ur.Email != nil {
		email := core.CleanString(*ur.Email, true /* lower */)
		ur.Email = &email
	}
	return validate.Struct(ur)
}

type QueryFilter struct {
	Search string `query:"search"`
	Status Status `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = Status(core.CleanString(string(qf.Status), true /* lower */))
}

type (
	Repository interface {
		// CheckRequesterUniqueness returns ErrCPFExists when cpf is taken in schoolID. Empty cpf is not checked.
		CheckRequesterUniqueness(ctx context.Context, schoolID int64, cpf string, excl ...Requester) error
		CreateRequester(ctx context.Context, r Requester) (Requester, error)
		GetRequester(ctx context.Context, id int64, scope tenant.Scope) (Requester, error)
		QueryRequesters(ctx context.Context, filter QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]Requester, error)
		UpdateRequester(ctx context.Context, r Requester) (Requester, error)
		DeleteRequester(ctx context.Context, id int64) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) checkUniqueness(ctx context.Context, schoolID int64, cpf string, excl ...Requester) error {
	if err := svc.repo.CheckRequesterUniqueness(ctx, schoolID, cpf, excl...); err != nil {
		if err == ErrCPFExists {
			return core.NewFieldValidationError("cpf", err)
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, sess tenant.Session, nr NewRequester) (Requester, error) {
	schoolID := sess.SchoolID()
	if err := svc.checkUniqueness(ctx, schoolID, nr.CPF); err != nil {
		return Requester{}, err
	}
	now := core.Now()
	return svc.repo.CreateRequester(ctx, Requester{
		Name:         nr.Name,
		CPF:          nr.CPF,
		Email:        nr.Email,
		Phone:        nr.Phone,
		Address:      nr.Address,
		CityID:       nr.CityID,
		Relationship: nr.Relationship,
		BirthDate:    nr.BirthDate,
		RequestType:  nr.RequestType,
		Status:       StatusActive,
		SchoolID:     schoolID,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) Get(ctx context.Context, id int64, scope tenant.Scope) (Requester, error) {
	return svc.repo.GetRequester(ctx, id, scope)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]Requester, error) {
	return svc.repo.QueryRequesters(ctx, filter, scope, ordering, page.Clean())
}

func (svc *Service) Update(ctx context.Context, orig Requester, ur UpdateRequester) (Requester, error) {
	r := orig
	r.Name = ur.Name
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&r.CPF, ur.CPF)
	set(&r.Email, ur.Email)
	set(&r.Phone, ur.Phone)
	set(&r.Address, ur.Address)
	set(&r.Relationship, ur.Relationship)
	set(&r.RequestType, ur.RequestType)
	if ur.CityID != nil {
		r.CityID = ur.CityID
	}
	if ur.BirthDate != nil {
		r.BirthDate = ur.BirthDate
	}
	if ur.Status != nil {
		r.Status = *ur.Status
	}

	if err := svc.checkUniqueness(ctx, r.SchoolID, r.CPF, orig); err != nil {
		return Requester{}, err
	}
	r.UpdatedAt = core.Now()
	return svc.repo.UpdateRequester(ctx, r)
}

func (svc *Service) Delete(ctx context.Context, r Requester) error {
	return svc.repo.DeleteRequester(ctx, r.ID)
}
