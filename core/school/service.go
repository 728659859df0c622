// Package school manages the tenants: every scoped row belongs to one school.
package school

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

var (
	// errors
	ErrNotFound      = errors.New("school not found")
	ErrCNPJExists    = errors.New("a school with this CNPJ already exists")
	ErrINEPExists    = errors.New("a school with this INEP code already exists")
	ErrHasDependents = errors.New("school still has users or dossiers")
)

type (
	// Dependents counts the rows that keep a school from being deleted.
	Dependents struct {
		Users    int `json:"users"`
		Dossiers int `json:"dossiers"`
	}

	Repository interface {
		// CheckSchoolUniqueness returns ErrCNPJExists or ErrINEPExists. Empty values are not checked.
		CheckSchoolUniqueness(ctx context.Context, cnpj, inep string, excl ...School) error
		CreateSchool(ctx context.Context, s School) (School, error)
		GetSchool(ctx context.Context, id int64) (School, error)
		QuerySchools(ctx context.Context, filter QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]School, error)
		UpdateSchool(ctx context.Context, s School) (School, error)
		DeleteSchool(ctx context.Context, id int64) error
		CountSchoolDependents(ctx context.Context, id int64) (Dependents, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) checkUniqueness(ctx context.Context, cnpj, inep string, excl ...School) error {
	if err := svc.repo.CheckSchoolUniqueness(ctx, cnpj, inep, excl...); err != nil {
		switch err {
		case ErrCNPJExists:
			return core.NewFieldValidationError("cnpj", err)
		case ErrINEPExists:
			return core.NewFieldValidationError("inep", err)
		default:
			return err
		}
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewSchool) (School, error) {
	if err := svc.checkUniqueness(ctx, ns.CNPJ, ns.INEP); err != nil {
		return School{}, err
	}
	now := core.Now()
	s := School{
		Name:         ns.Name,
		Address:      ns.Address,
		CityID:       ns.CityID,
		CNPJ:         ns.CNPJ,
		INEP:         ns.INEP,
		Email:        ns.Email,
		Phone:        ns.Phone,
		UF:           ns.UF,
		Status:       StatusActive,
		DirectorName: ns.DirectorName,
		ViceDirector: ns.ViceDirector,
		Notes:        ns.Notes,
		RegisteredAt: ns.RegisteredAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateSchool(ctx, s)
}

// Get finds a school visible in scope.
func (svc *Service) Get(ctx context.Context, id int64, scope tenant.Scope) (School, error) {
	if !scope.Allows(id) {
		return School{}, ErrNotFound
	}
	return svc.repo.GetSchool(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]School, error) {
	return svc.repo.QuerySchools(ctx, filter, scope, ordering, page.Clean())
}

func (svc *Service) Update(ctx context.Context, orig School, us UpdateSchool) (School, error) {
	s := orig
	s.Name = us.Name
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&s.Address, us.Address)
	set(&s.CNPJ, us.CNPJ)
	set(&s.INEP, us.INEP)
	set(&s.Email, us.Email)
	set(&s.Phone, us.Phone)
	set(&s.UF, us.UF)
	set(&s.DirectorName, us.DirectorName)
	set(&s.ViceDirector, us.ViceDirector)
	set(&s.Notes, us.Notes)
	if us.CityID != nil {
		s.CityID = us.CityID
	}
	if us.Status != nil {
		s.Status = *us.Status
	}
	if us.RegisteredAt != nil {
		s.RegisteredAt = us.RegisteredAt
	}
	if us.LeftAt != nil {
		s.LeftAt = us.LeftAt
	}

	if err := svc.checkUniqueness(ctx, s.CNPJ, s.INEP, orig); err != nil {
		return School{}, err
	}
	s.UpdatedAt = core.Now()
	return svc.repo.UpdateSchool(ctx, s)
}

func (svc *Service) SetDirector(ctx context.Context, orig School, d Director) (School, error) {
	s := orig
	s.DirectorID = d.DirectorID
	s.DirectorName = d.DirectorName
	s.ViceDirector = d.ViceDirector
	s.UpdatedAt = core.Now()
	return svc.repo.UpdateSchool(ctx, s)
}

// Delete removes s. Schools that still own users or dossiers are kept.
func (svc *Service) Delete(ctx context.Context, s School) error {
	deps, err := svc.repo.CountSchoolDependents(ctx, s.ID)
	if err != nil {
		return pkgerrors.Wrap(err, "counting school dependents")
	}
	if deps.Users > 0 || deps.Dossiers > 0 {
		return core.NewValidationError(ErrHasDependents)
	}
	return svc.repo.DeleteSchool(ctx, s.ID)
}
