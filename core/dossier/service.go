// Package dossier manages student record folders. Each dossier belongs to one school.
package dossier

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

var (
	// errors
	ErrNotFound      = errors.New("dossier not found")
	ErrNumberExists  = errors.New("a dossier with this number already exists in this school")
	ErrCPFYearExists = errors.New("a dossier with this CPF already exists for this year in this school")
	ErrLoaned        = errors.New("dossier is loaned")
	ErrNotArchived   = errors.New("dossier is not archived")
)

type (
	Repository interface {
		// CheckDossierUniqueness returns ErrNumberExists or ErrCPFYearExists within schoolID.
		// An empty cpf is not checked.
		CheckDossierUniqueness(ctx context.Context, schoolID int64, number, cpf string, year int, excl ...Dossier) error
		CreateDossier(ctx context.Context, d Dossier) (Dossier, error)
		GetDossier(ctx context.Context, id int64, scope tenant.Scope) (Dossier, error)
		QueryDossiers(ctx context.Context, filter QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]Dossier, error)
		UpdateDossier(ctx context.Context, d Dossier) (Dossier, error)
		DeleteDossier(ctx context.Context, id int64) error
		CountDossiersByStatus(ctx context.Context, scope tenant.Scope) (map[Status]int, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) checkUniqueness(ctx context.Context, schoolID int64, number, cpf string, year int, excl ...Dossier) error {
	if err := svc.repo.CheckDossierUniqueness(ctx, schoolID, number, cpf, year, excl...); err != nil {
		switch err {
		case ErrNumberExists:
			return core.NewFieldValidationError("number", err)
		case ErrCPFYearExists:
			return core.NewFieldValidationError("cpf", err)
		default:
			return err
		}
	}
	return nil
}

// Create adds a dossier to the session's current school.
func (svc *Service) Create(ctx context.Context, sess tenant.Session, nd NewDossier) (Dossier, error) {
	schoolID := sess.SchoolID()
	if err := svc.checkUniqueness(ctx, schoolID, nd.Number, nd.CPF, nd.Year); err != nil {
		return Dossier{}, err
	}
	now := core.Now()
	creator := sess.UserID
	d := Dossier{
		Number:       nd.Number,
		Year:         nd.Year,
		Name:         nd.Name,
		CPF:          nd.CPF,
		FatherName:   nd.FatherName,
		MotherName:   nd.MotherName,
		Location:     nd.Location,
		Folder:       nd.Folder,
		Status:       StatusActive,
		DocumentType: nd.DocumentType,
		Notes:        nd.Notes,
		SchoolID:     schoolID,
		CreatedBy:    &creator,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateDossier(ctx, d)
}

// Get finds a dossier visible in scope.
func (svc *Service) Get(ctx context.Context, id int64, scope tenant.Scope) (Dossier, error) {
	return svc.repo.GetDossier(ctx, id, scope)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]Dossier, error) {
	return svc.repo.QueryDossiers(ctx, filter, scope, ordering, page.Clean())
}

func (svc *Service) Update(ctx context.Context, orig Dossier, ud UpdateDossier) (Dossier, error) {
	d := orig
	d.Number = ud.Number
	d.Year = ud.Year
	d.Name = ud.Name
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = core.CleanString(*src)
		}
	}
	set(&d.CPF, ud.CPF)
	set(&d.FatherName, ud.FatherName)
	set(&d.MotherName, ud.MotherName)
	set(&d.Location, ud.Location)
	set(&d.Folder, ud.Folder)
	set(&d.DocumentType, ud.DocumentType)
	if ud.Notes != nil {
		d.Notes = *ud.Notes
	}

	if err := svc.checkUniqueness(ctx, d.SchoolID, d.Number, d.CPF, d.Year, orig); err != nil {
		return Dossier{}, err
	}
	d.UpdatedAt = core.Now()
	return svc.repo.UpdateDossier(ctx, d)
}

// SetPhoto points d at the photo stored under key, an empty key removes it.
// The previous key is returned so the caller can discard that file.
func (svc *Service) SetPhoto(ctx context.Context, d Dossier, key string) (Dossier, string, error) {
	old := d.Photo
	d.Photo = key
	d.UpdatedAt = core.Now()
	updated, err := svc.repo.UpdateDossier(ctx, d)
	if err != nil {
		return Dossier{}, "", err
	}
	return updated, old, nil
}

// Archive marks d archived. A loaned dossier must come back first.
func (svc *Service) Archive(ctx context.Context, d Dossier) (Dossier, error) {
	if d.IsLoaned() {
		return Dossier{}, core.NewValidationError(ErrLoaned)
	}
	now := core.Now()
	d.Status = StatusArchived
	d.ArchivedAt = &now
	d.UpdatedAt = now
	return svc.repo.UpdateDossier(ctx, d)
}

func (svc *Service) Unarchive(ctx context.Context, d Dossier) (Dossier, error) {
	if !d.IsArchived() {
		return Dossier{}, core.NewValidationError(ErrNotArchived)
	}
	d.Status = StatusActive
	d.ArchivedAt = nil
	d.UpdatedAt = core.Now()
	return svc.repo.UpdateDossier(ctx, d)
}

// SetStatus is used by movements: a loan marks the dossier loaned, a return makes it active again.
func (svc *Service) SetStatus(ctx context.Context, id int64, status Status) error {
	d, err := svc.repo.GetDossier(ctx, id, tenant.AllSchools())
	if err != nil {
		return pkgerrors.Wrap(err, "finding dossier")
	}
	if d.Status == status {
		return nil
	}
	d.Status = status
	if status != StatusArchived {
		d.ArchivedAt = nil
	}
	d.UpdatedAt = core.Now()
	_, err = svc.repo.UpdateDossier(ctx, d)
	return err
}

func (svc *Service) Delete(ctx context.Context, d Dossier) error {
	if d.IsLoaned() {
		return core.NewValidationError(ErrLoaned)
	}
	return svc.repo.DeleteDossier(ctx, d.ID)
}

// CountByStatus returns the number of dossiers per status, every status present.
func (svc *Service) CountByStatus(ctx context.Context, scope tenant.Scope) (map[Status]int, error) {
	counts, err := svc.repo.CountDossiersByStatus(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := make(map[Status]int, len(AllStatuses))
	for _, s := range AllStatuses {
		out[s] = counts[s]
	}
	return out, nil
}
