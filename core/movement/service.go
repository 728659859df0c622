// Package movement tracks consultations, loans, returns and transfers of dossiers.
package movement

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/requester"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

var (
	// errors
	ErrNotFound        = errors.New("movement not found")
	ErrNotPending      = errors.New("only pending movements can be changed")
	ErrAlreadyLoaned   = errors.New("dossier is already loaned")
	ErrNotLoaned       = errors.New("dossier is not loaned")
	ErrArchived        = errors.New("dossier is archived")
	ErrSameSchool      = errors.New("destination must differ from the origin school")
	ErrRequesterScope  = errors.New("requester belongs to another school")
	ErrRequesterNeeded = errors.New("a requester is needed for loans")
	ErrNoDestination   = errors.New("destination school not found")
)

type (
	Repository interface {
		CreateMovement(ctx context.Context, m Movement) (Movement, error)
		GetMovement(ctx context.Context, id int64, scope tenant.Scope) (Movement, error)
		QueryMovements(ctx context.Context, filter QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]Movement, error)
		UpdateMovement(ctx context.Context, m Movement) (Movement, error)
		DeleteMovement(ctx context.Context, id int64) error
		CountMovementsByStatus(ctx context.Context, scope tenant.Scope) (map[Status]int, error)
	}

	// Dossiers is the part of the dossier service movements drive.
	Dossiers interface {
		SetStatus(ctx context.Context, id int64, status dossier.Status) error
	}

	// Requesters resolves the requester snapshot of a movement.
	Requesters interface {
		Get(ctx context.Context, id int64, scope tenant.Scope) (requester.Requester, error)
	}

	// Schools checks transfer destinations.
	Schools interface {
		Get(ctx context.Context, id int64, scope tenant.Scope) (school.School, error)
	}

	Service struct {
		repo       Repository
		dossiers   Dossiers
		requesters Requesters
		schools    Schools
	}
)

func NewService(repo Repository, dossiers Dossiers, requesters Requesters, schools Schools) *Service {
	return &Service{repo: repo, dossiers: dossiers, requesters: requesters, schools: schools}
}

// Create records a movement of d. A loan marks d loaned. A return brings it back: d becomes active and
// its pending loans are concluded.
func (svc *Service) Create(ctx context.Context, sess tenant.Session, d dossier.Dossier, nm NewMovement) (Movement, error) {
	now := core.Now()
	occurred := now
	if nm.OccurredAt != nil {
		occurred = nm.OccurredAt.UTC()
	}

	m := Movement{
		DossierID:           d.ID,
		Kind:                nm.Kind,
		Status:              StatusPending,
		UserID:              sess.UserID,
		RequesterID:         nm.RequesterID,
		RequesterName:       nm.RequesterName,
		RequesterDocument:   nm.RequesterDocument,
		RequesterPhone:      nm.RequesterPhone,
		OriginSchoolID:      d.SchoolID,
		DestinationSchoolID: nm.DestinationSchoolID,
		Reason:              nm.Reason,
		Notes:               nm.Notes,
		OccurredAt:          occurred,
		ExpectedReturnAt:    nm.ExpectedReturnAt,
		SchoolID:            d.SchoolID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if m.ExpectedReturnAt != nil {
		t := m.ExpectedReturnAt.UTC()
		m.ExpectedReturnAt = &t
	}

	if nm.RequesterID != nil {
		r, err := svc.requesters.Get(ctx, *nm.RequesterID, tenant.ForSchool(d.SchoolID))
		if err != nil {
			if pkgerrors.Cause(err) == requester.ErrNotFound {
				return Movement{}, core.NewFieldValidationError("requester_id", ErrRequesterScope)
			}
			return Movement{}, pkgerrors.Wrap(err, "finding requester")
		}
		m.RequesterName = r.Name
		m.RequesterDocument = r.CPF
		m.RequesterPhone = r.Phone
	}

	switch m.Kind {
	case KindLoan:
		if d.IsArchived() {
			return Movement{}, core.NewValidationError(ErrArchived)
		}
		if d.IsLoaned() {
			return Movement{}, core.NewValidationError(ErrAlreadyLoaned)
		}
		if m.RequesterName == "" {
			return Movement{}, core.NewFieldValidationError("requester_name", ErrRequesterNeeded)
		}
	case KindReturn:
		if !d.IsLoaned() {
			return Movement{}, core.NewValidationError(ErrNotLoaned)
		}
		m.Status = StatusConcluded
		m.ReturnedAt = &occurred
		m.ConcludedAt = &now
	case KindTransfer:
		if m.DestinationSchoolID != nil {
			if *m.DestinationSchoolID == m.OriginSchoolID {
				return Movement{}, core.NewFieldValidationError("destination_school_id", ErrSameSchool)
			}
			if _, err := svc.schools.Get(ctx, *m.DestinationSchoolID, tenant.AllSchools()); err != nil {
				if pkgerrors.Cause(err) == school.ErrNotFound {
					return Movement{}, core.NewFieldValidationError("destination_school_id", ErrNoDestination)
				}
				return Movement{}, pkgerrors.Wrap(err, "finding destination school")
			}
		}
	case KindConsultation:
		m.Status = StatusConcluded
		m.ConcludedAt = &now
	}

	created, err := svc.repo.CreateMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}

	switch m.Kind {
	case KindLoan:
		if err := svc.dossiers.SetStatus(ctx, d.ID, dossier.StatusLoaned); err != nil {
			return Movement{}, pkgerrors.Wrap(err, "marking dossier loaned")
		}
	case KindReturn:
		if err := svc.concludePendingLoans(ctx, d.ID, occurred); err != nil {
			return Movement{}, err
		}
		if err := svc.dossiers.SetStatus(ctx, d.ID, dossier.StatusActive); err != nil {
			return Movement{}, pkgerrors.Wrap(err, "marking dossier active")
		}
	}
	return created, nil
}

func (svc *Service) concludePendingLoans(ctx context.Context, dossierID int64, returnedAt time.Time) error {
	loans, err := svc.repo.QueryMovements(ctx,
		QueryFilter{DossierID: dossierID, Kind: KindLoan, Status: StatusPending},
		tenant.AllSchools(), nil, core.Page{})
	if err != nil {
		return pkgerrors.Wrap(err, "finding pending loans")
	}
	now := core.Now()
	for _, loan := range loans {
		loan.Status = StatusConcluded
		loan.ReturnedAt = &returnedAt
		loan.ConcludedAt = &now
		loan.UpdatedAt = now
		if _, err := svc.repo.UpdateMovement(ctx, loan); err != nil {
			return pkgerrors.Wrap(err, "concluding loan")
		}
	}
	return nil
}

// Get finds a movement visible in scope.
func (svc *Service) Get(ctx context.Context, id int64, scope tenant.Scope) (Movement, error) {
	return svc.repo.GetMovement(ctx, id, scope)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]Movement, error) {
	return svc.repo.QueryMovements(ctx, filter, scope, ordering, page.Clean())
}

// Overdue lists the pending movements whose expected return is before now.
func (svc *Service) Overdue(ctx context.Context, scope tenant.Scope, page core.Page) ([]Movement, error) {
	filter := QueryFilter{Status: StatusPending, OverdueAt: core.Now()}
	ordering := []core.DBOrdering{{Field: "expected_return_at", Ascending: true}}
	return svc.repo.QueryMovements(ctx, filter, scope, ordering, page.Clean())
}

func (svc *Service) Update(ctx context.Context, orig Movement, um UpdateMovement) (Movement, error) {
	if !orig.IsPending() {
		return Movement{}, core.NewValidationError(ErrNotPending)
	}
	m := orig
	if um.Reason != nil {
		m.Reason = core.CleanString(*um.Reason)
	}
	if um.Notes != nil {
		m.Notes = *um.Notes
	}
	if um.ExpectedReturnAt != nil {
		t := um.ExpectedReturnAt.UTC()
		m.ExpectedReturnAt = &t
	}
	m.UpdatedAt = core.Now()
	return svc.repo.UpdateMovement(ctx, m)
}

// Complete concludes a pending movement. Loans and transfers get their return stamped;
// a concluded loan makes the dossier active again.
func (svc *Service) Complete(ctx context.Context, m Movement) (Movement, error) {
	if !m.IsPending() {
		return Movement{}, core.NewValidationError(ErrNotPending)
	}
	now := core.Now()
	m.Status = StatusConcluded
	m.ConcludedAt = &now
	if m.Kind == KindLoan || m.Kind == KindTransfer {
		m.ReturnedAt = &now
	}
	m.UpdatedAt = now
	updated, err := svc.repo.UpdateMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	if m.Kind == KindLoan {
		if err := svc.dossiers.SetStatus(ctx, m.DossierID, dossier.StatusActive); err != nil {
			return Movement{}, pkgerrors.Wrap(err, "marking dossier active")
		}
	}
	return updated, nil
}

// Cancel drops a pending movement. A cancelled loan makes the dossier active again.
func (svc *Service) Cancel(ctx context.Context, m Movement) (Movement, error) {
	if !m.IsPending() {
		return Movement{}, core.NewValidationError(ErrNotPending)
	}
	m.Status = StatusCancelled
	m.UpdatedAt = core.Now()
	updated, err := svc.repo.UpdateMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	if m.Kind == KindLoan {
		if err := svc.dossiers.SetStatus(ctx, m.DossierID, dossier.StatusActive); err != nil {
			return Movement{}, pkgerrors.Wrap(err, "marking dossier active")
		}
	}
	return updated, nil
}

// Delete removes a movement that is not pending anymore, or cancels-then-removes a pending one.
func (svc *Service) Delete(ctx context.Context, m Movement) error {
	if m.IsPending() {
		if _, err := svc.Cancel(ctx, m); err != nil {
			return err
		}
	}
	return svc.repo.DeleteMovement(ctx, m.ID)
}

// CountByStatus returns the number of movements per status, every status present.
func (svc *Service) CountByStatus(ctx context.Context, scope tenant.Scope) (map[Status]int, error) {
	counts, err := svc.repo.CountMovementsByStatus(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := make(map[Status]int, len(AllStatuses))
	for _, s := range AllStatuses {
		out[s] = counts[s]
	}
	return out, nil
}
