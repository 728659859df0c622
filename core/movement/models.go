package movement

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

type Kind string

// Kinds
const (
	KindConsultation Kind = "consultation"
	KindLoan         Kind = "loan"
	KindReturn       Kind = "return"
	KindTransfer     Kind = "transfer"
)

type Status string

// Statuses
const (
	StatusPending   Status = "pending"
	StatusConcluded Status = "concluded"
	StatusCancelled Status = "cancelled"
)

var AllStatuses = []Status{StatusPending, StatusConcluded, StatusCancelled}

var (
	errExpectedReturnRequired = errors.New("a loan needs an expected return date")
	errExpectedReturnPast     = errors.New("expected return must be after the movement date")
	errDestinationRequired    = errors.New("a transfer needs a destination school")
)

type Movement struct {
	ID                  int64      `json:"id"`
	DossierID           int64      `json:"dossier_id"`
	Kind                Kind       `json:"kind"`
	Status              Status     `json:"status"`
	UserID              int64      `json:"user_id"`
	RequesterID         *int64     `json:"requester_id"`
	RequesterName       string     `json:"requester_name,omitempty"`
	RequesterDocument   string     `json:"requester_document,omitempty"`
	RequesterPhone      string     `json:"requester_phone,omitempty"`
	OriginSchoolID      int64      `json:"origin_school_id"`
	DestinationSchoolID *int64     `json:"destination_school_id"`
	Reason              string     `json:"reason,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	OccurredAt          time.Time  `json:"occurred_at"`                  // UTC
	ExpectedReturnAt    *time.Time `json:"expected_return_at,omitempty"` // UTC
	ReturnedAt          *time.Time `json:"returned_at,omitempty"`        // UTC
	ConcludedAt         *time.Time `json:"concluded_at,omitempty"`       // UTC
	SchoolID            int64      `json:"school_id"`
	CreatedAt           time.Time  `json:"created_at"` // UTC
	UpdatedAt           time.Time  `json:"updated_at"` // UTC
}

func (m Movement) IsPending() bool { return m.Status == StatusPending }

// IsOverdue reports whether an expected return is past and nothing came back yet.
func (m Movement) IsOverdue(now time.Time) bool {
	return m.Status == StatusPending &&
		m.ExpectedReturnAt != nil &&
		m.ReturnedAt == nil &&
		now.After(*m.ExpectedReturnAt)
}

// DaysOverdue is the number of started days since the expected return, 0 when not overdue.
func (m Movement) DaysOverdue(now time.Time) int {
	if !m.IsOverdue(now) {
		return 0
	}
	return int(now.Sub(*m.ExpectedReturnAt).Hours()/24) + 1
}

// NewMovement contains information needed to record a movement of a dossier.
type NewMovement struct {
	DossierID           int64      `json:"dossier_id" validate:"required"`
	Kind                Kind       `json:"kind" validate:"required,oneof=consultation loan return transfer"`
	RequesterID         *int64     `json:"requester_id" validate:"omitempty,min=1"`
	RequesterName       string     `json:"requester_name" validate:"max=200"`
	RequesterDocument   string     `json:"requester_document" validate:"omitempty,cpf"`
	RequesterPhone      string     `json:"requester_phone" validate:"omitempty,phone_br"`
	DestinationSchoolID *int64     `json:"destination_school_id" validate:"omitempty,min=1"`
	Reason              string     `json:"reason" validate:"max=500"`
	Notes               string     `json:"notes"`
	OccurredAt          *time.Time `json:"occurred_at"`
	ExpectedReturnAt    *time.Time `json:"expected_return_at"`
}

func (nm *NewMovement) Validate(validate *validator.Validate) error {
	nm.RequesterName = core.CleanString(nm.RequesterName)
	nm.RequesterDocument = core.OnlyDigits(nm.RequesterDocument)
	nm.RequesterPhone = core.OnlyDigits(nm.RequesterPhone)
	nm.Reason = core.CleanString(nm.Reason)
	if err := validate.Struct(nm); err != nil {
		return err
	}

	occurred := core.Now()
	if nm.OccurredAt != nil {
		occurred = nm.OccurredAt.UTC()
	}
	switch nm.Kind {
	case KindLoan:
		if nm.ExpectedReturnAt == nil {
			return core.NewFieldValidationError("expected_return_at", errExpectedReturnRequired)
		}
		if !nm.ExpectedReturnAt.After(occurred) {
			return core.NewFieldValidationError("expected_return_at", errExpectedReturnPast)
		}
	case KindTransfer:
		if nm.DestinationSchoolID == nil {
			return core.NewFieldValidationError("destination_school_id", errDestinationRequired)
		}
	}
	return nil
}

// UpdateMovement only touches free-text fields and the expected return.
type UpdateMovement struct {
	Reason           *string    `json:"reason" validate:"omitempty,max=500"`
	Notes            *string    `json:"notes"`
	ExpectedReturnAt *time.Time `json:"expected_return_at"`
}

func (um *UpdateMovement) Validate(orig Movement, validate *validator.Validate) error {
	if err := validate.Struct(um); err != nil {
		return err
	}
	if um.ExpectedReturnAt != nil && !um.ExpectedReturnAt.After(orig.OccurredAt) {
		return core.NewFieldValidationError("expected_return_at", errExpectedReturnPast)
	}
	return nil
}

type QueryFilter struct {
	DossierID int64  `query:"dossier_id"`
	Kind      Kind   `query:"kind"`
	Status    Status `query:"status"`
	Search    string `query:"search"`
	// OverdueAt lists pending movements whose expected return is before it.
	OverdueAt time.Time `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Kind = Kind(core.CleanString(string(qf.Kind), true /* lower */))
	qf.Status = Status(core.CleanString(string(qf.Status), true /* lower */))
	qf.Search = core.CleanString(qf.Search)
}
