// Package director keeps the registry of school directors that schools point to.
package director

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

type Status string

// Statuses
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusLeave    Status = "leave"
	StatusRetired  Status = "retired"
)

// Mandates lists the positions a director may hold.
var Mandates = []string{
	"Diretor Efetivo",
	"Diretor Substituto",
	"Diretor Interino",
	"Vice-Diretor",
	"Coordenador Pedagógico",
	"Administrador Escolar",
}

// MinSearchLength is the shortest term Search answers to.
const MinSearchLength = 2

var (
	// errors
	ErrNotFound  = errors.New("director not found")
	ErrCPFExists = errors.New("this CPF already belongs to another director")
	ErrInUse     = errors.New("director is assigned to a school")
)

type Director struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	CPF       string     `json:"cpf,omitempty"`
	Address   string     `json:"address,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	City      string     `json:"city,omitempty"`
	Status    Status     `json:"status"`
	Mandate   string     `json:"mandate,omitempty"`
	HiredAt   *time.Time `json:"hired_at,omitempty"`
	Photo     string     `json:"photo,omitempty"` // file store key, set through SetPhoto
	CreatedAt time.Time  `json:"created_at"`      // UTC
	UpdatedAt time.Time  `json:"updated_at"`      // UTC
}

func (d Director) IsActive() bool { return d.Status == StatusActive }

// FormattedCPF renders CPF with punctuation, or "" when unset.
func (d Director) FormattedCPF() string {
	if d.CPF == "" {
		return ""
	}
	return core.FormatCPF(d.CPF)
}

// NewDirector contains information needed to create a new Director.
type NewDirector struct {
	Name    string     `json:"name" validate:"required,max=100"`
	CPF     string     `json:"cpf" validate:"omitempty,cpf"`
	Address string     `json:"address" validate:"max=200"`
	Phone   string     `json:"phone" validate:"omitempty,phone_br"`
	City    string     `json:"city" validate:"max=50"`
	Status  Status     `json:"status" validate:"omitempty,oneof=active inactive leave retired"`
	Mandate string     `json:"mandate" validate:"max=50"`
	HiredAt *time.Time `json:"hired_at"`
}

func (nd *NewDirector) Validate(validate *validator.Validate) error {
	nd.Name = core.CleanString(nd.Name)
	nd.CPF = core.OnlyDigits(nd.CPF)
	nd.Address = core.CleanString(nd.Address)
	nd.Phone = core.OnlyDigits(nd.Phone)
	nd.City = core.CleanString(nd.City)
	nd.Mandate = core.CleanString(nd.Mandate)
	if nd.Status == "" {
		nd.Status = StatusActive
	}
	return validate.Struct(nd)
}

// UpdateDirector defines what information may be provided to modify an existing Director.
type UpdateDirector struct {
	Name    string     `json:"name" validate:"max=100"`
	CPF     *string    `json:"cpf" validate:"omitempty,cpf"`
	Address *string    `json:"address" validate:"omitempty,max=200"`
	Phone   *string    `json:"phone" validate:"omitempty,phone_br"`
	City    *string    `json:"city" validate:"omitempty,max=50"`
	Status  *Status    `json:"status" validate:"omitempty,oneof=active inactive leave retired"`
	Mandate *string    `json:"mandate" validate:"omitempty,max=50"`
	HiredAt *time.Time `json:"hired_at"`
}

func (ud *UpdateDirector) Validate(orig Director, validate *validator.Validate) error {
	if ud.Name = core.CleanString(ud.Name); ud.Name == "" {
		ud.Name = orig.Name
	}
	clean := func(p **string, fn func(string) string) {
		if *p != nil {
			v := fn(**p)
			*p = &v
		}
	}
	clean(&ud.CPF, core.OnlyDigits)
	clean(&ud.Phone, core.OnlyDigits)
	return validate.Struct(ud)
}

type QueryFilter struct {
	Search string `query:"search"`
	Status Status `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = Status(core.CleanString(string(qf.Status), true /* lower */))
}

// Stats summarizes the registry.
type Stats struct {
	Total     int            `json:"total"`
	Active    int            `json:"active"`
	Inactive  int            `json:"inactive"`
	ByMandate map[string]int `json:"by_mandate"`
}

type (
	Repository interface {
		// CheckDirectorUniqueness returns ErrCPFExists when a non empty cpf is taken.
		CheckDirectorUniqueness(ctx context.Context, cpf string, excl ...Director) error
		CreateDirector(ctx context.Context, d Director) (Director, error)
		GetDirector(ctx context.Context, id int64) (Director, error)
		QueryDirectors(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Director, error)
		UpdateDirector(ctx context.Context, d Director) (Director, error)
		DeleteDirector(ctx context.Context, id int64) error
		// CountDirectorSchools counts the schools pointing to the director.
		CountDirectorSchools(ctx context.Context, id int64) (int, error)
		DirectorStats(ctx context.Context) (Stats, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) checkUniqueness(ctx context.Context, cpf string, excl ...Director) error {
	if cpf == "" {
		return nil
	}
	if err := svc.repo.CheckDirectorUniqueness(ctx, cpf, excl...); err != nil {
		if err == ErrCPFExists {
			return core.NewFieldValidationError("cpf", err)
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nd NewDirector) (Director, error) {
	if err := svc.checkUniqueness(ctx, nd.CPF); err != nil {
		return Director{}, err
	}
	now := core.Now()
	return svc.repo.CreateDirector(ctx, Director{
		Name:      nd.Name,
		CPF:       nd.CPF,
		Address:   nd.Address,
		Phone:     nd.Phone,
		City:      nd.City,
		Status:    nd.Status,
		Mandate:   nd.Mandate,
		HiredAt:   nd.HiredAt,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) Get(ctx context.Context, id int64) (Director, error) {
	return svc.repo.GetDirector(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Director, error) {
	return svc.repo.QueryDirectors(ctx, filter, ordering, page.Clean())
}

// Search returns up to limit active directors whose name or CPF matches term, for autocompletion.
// Terms shorter than MinSearchLength match nothing.
func (svc *Service) Search(ctx context.Context, term string, limit int) ([]Director, error) {
	term = core.CleanString(term)
	if len([]rune(term)) < MinSearchLength {
		return []Director{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	filter := QueryFilter{Search: term, Status: StatusActive}
	return svc.repo.QueryDirectors(ctx, filter, []core.DBOrdering{{Field: "name", Ascending: true}}, core.Page{Limit: limit})
}

func (svc *Service) Update(ctx context.Context, orig Director, ud UpdateDirector) (Director, error) {
	d := orig
	d.Name = ud.Name
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = core.CleanString(*src)
		}
	}
	set(&d.CPF, ud.CPF)
	set(&d.Address, ud.Address)
	set(&d.Phone, ud.Phone)
	set(&d.City, ud.City)
	set(&d.Mandate, ud.Mandate)
	if ud.Status != nil {
		d.Status = *ud.Status
	}
	if ud.HiredAt != nil {
		d.HiredAt = ud.HiredAt
	}
	if err := svc.checkUniqueness(ctx, d.CPF, orig); err != nil {
		return Director{}, err
	}
	d.UpdatedAt = core.Now()
	return svc.repo.UpdateDirector(ctx, d)
}

// SetPhoto points d at the photo stored under key, an empty key removes it.
// The previous key is returned so the caller can discard that file.
func (svc *Service) SetPhoto(ctx context.Context, d Director, key string) (Director, string, error) {
	old := d.Photo
	d.Photo = key
	d.UpdatedAt = core.Now()
	updated, err := svc.repo.UpdateDirector(ctx, d)
	if err != nil {
		return Director{}, "", err
	}
	return updated, old, nil
}

// Delete removes d. Directors still assigned to a school are kept.
func (svc *Service) Delete(ctx context.Context, d Director) error {
	n, err := svc.repo.CountDirectorSchools(ctx, d.ID)
	if err != nil {
		return pkgerrors.Wrap(err, "counting director schools")
	}
	if n > 0 {
		return core.NewValidationError(ErrInUse)
	}
	return svc.repo.DeleteDirector(ctx, d.ID)
}

// Stats counts directors by status and mandate.
func (svc *Service) Stats(ctx context.Context) (Stats, error) {
	stats, err := svc.repo.DirectorStats(ctx)
	if err != nil {
		return Stats{}, pkgerrors.Wrap(err, "counting directors")
	}
	if stats.ByMandate == nil {
		stats.ByMandate = make(map[string]int)
	}
	return stats, nil
}
