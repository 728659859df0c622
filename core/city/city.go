// Package city manages the city lookup table.
package city

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

const DefaultCountry = "Brasil"

var (
	// errors
	ErrNotFound = errors.New("city not found")
	ErrExists   = errors.New("this city already exists in this state")
	ErrInUse    = errors.New("city is referenced by schools or requesters")
)

type City struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	UF        string    `json:"uf"`
	Country   string    `json:"country"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Label is "Name/UF", as shown in lookups.
func (c City) Label() string { return c.Name + "/" + c.UF }

type NewCity struct {
	Name    string `json:"name" validate:"required,max=100"`
	UF      string `json:"uf" validate:"required,uf"`
	Country string `json:"country" validate:"max=60"`
}

func (nc *NewCity) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.UF = strings.ToUpper(core.CleanString(nc.UF))
	if nc.Country = core.CleanString(nc.Country); nc.Country == "" {
		nc.Country = DefaultCountry
	}
	return validate.Struct(nc)
}

type UpdateCity struct {
	Name    string  `json:"name" validate:"max=100"`
	UF      string  `json:"uf" validate:"omitempty,uf"`
	Country *string `json:"country" validate:"omitempty,max=60"`
}

func (uc *UpdateCity) Validate(orig City, validate *validator.Validate) error {
	if uc.Name = core.CleanString(uc.Name); uc.Name == "" {
		uc.Name = orig.Name
	}
	if uc.UF = strings.ToUpper(core.CleanString(uc.UF)); uc.UF == "" {
		uc.UF = orig.UF
	}
	return validate.Struct(uc)
}

type QueryFilter struct {
	Search string `query:"search"`
	UF     string `query:"uf"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.UF = strings.ToUpper(core.CleanString(qf.UF))
}

type (
	Repository interface {
		// CheckCityUniqueness returns ErrExists when (name, uf) is taken, case-insensitively.
		CheckCityUniqueness(ctx context.Context, name, uf string, excl ...City) error
		CreateCity(ctx context.Context, c City) (City, error)
		GetCity(ctx context.Context, id int64) (City, error)
		QueryCities(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]City, error)
		UpdateCity(ctx context.Context, c City) (City, error)
		DeleteCity(ctx context.Context, id int64) error
		CountCityReferences(ctx context.Context, id int64) (int, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) checkUniqueness(ctx context.Context, name, uf string, excl ...City) error {
	if err := svc.repo.CheckCityUniqueness(ctx, name, uf, excl...); err != nil {
		if err == ErrExists {
			return core.NewFieldValidationError("name", err)
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nc NewCity) (City, error) {
	if err := svc.checkUniqueness(ctx, nc.Name, nc.UF); err != nil {
		return City{}, err
	}
	now := core.Now()
	return svc.repo.CreateCity(ctx, City{Name: nc.Name, UF: nc.UF, Country: nc.Country, CreatedAt: now, UpdatedAt: now})
}

func (svc *Service) Get(ctx context.Context, id int64) (City, error) {
	return svc.repo.GetCity(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]City, error) {
	return svc.repo.QueryCities(ctx, filter, ordering, page.Clean())
}

// Lookup returns up to limit cities whose name matches term, for autocompletion.
func (svc *Service) Lookup(ctx context.Context, term, uf string, limit int) ([]City, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	filter := QueryFilter{Search: term, UF: uf}
	filter.Clean()
	return svc.repo.QueryCities(ctx, filter, []core.DBOrdering{{Field: "name", Ascending: true}}, core.Page{Limit: limit})
}

func (svc *Service) Update(ctx context.Context, orig City, uc UpdateCity) (City, error) {
	if err := svc.checkUniqueness(ctx, uc.Name, uc.UF, orig); err != nil {
		return City{}, err
	}
	c := orig
	c.Name = uc.Name
	c.UF = uc.UF
	if uc.Country != nil {
		c.Country = core.CleanString(*uc.Country)
	}
	c.UpdatedAt = core.Now()
	return svc.repo.UpdateCity(ctx, c)
}

func (svc *Service) Delete(ctx context.Context, c City) error {
	n, err := svc.repo.CountCityReferences(ctx, c.ID)
	if err != nil {
		return pkgerrors.Wrap(err, "counting city references")
	}
	if n > 0 {
		return core.NewValidationError(ErrInUse)
	}
	return svc.repo.DeleteCity(ctx, c.ID)
}
