package school

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

type Status string

// Statuses
const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

type School struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Address      string     `json:"address,omitempty"`
	CityID       *int64     `json:"city_id"`
	CNPJ         string     `json:"cnpj,omitempty"`
	INEP         string     `json:"inep,omitempty"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	UF           string     `json:"uf,omitempty"`
	Status       Status     `json:"status"`
	DirectorID   *int64     `json:"director_id"`
	DirectorName string     `json:"director_name,omitempty"`
	ViceDirector string     `json:"vice_director,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"` // UTC
	UpdatedAt    time.Time  `json:"updated_at"` // UTC
}

func (s School) IsActive() bool { return s.Status == StatusActive }

// FormattedCNPJ renders CNPJ with punctuation, or "" when unset.
func (s School) FormattedCNPJ() string {
	if s.CNPJ == "" {
		return ""
	}
	return core.FormatCNPJ(s.CNPJ)
}

// NewSchool contains information needed to create a new School.
type NewSchool struct {
	Name         string     `json:"name" validate:"required,max=200"`
	Address      string     `json:"address" validate:"max=300"`
	CityID       *int64     `json:"city_id" validate:"omitempty,min=1"`
	CNPJ         string     `json:"cnpj" validate:"omitempty,cnpj"`
	INEP         string     `json:"inep" validate:"omitempty,inep"`
	Email        string     `json:"email" validate:"omitempty,email,max=120"`
	Phone        string     `json:"phone" validate:"omitempty,phone_br"`
	UF           string     `json:"uf" validate:"omitempty,uf"`
	DirectorName string     `json:"director_name" validate:"max=200"`
	ViceDirector string     `json:"vice_director" validate:"max=200"`
	Notes        string     `json:"notes"`
	RegisteredAt *time.Time `json:"registered_at"`
}

func (ns *NewSchool) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Address = core.CleanString(ns.Address)
	ns.CNPJ = core.OnlyDigits(ns.CNPJ)
	ns.INEP = core.OnlyDigits(ns.INEP)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.OnlyDigits(ns.Phone)
	ns.UF = strings.ToUpper(core.CleanString(ns.UF))
	ns.DirectorName = core.CleanString(ns.DirectorName)
	ns.ViceDirector = core.CleanString(ns.ViceDirector)
	return validate.Struct(ns)
}

// UpdateSchool defines what information may be provided to modify an existing School.
type UpdateSchool struct {
	Name         string     `json:"name" validate:"max=200"`
	Address      *string    `json:"address" validate:"omitempty,max=300"`
	CityID       *int64     `json:"city_id" validate:"omitempty,min=1"`
	CNPJ         *string    `json:"cnpj" validate:"omitempty,cnpj"`
	INEP         *string    `json:"inep" validate:"omitempty,inep"`
	Email        *string    `json:"email" validate:"omitempty,email,max=120"`
	Phone        *string    `json:"phone" validate:"omitempty,phone_br"`
	UF           *string    `json:"uf" validate:"omitempty,uf"`
	Status       *Status    `json:"status" validate:"omitempty,oneof=active inactive suspended"`
	DirectorName *string    `json:"director_name" validate:"omitempty,max=200"`
	ViceDirector *string    `json:"vice_director" validate:"omitempty,max=200"`
	Notes        *string    `json:"notes"`
	RegisteredAt *time.Time `json:"registered_at"`
	LeftAt       *time.Time `json:"left_at"`
}

func (us *UpdateSchool) Validate(orig School, validate *validator.Validate) error {
	if us.Name = core.CleanString(us.Name); us.Name == "" {
		us.Name = orig.Name
	}
	clean := func(p **string, fn func(string) string) {
		if *p != nil {
			v := fn(**p)
			*p = &v
		}
	}
	clean(&us.CNPJ, core.OnlyDigits)
	clean(&us.INEP, core.OnlyDigits)
	clean(&us.Phone, core.OnlyDigits)
	clean(&us.Email, func(s string) string { return core.CleanString(s, true /* lower */) })
	clean(&us.UF, func(s string) string { return strings.ToUpper(core.CleanString(s)) })
	return validate.Struct(us)
}

// Director sets the school's management. DirectorID points to the director registry,
// DirectorName is then taken from the registered director.
type Director struct {
	DirectorID   *int64 `json:"director_id" validate:"omitempty,min=1"`
	DirectorName string `json:"director_name" validate:"required_without=DirectorID,max=200"`
	ViceDirector string `json:"vice_director" validate:"max=200"`
}

func (d *Director) Validate(validate *validator.Validate) error {
	d.DirectorName = core.CleanString(d.DirectorName)
	d.ViceDirector = core.CleanString(d.ViceDirector)
	return validate.Struct(d)
}

type QueryFilter struct {
	Search string `query:"search"`
	Status Status `query:"status"`
	CityID int64  `query:"city_id"`
	UF     string `query:"uf"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = Status(core.CleanString(string(qf.Status), true /* lower */))
	qf.UF = strings.ToUpper(core.CleanString(qf.UF))
}
