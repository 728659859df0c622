package dossier

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

type Status string

// Statuses
const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusLoaned   Status = "loaned"
)

var AllStatuses = []Status{StatusActive, StatusArchived, StatusLoaned}

type Dossier struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	Year         int        `json:"year"`
	Name         string     `json:"name"`
	CPF          string     `json:"cpf,omitempty"`
	FatherName   string     `json:"father_name,omitempty"`
	MotherName   string     `json:"mother_name,omitempty"`
	Location     string     `json:"location,omitempty"`
	Folder       string     `json:"folder,omitempty"`
	Status       Status     `json:"status"`
	DocumentType string     `json:"document_type,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Photo        string     `json:"photo,omitempty"` // file store key, set through SetPhoto
	SchoolID     int64      `json:"school_id"`
	CreatedBy    *int64     `json:"created_by"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"` // UTC
	CreatedAt    time.Time  `json:"created_at"`            // UTC
	UpdatedAt    time.Time  `json:"updated_at"`            // UTC
}

func (d Dossier) IsLoaned() bool   { return d.Status == StatusLoaned }
func (d Dossier) IsArchived() bool { return d.Status == StatusArchived }

// NewDossier contains information needed to create a new Dossier.
type NewDossier struct {
	Number       string `json:"number" validate:"required,max=50"`
	Year         int    `json:"year" validate:"required,min=1900,max=2100"`
	Name         string `json:"name" validate:"required,max=200"`
	CPF          string `json:"cpf" validate:"omitempty,cpf"`
	FatherName   string `json:"father_name" validate:"max=200"`
	MotherName   string `json:"mother_name" validate:"max=200"`
	Location     string `json:"location" validate:"max=200"`
	Folder       string `json:"folder" validate:"max=100"`
	DocumentType string `json:"document_type" validate:"max=100"`
	Notes        string `json:"notes"`
}

func (nd *NewDossier) Validate(validate *validator.Validate) error {
	nd.Number = core.CleanString(nd.Number)
	nd.Name = core.CleanString(nd.Name)
	nd.CPF = core.OnlyDigits(nd.CPF)
	nd.FatherName = core.CleanString(nd.FatherName)
	nd.MotherName = core.CleanString(nd.MotherName)
	nd.Location = core.CleanString(nd.Location)
	nd.Folder = core.CleanString(nd.Folder)
	nd.DocumentType = core.CleanString(nd.DocumentType)
	return validate.Struct(nd)
}

// UpdateDossier defines what information may be provided to modify an existing Dossier.
// Status only changes through Archive and movements.
type UpdateDossier struct {
	Number       string  `json:"number" validate:"max=50"`
	Year         int     `json:"year" validate:"omitempty,min=1900,max=2100"`
	Name         string  `json:"name" validate:"max=200"`
	CPF          *string `json:"cpf" validate:"omitempty,cpf"`
	FatherName   *string `json:"father_name" validate:"omitempty,max=200"`
	MotherName   *string `json:"mother_name" validate:"omitempty,max=200"`
	Location     *string `json:"location" validate:"omitempty,max=200"`
	Folder       *string `json:"folder" validate:"omitempty,max=100"`
	DocumentType *string `json:"document_type" validate:"omitempty,max=100"`
	Notes        *string `json:"notes"`
}

func (ud *UpdateDossier) Validate(orig Dossier, validate *validator.Validate) error {
	if ud.Number = core.CleanString(ud.Number); ud.Number == "" {
		ud.Number = orig.Number
	}
	if ud.Name = core.CleanString(ud.Name); ud.Name == "" {
		ud.Name = orig.Name
	}
	if ud.Year == 0 {
		ud.Year = orig.Year
	}
	if ud.CPF != nil {
		cpf := core.OnlyDigits(*ud.CPF)
		ud.CPF = &cpf
	}
	return validate.Struct(ud)
}

type QueryFilter struct {
	Search       string `query:"search"`
	Status       Status `query:"status"`
	Year         int    `query:"year"`
	DocumentType string `query:"document_type"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = Status(core.CleanString(string(qf.Status), true /* lower */))
	qf.DocumentType = core.CleanString(qf.DocumentType)
}
