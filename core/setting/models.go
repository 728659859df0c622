package setting

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

type Scope string

// Scopes, from the most generic
const (
	ScopeGlobal Scope = "global"
	ScopeSchool Scope = "school"
	ScopeUser   Scope = "user"
)

type Type string

// Types
const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeFloat   Type = "float"
	TypeBoolean Type = "boolean"
	TypeJSON    Type = "json"
)

// Keys
const (
	KeyAllowDownload    = "permitir_download"
	KeyRetentionDays    = "retencao_documentos_dias"
	KeyAllowExport      = "permitir_exportacao"
	KeyRestrictIP       = "restringir_ip"
	KeyAllowedIPs       = "ips_permitidos"
	KeyMaxLoginAttempts = "max_tentativas_login"
)

type Default struct {
	Value       string
	Type        Type
	Description string
}

// Defaults are used when no row matches a key.
var Defaults = map[string]Default{
	KeyAllowDownload:    {Value: "true", Type: TypeBoolean, Description: "allow attachment downloads"},
	KeyRetentionDays:    {Value: "2555", Type: TypeInteger, Description: "document retention in days"},
	KeyAllowExport:      {Value: "true", Type: TypeBoolean, Description: "allow spreadsheet exports"},
	KeyRestrictIP:       {Value: "false", Type: TypeBoolean, Description: "restrict access by IP"},
	KeyAllowedIPs:       {Value: "[]", Type: TypeJSON, Description: "allowed IPs when restricted"},
	KeyMaxLoginAttempts: {Value: "5", Type: TypeInteger, Description: "failed logins before lockout"},
}

type Setting struct {
	ID          int64     `json:"id"`
	Scope       Scope     `json:"scope"`
	SchoolID    *int64    `json:"school_id"`
	UserID      *int64    `json:"user_id"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Type        Type      `json:"type"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// IsDefault reports whether s was synthesized from Defaults.
func (s Setting) IsDefault() bool { return s.ID == 0 }

func (s Setting) String() string { return s.Value }

func (s Setting) Bool() (bool, error) {
	return strconv.ParseBool(strings.TrimSpace(s.Value))
}

func (s Setting) Int() (int, error) {
	return strconv.Atoi(strings.TrimSpace(s.Value))
}

func (s Setting) Float() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s.Value), 64)
}

// JSON decodes the value into v.
func (s Setting) JSON(v interface{}) error {
	return json.Unmarshal([]byte(s.Value), v)
}

// checkValue makes sure value parses as t.
func checkValue(t Type, value string) error {
	s := Setting{Value: value}
	var err error
	switch t {
	case TypeString:
	case TypeInteger:
		_, err = s.Int()
	case TypeFloat:
		_, err = s.Float()
	case TypeBoolean:
		_, err = s.Bool()
	case TypeJSON:
		if !json.Valid([]byte(value)) {
			err = errors.New("invalid json")
		}
	default:
		err = errors.New("unknown type")
	}
	return err
}

// History is one change of a setting value.
type History struct {
	ID        int64     `json:"id"`
	SettingID int64     `json:"setting_id"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	ChangedBy *int64    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"` // UTC
}

// SetSetting creates or replaces the value of a key in a scope.
type SetSetting struct {
	Scope       Scope  `json:"scope" validate:"required,oneof=global school user"`
	SchoolID    *int64 `json:"school_id" validate:"omitempty,min=1"`
	UserID      *int64 `json:"user_id" validate:"omitempty,min=1"`
	Key         string `json:"key" validate:"required,max=100,alphanum_"`
	Value       string `json:"value"`
	Type        Type   `json:"type" validate:"omitempty,oneof=string integer float boolean json"`
	Description string `json:"description" validate:"max=300"`
}

func (ss *SetSetting) Validate(validate *validator.Validate) error {
	ss.Key = core.CleanString(ss.Key, true /* lower */)
	ss.Value = strings.TrimSpace(ss.Value)
	ss.Description = core.CleanString(ss.Description)
	if ss.Type == "" {
		if def, ok := Defaults[ss.Key]; ok {
			ss.Type = def.Type
		} else {
			ss.Type = TypeString
		}
	}
	if err := validate.Struct(ss); err != nil {
		return err
	}
	if err := checkValue(ss.Type, ss.Value); err != nil {
		return core.NewFieldValidationError("value", errors.Wrap(err, "value does not match type "+string(ss.Type)))
	}
	switch ss.Scope {
	case ScopeSchool:
		if ss.SchoolID == nil {
			return core.NewFieldValidationError("school_id", errOwnerRequired)
		}
	case ScopeUser:
		if ss.UserID == nil {
			return core.NewFieldValidationError("user_id", errOwnerRequired)
		}
	}
	return nil
}

// Owner returns the id a scoped row belongs to, 0 for global rows.
func (ss SetSetting) Owner() int64 {
	switch ss.Scope {
	case ScopeSchool:
		return *ss.SchoolID
	case ScopeUser:
		return *ss.UserID
	}
	return 0
}

type QueryFilter struct {
	Scope    Scope  `query:"scope"`
	SchoolID int64  `query:"school_id"`
	UserID   int64  `query:"user_id"`
	Key      string `query:"key"`
}

func (qf *QueryFilter) Clean() {
	qf.Scope = Scope(core.CleanString(string(qf.Scope), true /* lower */))
	qf.Key = core.CleanString(qf.Key, true /* lower */)
}
