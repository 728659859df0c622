package role

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

// Role names
const (
	SuperRoleName = "Administrador Geral"
	SchoolAdmin   = "Administrador da Escola"
	Operator      = "Operador"
	ReadOnly      = "Consulta"
)

type (
	Module string
	Action string
)

// Modules
const (
	ModuleUser      Module = "usuario"
	ModuleSchool    Module = "escola"
	ModuleCity      Module = "cidade"
	ModuleDirector  Module = "diretor"
	ModuleRequester Module = "solicitante"
	ModuleDossier   Module = "dossie"
	ModuleAttach    Module = "anexo"
	ModuleMovement  Module = "movimentacao"
	ModuleReport    Module = "relatorio"
	ModuleAdmin     Module = "admin"
	ModuleRole      Module = "perfil"
	ModulePerm      Module = "permissao"
	ModuleSetting   Module = "configuracao"
)

// Actions
const (
	ActionCreate Action = "criar"
	ActionEdit   Action = "editar"
	ActionDelete Action = "excluir"
	ActionView   Action = "visualizar"
	ActionGen    Action = "gerar"
	ActionTotal  Action = "total"
	ActionBackup Action = "backup"
	ActionLogs   Action = "logs"
)

var (
	AllModules = []Module{
		ModuleUser, ModuleSchool, ModuleCity, ModuleDirector, ModuleRequester, ModuleDossier, ModuleAttach,
		ModuleMovement, ModuleReport, ModuleAdmin, ModuleRole, ModulePerm, ModuleSetting,
	}
	crud = []Action{ActionCreate, ActionEdit, ActionDelete, ActionView}

	// Catalog is every (module, action) pair the application checks.
	Catalog = buildCatalog()

	// Menus maps a navigation menu to the modules granting access to it.
	Menus = map[string][]Module{
		"cadastro":     {ModuleUser, ModuleSchool, ModuleDirector, ModuleRequester},
		"dossie":       {ModuleDossier},
		"movimentacao": {ModuleMovement},
		"relatorio":    {ModuleReport},
		"admin":        {ModuleAdmin, ModulePerm, ModuleRole},
		"manutencao":   {ModuleCity, ModuleSetting},
	}

	moduleActions map[Module]map[Action]bool
)

func init() {
	moduleActions = make(map[Module]map[Action]bool, len(AllModules))
	for _, p := range Catalog {
		if moduleActions[p.Module] == nil {
			moduleActions[p.Module] = make(map[Action]bool)
		}
		moduleActions[p.Module][p.Action] = true
	}
}

func buildCatalog() []Permission {
	actions := map[Module][]Action{
		ModuleReport: {ActionView, ActionGen},
		ModuleAdmin:  {ActionTotal, ActionBackup, ActionLogs},
	}
	perms := make([]Permission, 0, 4*len(AllModules))
	for _, m := range AllModules {
		acts, ok := actions[m]
		if !ok {
			acts = crud
		}
		for _, a := range acts {
			perms = append(perms, Permission{
				Name:        PermissionName(m, a),
				Description: fmt.Sprintf("%s %s", strings.Title(string(a)), m),
				Module:      m,
				Action:      a,
			})
		}
	}
	return perms
}

// PermissionName returns the unique name of a (module, action) pair, e.g. "dossie.criar".
func PermissionName(m Module, a Action) string {
	return string(m) + "." + string(a)
}

// ParseModule validates a module coming from the outside world.
func ParseModule(s string) (Module, error) {
	m := Module(core.CleanString(s, true /* lower */))
	if _, ok := moduleActions[m]; !ok {
		return "", ErrUnknownPermission
	}
	return m, nil
}

// ParseAction validates an action against the catalog of module `m`.
func ParseAction(m Module, s string) (Action, error) {
	a := Action(core.CleanString(s, true /* lower */))
	if !moduleActions[m][a] {
		return "", ErrUnknownPermission
	}
	return a, nil
}

// Known reports whether (m, a) belongs to the catalog.
func Known(m Module, a Action) bool {
	return moduleActions[m][a]
}

type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

func (r Role) IsSuper() bool { return r.Name == SuperRoleName }

type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Module      Module `json:"module"`
	Action      Action `json:"action"`
}

// Set is a role's permissions indexed by module.
type Set map[Module]map[Action]bool

func NewSet(perms ...Permission) Set {
	s := make(Set)
	for _, p := range perms {
		s.Add(p.Module, p.Action)
	}
	return s
}

func (s Set) Add(m Module, a Action) {
	if s[m] == nil {
		s[m] = make(map[Action]bool)
	}
	s[m][a] = true
}

func (s Set) Has(m Module, a Action) bool {
	return s[m][a]
}

// Modules returns the modules with at least one action, sorted.
func (s Set) Modules() []Module {
	mods := make([]Module, 0, len(s))
	for m, acts := range s {
		if len(acts) > 0 {
			mods = append(mods, m)
		}
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i] < mods[j] })
	return mods
}

// Subject is whoever permissions are resolved for.
type Subject struct {
	UserID   int64
	RoleID   int64
	RoleName string
}

func (s Subject) IsSuper() bool { return s.RoleName == SuperRoleName }

// NewRole contains information needed to create a new Role.
type NewRole struct {
	Name        string `json:"name" validate:"required,max=50"`
	Description string `json:"description" validate:"max=200"`
}

func (nr *NewRole) Validate(validate *validator.Validate) error {
	nr.Name = core.CleanString(nr.Name)
	nr.Description = core.CleanString(nr.Description)
	return validate.Struct(nr)
}

// UpdateRole defines what information may be provided to modify an existing Role.
type UpdateRole struct {
	Name        string  `json:"name" validate:"omitempty,max=50"`
	Description *string `json:"description" validate:"omitempty,max=200"`
}

func (ur *UpdateRole) Validate(orig Role, validate *validator.Validate) error {
	if name := core.CleanString(ur.Name); name != "" {
		ur.Name = name
	} else {
		ur.Name = orig.Name
	}
	if ur.Description != nil {
		desc := core.CleanString(*ur.Description)
		ur.Description = &desc
	}
	return validate.Struct(ur)
}

// PermissionGrant is one (module, action) pair sent by clients.
type PermissionGrant struct {
	Module string `json:"module" validate:"required"`
	Action string `json:"action" validate:"required"`
}

type SetPermissions struct {
	Permissions []PermissionGrant `json:"permissions" validate:"dive"`
}

// Validate parses every grant against the catalog and returns the typed pairs.
func (sp *SetPermissions) Validate(validate *validator.Validate) ([]Permission, error) {
	if err := validate.Struct(sp); err != nil {
		return nil, err
	}
	perms := make([]Permission, 0, len(sp.Permissions))
	for _, g := range sp.Permissions {
		m, err := ParseModule(g.Module)
		if err != nil {
			return nil, core.NewFieldValidationError("permissions", fmt.Errorf("unknown module %q", g.Module))
		}
		a, err := ParseAction(m, g.Action)
		if err != nil {
			return nil, core.NewFieldValidationError("permissions", fmt.Errorf("unknown action %q for module %q", g.Action, g.Module))
		}
		perms = append(perms, Permission{Name: PermissionName(m, a), Module: m, Action: a})
	}
	return perms, nil
}

// DefaultRoles are seeded on first run, with their permission sets.
func DefaultRoles() map[string][]Permission {
	pick := func(pairs map[Module][]Action) []Permission {
		perms := make([]Permission, 0)
		for _, p := range Catalog {
			for _, a := range pairs[p.Module] {
				if a == p.Action {
					perms = append(perms, p)
				}
			}
		}
		return perms
	}
	view := []Action{ActionView}
	return map[string][]Permission{
		SuperRoleName: Catalog,
		SchoolAdmin: pick(map[Module][]Action{
			ModuleUser:      crud,
			ModuleDossier:   crud,
			ModuleAttach:    crud,
			ModuleMovement:  crud,
			ModuleRequester: crud,
			ModuleSchool:    view,
			ModuleCity:      view,
			ModuleDirector:  view,
			ModuleSetting:   view,
			ModuleReport:    {ActionView, ActionGen},
		}),
		Operator: pick(map[Module][]Action{
			ModuleDossier:   {ActionCreate, ActionEdit, ActionView},
			ModuleAttach:    {ActionCreate, ActionEdit, ActionView},
			ModuleMovement:  {ActionCreate, ActionEdit, ActionView},
			ModuleRequester: {ActionCreate, ActionEdit, ActionView},
			ModuleCity:      view,
		}),
		ReadOnly: pick(map[Module][]Action{
			ModuleDossier:   view,
			ModuleAttach:    view,
			ModuleMovement:  view,
			ModuleRequester: view,
			ModuleCity:      view,
		}),
	}
}
