// Package tenant derives the school a request operates on.
package tenant

import (
	"errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
)

var (
	ErrSwitchForbidden = errors.New("only the super role can switch schools")
	ErrAllForbidden    = errors.New("only the super role can list every school")
)

// Session is the per-request view of the authenticated user.
type Session struct {
	UserID          int64  `json:"user_id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	RoleID          int64  `json:"role_id"`
	RoleName        string `json:"role_name"`
	HomeSchoolID    int64  `json:"home_school_id"`
	CurrentSchoolID *int64 `json:"current_school_id,omitempty"`
	CanSwitchSchool bool   `json:"can_switch_school"`
}

func NewSession(userID int64, name, email string, roleID int64, roleName string, homeSchoolID int64) Session {
	return Session{
		UserID:          userID,
		Name:            name,
		Email:           email,
		RoleID:          roleID,
		RoleName:        roleName,
		HomeSchoolID:    homeSchoolID,
		CanSwitchSchool: roleName == role.SuperRoleName,
	}
}

func (s Session) IsSuper() bool { return s.RoleName == role.SuperRoleName }

func (s Session) Subject() role.Subject {
	return role.Subject{UserID: s.UserID, RoleID: s.RoleID, RoleName: s.RoleName}
}

// SchoolID is the current school: the switched one for the super role, the home school for everyone else.
func (s Session) SchoolID() int64 {
	if s.IsSuper() && s.CurrentSchoolID != nil {
		return *s.CurrentSchoolID
	}
	return s.HomeSchoolID
}

// Switch sets the current school. Only the super role may switch.
func (s *Session) Switch(schoolID int64) error {
	if !s.IsSuper() {
		return ErrSwitchForbidden
	}
	s.CurrentSchoolID = &schoolID
	return nil
}

// ClearSwitch goes back to the home school.
func (s *Session) ClearSwitch() {
	s.CurrentSchoolID = nil
}

// CanAccessSchool reports whether the session may read or write rows of schoolID.
func (s Session) CanAccessSchool(schoolID int64) bool {
	return s.IsSuper() || schoolID == s.HomeSchoolID
}

// Scope returns the filter for school-scoped queries. `all` asks for every school and is super role only.
func (s Session) Scope(all bool) (Scope, error) {
	if all {
		if !s.IsSuper() {
			return Scope{}, ErrAllForbidden
		}
		return Scope{All: true}, nil
	}
	return Scope{SchoolID: s.SchoolID()}, nil
}

// Scope is an equality filter on school id, unless All is set.
type Scope struct {
	SchoolID int64
	All      bool
}

func ForSchool(id int64) Scope { return Scope{SchoolID: id} }

// AllSchools is the unscoped filter, for the super role and out-of-band jobs.
func AllSchools() Scope { return Scope{All: true} }

// Allows reports whether a row owned by schoolID is visible in the scope.
func (sc Scope) Allows(schoolID int64) bool {
	return sc.All || sc.SchoolID == schoolID
}
