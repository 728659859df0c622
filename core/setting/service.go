// Package setting resolves typed configuration values scoped to the whole system, a school or a user.
package setting

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

var (
	// errors
	ErrNotFound      = errors.New("setting not found")
	errOwnerRequired = errors.New("scoped settings need an owner")
)

type (
	Repository interface {
		// FindSetting returns the active row of key for (scope, ownerID). ownerID is 0 for global rows.
		FindSetting(ctx context.Context, scope Scope, ownerID int64, key string) (Setting, error)
		GetSetting(ctx context.Context, id int64) (Setting, error)
		QuerySettings(ctx context.Context, filter QueryFilter, page core.Page) ([]Setting, error)
		CreateSetting(ctx context.Context, s Setting) (Setting, error)
		// UpdateSetting writes s and appends h in the same transaction.
		UpdateSetting(ctx context.Context, s Setting, h History) (Setting, error)
		DeleteSetting(ctx context.Context, id int64) error
		QueryHistory(ctx context.Context, settingID int64) ([]History, error)
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Resolve finds the value of key for a user of a school: the user row wins over the school row,
// which wins over the global row. Unknown keys without any row return ErrNotFound.
func (svc *Service) Resolve(ctx context.Context, key string, schoolID, userID int64) (Setting, error) {
	key = core.CleanString(key, true /* lower */)
	lookups := []struct {
		scope Scope
		owner int64
	}{
		{ScopeUser, userID},
		{ScopeSchool, schoolID},
		{ScopeGlobal, 0},
	}
	for _, l := range lookups {
		if l.scope != ScopeGlobal && l.owner == 0 {
			continue
		}
		s, err := svc.repo.FindSetting(ctx, l.scope, l.owner, key)
		if err == nil {
			return s, nil
		}
		if pkgerrors.Cause(err) != ErrNotFound {
			return Setting{}, pkgerrors.Wrap(err, "finding setting "+key)
		}
	}
	if def, ok := Defaults[key]; ok {
		return Setting{Scope: ScopeGlobal, Key: key, Value: def.Value, Type: def.Type, Description: def.Description, Active: true}, nil
	}
	return Setting{}, ErrNotFound
}

// resolveDefault is Resolve that never fails: errors are logged and the built-in default is used.
func (svc *Service) resolveDefault(ctx context.Context, key string, schoolID, userID int64) Setting {
	s, err := svc.Resolve(ctx, key, schoolID, userID)
	if err != nil {
		if pkgerrors.Cause(err) != ErrNotFound {
			svc.logger.Error("resolving setting", err, map[string]interface{}{"key": key})
		}
		def := Defaults[key]
		return Setting{Key: key, Value: def.Value, Type: def.Type}
	}
	return s
}

// Bool resolves key as a boolean, false when nothing usable is found.
func (svc *Service) Bool(ctx context.Context, key string, schoolID, userID int64) bool {
	s := svc.resolveDefault(ctx, key, schoolID, userID)
	v, err := s.Bool()
	if err != nil {
		def, _ := Setting{Value: Defaults[key].Value}.Bool()
		return def
	}
	return v
}

// Int resolves key as an integer, 0 when nothing usable is found.
func (svc *Service) Int(ctx context.Context, key string, schoolID, userID int64) int {
	s := svc.resolveDefault(ctx, key, schoolID, userID)
	v, err := s.Int()
	if err != nil {
		def, _ := Setting{Value: Defaults[key].Value}.Int()
		return def
	}
	return v
}

// Strings resolves a JSON list of strings.
func (svc *Service) Strings(ctx context.Context, key string, schoolID, userID int64) []string {
	var out []string
	if err := svc.resolveDefault(ctx, key, schoolID, userID).JSON(&out); err != nil {
		return nil
	}
	return out
}

// Set creates or replaces a value. Global rows are super role only; school and user rows must belong
// to the session's school for everyone else. Every change of an existing row is kept in its history.
func (svc *Service) Set(ctx context.Context, sess tenant.Session, ss SetSetting) (Setting, error) {
	if !sess.IsSuper() {
		switch ss.Scope {
		case ScopeGlobal:
			return Setting{}, core.ErrForbidden
		case ScopeSchool:
			if !sess.CanAccessSchool(*ss.SchoolID) {
				return Setting{}, core.ErrForbidden
			}
		}
	}

	now := core.Now()
	current, err := svc.repo.FindSetting(ctx, ss.Scope, ss.Owner(), ss.Key)
	if err != nil {
		if pkgerrors.Cause(err) != ErrNotFound {
			return Setting{}, pkgerrors.Wrap(err, "finding setting")
		}
		s := Setting{
			Scope:       ss.Scope,
			Key:         ss.Key,
			Value:       ss.Value,
			Type:        ss.Type,
			Description: ss.Description,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		switch ss.Scope {
		case ScopeSchool:
			s.SchoolID = ss.SchoolID
		case ScopeUser:
			s.UserID = ss.UserID
		}
		return svc.repo.CreateSetting(ctx, s)
	}

	changedBy := sess.UserID
	h := History{SettingID: current.ID, OldValue: current.Value, NewValue: ss.Value, ChangedBy: &changedBy, ChangedAt: now}
	current.Value = ss.Value
	current.Type = ss.Type
	if ss.Description != "" {
		current.Description = ss.Description
	}
	current.UpdatedAt = now
	return svc.repo.UpdateSetting(ctx, current, h)
}

func (svc *Service) Get(ctx context.Context, id int64) (Setting, error) {
	return svc.repo.GetSetting(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, page core.Page) ([]Setting, error) {
	return svc.repo.QuerySettings(ctx, filter, page.Clean())
}

func (svc *Service) History(ctx context.Context, s Setting) ([]History, error) {
	return svc.repo.QueryHistory(ctx, s.ID)
}

func (svc *Service) Delete(ctx context.Context, s Setting) error {
	return svc.repo.DeleteSetting(ctx, s.ID)
}

// Seed creates the global rows of Defaults that do not exist yet.
func (svc *Service) Seed(ctx context.Context) error {
	for key, def := range Defaults {
		if _, err := svc.repo.FindSetting(ctx, ScopeGlobal, 0, key); err == nil {
			continue
		} else if pkgerrors.Cause(err) != ErrNotFound {
			return pkgerrors.Wrap(err, "finding setting "+key)
		}
		now := core.Now()
		s := Setting{Scope: ScopeGlobal, Key: key, Value: def.Value, Type: def.Type, Description: def.Description, Active: true, CreatedAt: now, UpdatedAt: now}
		if _, err := svc.repo.CreateSetting(ctx, s); err != nil {
			return pkgerrors.Wrap(err, "creating setting "+key)
		}
	}
	return nil
}
