package inmemdb

import (
	"context"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
)

type settingRepository struct {
	db *DB
}

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(db *DB) *settingRepository {
	return &settingRepository{db: db}
}

func owner(s *setting.Setting) int64 {
	switch {
	case s.Scope == setting.ScopeSchool && s.SchoolID != nil:
		return *s.SchoolID
	case s.Scope == setting.ScopeUser && s.UserID != nil:
		return *s.UserID
	}
	return 0
}

func (repo *settingRepository) FindSetting(_ context.Context, scope setting.Scope, ownerID int64, key string) (setting.Setting, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, s := range repo.db.settings {
		if s.Active && s.Scope == scope && owner(s) == ownerID && s.Key == key {
			return *s, nil
		}
	}
	return setting.Setting{}, setting.ErrNotFound
}

func (repo *settingRepository) GetSetting(_ context.Context, id int64) (setting.Setting, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.settings[id]; ok {
		return *s, nil
	}
	return setting.Setting{}, setting.ErrNotFound
}

var settingComparers = comparers[setting.Setting]{
	"key":   func(a, b setting.Setting) int { return cmpFold(a.Key, b.Key) },
	"scope": func(a, b setting.Setting) int { return cmpFold(string(a.Scope), string(b.Scope)) },
	"id":    byID(func(s setting.Setting) int64 { return s.ID }),
}

func (repo *settingRepository) QuerySettings(_ context.Context, filter setting.QueryFilter, page core.Page) ([]setting.Setting, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	settings := make([]setting.Setting, 0)
	for _, s := range repo.db.settings {
		if filter.Scope != "" && s.Scope != filter.Scope {
			continue
		}
		if filter.SchoolID != 0 && (s.SchoolID == nil || *s.SchoolID != filter.SchoolID) {
			continue
		}
		if filter.UserID != 0 && (s.UserID == nil || *s.UserID != filter.UserID) {
			continue
		}
		if filter.Key != "" && s.Key != filter.Key {
			continue
		}
		settings = append(settings, *s)
	}
	sortRows(settings, nil, settingComparers, asc("key"), asc("scope"), asc("id"))
	return paginate(settings, page), nil
}

func (repo *settingRepository) CreateSetting(_ context.Context, s setting.Setting) (setting.Setting, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s.ID = repo.db.nextPK()
	repo.db.settings[s.ID] = &s
	return s, nil
}

func (repo *settingRepository) UpdateSetting(_ context.Context, s setting.Setting, h setting.History) (setting.Setting, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.settings[s.ID]; !ok {
		return setting.Setting{}, setting.ErrNotFound
	}
	repo.db.settings[s.ID] = &s
	h.ID = repo.db.nextPK()
	h.SettingID = s.ID
	repo.db.history = append(repo.db.history, h)
	return s, nil
}

func (repo *settingRepository) DeleteSetting(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.settings[id]; !ok {
		return setting.ErrNotFound
	}
	delete(repo.db.settings, id)
	kept := repo.db.history[:0]
	for _, h := range repo.db.history {
		if h.SettingID != id {
			kept = append(kept, h)
		}
	}
	repo.db.history = kept
	return nil
}

// QueryHistory returns the newest changes first.
func (repo *settingRepository) QueryHistory(_ context.Context, settingID int64) ([]setting.History, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	hist := make([]setting.History, 0)
	for i := len(repo.db.history) - 1; i >= 0; i-- {
		if repo.db.history[i].SettingID == settingID {
			hist = append(hist, repo.db.history[i])
		}
	}
	return hist, nil
}
