package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
)

type (
	settingRow struct {
		ID          int64       `db:"id"`
		Scope       string      `db:"scope"`
		SchoolID    null.Int64  `db:"school_id"`
		UserID      null.Int64  `db:"user_id"`
		Key         string      `db:"key"`
		Value       string      `db:"value"`
		Type        string      `db:"type"`
		Description null.String `db:"description"`
		Active      bool        `db:"active"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	historyRow struct {
		ID        int64       `db:"id"`
		SettingID int64       `db:"setting_id"`
		OldValue  null.String `db:"old_value"`
		NewValue  null.String `db:"new_value"`
		ChangedBy null.Int64  `db:"changed_by"`
		ChangedAt time.Time   `db:"changed_at"`
	}

	settingRepository struct {
		db *sqlx.DB
	}
)

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(db *sqlx.DB) *settingRepository {
	return &settingRepository{db: db}
}

func toSettingRow(s setting.Setting) settingRow {
	return settingRow{
		ID:          s.ID,
		Scope:       string(s.Scope),
		SchoolID:    null.Int64FromPtr(s.SchoolID),
		UserID:      null.Int64FromPtr(s.UserID),
		Key:         s.Key,
		Value:       s.Value,
		Type:        string(s.Type),
		Description: nullString(s.Description),
		Active:      s.Active,
		CreatedAt:   utc(s.CreatedAt),
		UpdatedAt:   utc(s.UpdatedAt),
	}
}

func (row settingRow) toSetting() setting.Setting {
	return setting.Setting{
		ID:          row.ID,
		Scope:       setting.Scope(row.Scope),
		SchoolID:    row.SchoolID.Ptr(),
		UserID:      row.UserID.Ptr(),
		Key:         row.Key,
		Value:       row.Value,
		Type:        setting.Type(row.Type),
		Description: row.Description.String,
		Active:      row.Active,
		CreatedAt:   utc(row.CreatedAt),
		UpdatedAt:   utc(row.UpdatedAt),
	}
}

const settingSelect = `SELECT id, scope, school_id, user_id, key, value, type, description, active,
	created_at, updated_at FROM settings`

func (repo *settingRepository) FindSetting(ctx context.Context, scope setting.Scope, ownerID int64, key string) (setting.Setting, error) {
	var c conds
	c.add("scope = ?", string(scope))
	c.add("key = ?", key)
	c.add("active")
	switch scope {
	case setting.ScopeSchool:
		c.add("school_id = ?", ownerID)
	case setting.ScopeUser:
		c.add("user_id = ?", ownerID)
	}
	q, args := selectQuery(settingSelect, c, "", core.Page{Limit: 1})
	var row settingRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return setting.Setting{}, trapNoRowsErr(err, setting.ErrNotFound, "finding setting")
	}
	return row.toSetting(), nil
}

func (repo *settingRepository) GetSetting(ctx context.Context, id int64) (setting.Setting, error) {
	var row settingRow
	if err := repo.db.GetContext(ctx, &row, settingSelect+" WHERE id = $1", id); err != nil {
		return setting.Setting{}, trapNoRowsErr(err, setting.ErrNotFound, "getting setting")
	}
	return row.toSetting(), nil
}

func (repo *settingRepository) QuerySettings(ctx context.Context, filter setting.QueryFilter, page core.Page) ([]setting.Setting, error) {
	var c conds
	if filter.Scope != "" {
		c.add("scope = ?", string(filter.Scope))
	}
	if filter.SchoolID != 0 {
		c.add("school_id = ?", filter.SchoolID)
	}
	if filter.UserID != 0 {
		c.add("user_id = ?", filter.UserID)
	}
	if filter.Key != "" {
		c.add("key = ?", filter.Key)
	}
	q, args := selectQuery(settingSelect, c, "key ASC, scope ASC, id ASC", page)
	var rows []settingRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying settings")
	}
	settings := make([]setting.Setting, 0, len(rows))
	for _, row := range rows {
		settings = append(settings, row.toSetting())
	}
	return settings, nil
}

func (repo *settingRepository) CreateSetting(ctx context.Context, s setting.Setting) (setting.Setting, error) {
	q := `INSERT INTO settings (scope, school_id, user_id, key, value, type, description, active, created_at, updated_at)
		VALUES (:scope, :school_id, :user_id, :key, :value, :type, :description, :active, :created_at, :updated_at)
		RETURNING id`
	id, err := insert(ctx, repo.db, q, toSettingRow(s))
	if err != nil {
		return setting.Setting{}, errors.Wrap(err, "inserting setting")
	}
	s.ID = id
	return s, nil
}

func (repo *settingRepository) UpdateSetting(ctx context.Context, s setting.Setting, h setting.History) (setting.Setting, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `UPDATE settings SET value = :value, type = :type, description = :description, active = :active,
			updated_at = :updated_at WHERE id = :id`
		if err := updateOne(ctx, tx, q, toSettingRow(s), setting.ErrNotFound); err != nil {
			return err
		}
		hist := historyRow{
			SettingID: s.ID,
			OldValue:  null.StringFrom(h.OldValue),
			NewValue:  null.StringFrom(h.NewValue),
			ChangedBy: null.Int64FromPtr(h.ChangedBy),
			ChangedAt: utc(h.ChangedAt),
		}
		_, err := insert(ctx, tx, `INSERT INTO setting_history (setting_id, old_value, new_value, changed_by, changed_at)
			VALUES (:setting_id, :old_value, :new_value, :changed_by, :changed_at) RETURNING id`, hist)
		return err
	})
	if err != nil {
		if err == setting.ErrNotFound {
			return setting.Setting{}, err
		}
		return setting.Setting{}, errors.Wrap(err, "updating setting")
	}
	return s, nil
}

func (repo *settingRepository) DeleteSetting(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM settings WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting setting")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return setting.ErrNotFound
	}
	return nil
}

func (repo *settingRepository) QueryHistory(ctx context.Context, settingID int64) ([]setting.History, error) {
	var rows []historyRow
	q := `SELECT id, setting_id, old_value, new_value, changed_by, changed_at FROM setting_history
		WHERE setting_id = $1 ORDER BY changed_at DESC, id DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, settingID); err != nil {
		return nil, errors.Wrap(err, "querying setting history")
	}
	hist := make([]setting.History, 0, len(rows))
	for _, row := range rows {
		hist = append(hist, setting.History{
			ID:        row.ID,
			SettingID: row.SettingID,
			OldValue:  row.OldValue.String,
			NewValue:  row.NewValue.String,
			ChangedBy: row.ChangedBy.Ptr(),
			ChangedAt: utc(row.ChangedAt),
		})
	}
	return hist, nil
}
