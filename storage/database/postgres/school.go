package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

type (
	schoolRow struct {
		ID           int64       `db:"id"`
		Name         string      `db:"name"`
		Address      null.String `db:"address"`
		CityID       null.Int64  `db:"city_id"`
		CNPJ         null.String `db:"cnpj"`
		INEP         null.String `db:"inep"`
		Email        null.String `db:"email"`
		Phone        null.String `db:"phone"`
		UF           null.String `db:"uf"`
		Status       string      `db:"status"`
		DirectorID   null.Int64  `db:"director_id"`
		DirectorName null.String `db:"director_name"`
		ViceDirector null.String `db:"vice_director"`
		Notes        null.String `db:"notes"`
		RegisteredAt null.Time   `db:"registered_at"`
		LeftAt       null.Time   `db:"left_at"`
		CreatedAt    time.Time   `db:"created_at"`
		UpdatedAt    time.Time   `db:"updated_at"`
	}

	schoolRepository struct {
		db *sqlx.DB
	}
)

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func toSchoolRow(s school.School) schoolRow {
	return schoolRow{
		ID:           s.ID,
		Name:         s.Name,
		Address:      nullString(s.Address),
		CityID:       null.Int64FromPtr(s.CityID),
		CNPJ:         nullString(s.CNPJ),
		INEP:         nullString(s.INEP),
		Email:        nullString(s.Email),
		Phone:        nullString(s.Phone),
		UF:           nullString(s.UF),
		Status:       string(s.Status),
		DirectorID:   null.Int64FromPtr(s.DirectorID),
		DirectorName: nullString(s.DirectorName),
		ViceDirector: nullString(s.ViceDirector),
		Notes:        nullString(s.Notes),
		RegisteredAt: nullTime(s.RegisteredAt),
		LeftAt:       nullTime(s.LeftAt),
		CreatedAt:    utc(s.CreatedAt),
		UpdatedAt:    utc(s.UpdatedAt),
	}
}

func (row schoolRow) toSchool() school.School {
	return school.School{
		ID:           row.ID,
		Name:         row.Name,
		Address:      row.Address.String,
		CityID:       row.CityID.Ptr(),
		CNPJ:         row.CNPJ.String,
		INEP:         row.INEP.String,
		Email:        row.Email.String,
		Phone:        row.Phone.String,
		UF:           row.UF.String,
		Status:       school.Status(row.Status),
		DirectorID:   row.DirectorID.Ptr(),
		DirectorName: row.DirectorName.String,
		ViceDirector: row.ViceDirector.String,
		Notes:        row.Notes.String,
		RegisteredAt: utcPtr(row.RegisteredAt),
		LeftAt:       utcPtr(row.LeftAt),
		CreatedAt:    utc(row.CreatedAt),
		UpdatedAt:    utc(row.UpdatedAt),
	}
}

const schoolSelect = `SELECT id, name, address, city_id, cnpj, inep, email, phone, uf, status, director_id, director_name,
	vice_director, notes, registered_at, left_at, created_at, updated_at FROM schools`

var schoolColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"uf":         "uf",
	"status":     "status",
	"created_at": "created_at",
}

func (repo *schoolRepository) CheckSchoolUniqueness(ctx context.Context, cnpj, inep string, excl ...school.School) error {
	ids := make([]int64, 0, len(excl))
	for _, s := range excl {
		ids = append(ids, s.ID)
	}
	check := func(column, value string, exists error) error {
		if value == "" {
			return nil
		}
		var c conds
		c.add(column+" = ?", value)
		if q, args := excludedIDs(ids); q != "" {
			c.add(q, args...)
		}
		q, args := selectQuery("SELECT count(*) FROM schools", c, "", core.Page{})
		var n int
		if err := repo.db.GetContext(ctx, &n, q, args...); err != nil {
			return errors.Wrap(err, "checking school uniqueness")
		}
		if n > 0 {
			return exists
		}
		return nil
	}
	if err := check("cnpj", cnpj, school.ErrCNPJExists); err != nil {
		return err
	}
	return check("inep", inep, school.ErrINEPExists)
}

func uniqueSchoolErr(err error) error {
	switch {
	case isUniqueViolation(err, "schools_cnpj_key"):
		return school.ErrCNPJExists
	case isUniqueViolation(err, "schools_inep_key"):
		return school.ErrINEPExists
	}
	return nil
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, s school.School) (school.School, error) {
	q := `INSERT INTO schools (name, address, city_id, cnpj, inep, email, phone, uf, status, director_id, director_name,
		vice_director, notes, registered_at, left_at, created_at, updated_at)
		VALUES (:name, :address, :city_id, :cnpj, :inep, :email, :phone, :uf, :status, :director_id, :director_name,
		:vice_director, :notes, :registered_at, :left_at, :created_at, :updated_at) RETURNING id`
	id, err := insert(ctx, repo.db, q, toSchoolRow(s))
	if err != nil {
		if uErr := uniqueSchoolErr(err); uErr != nil {
			return school.School{}, uErr
		}
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	s.ID = id
	return s, nil
}

func (repo *schoolRepository) GetSchool(ctx context.Context, id int64) (school.School, error) {
	var row schoolRow
	if err := repo.db.GetContext(ctx, &row, schoolSelect+" WHERE id = $1", id); err != nil {
		return school.School{}, trapNoRowsErr(err, school.ErrNotFound, "finding school")
	}
	return row.toSchool(), nil
}

func (repo *schoolRepository) QuerySchools(ctx context.Context, filter school.QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]school.School, error) {
	var c conds
	c.scope(scope, "id")
	c.search(filter.Search, "name", "cnpj", "inep", "director_name")
	if filter.Status != "" {
		c.add("status = ?", string(filter.Status))
	}
	if filter.CityID != 0 {
		c.add("city_id = ?", filter.CityID)
	}
	if filter.UF != "" {
		c.add("uf = ?", filter.UF)
	}

	orderBy := core.OrderByClause(ordering, schoolColumns, "name ASC, id ASC")
	q, args := selectQuery(schoolSelect, c, orderBy, page)
	var rows []schoolRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	schools := make([]school.School, 0, len(rows))
	for _, row := range rows {
		schools = append(schools, row.toSchool())
	}
	return schools, nil
}

func (repo *schoolRepository) UpdateSchool(ctx context.Context, s school.School) (school.School, error) {
	q := `UPDATE schools SET name = :name, address = :address, city_id = :city_id, cnpj = :cnpj, inep = :inep,
		email = :email, phone = :phone, uf = :uf, status = :status, director_id = :director_id, director_name = :director_name,
		vice_director = :vice_director, notes = :notes, registered_at = :registered_at, left_at = :left_at,
		updated_at = :updated_at WHERE id = :id`
	if err := updateOne(ctx, repo.db, q, toSchoolRow(s), school.ErrNotFound); err != nil {
		if uErr := uniqueSchoolErr(err); uErr != nil {
			return school.School{}, uErr
		}
		if err == school.ErrNotFound {
			return school.School{}, err
		}
		return school.School{}, errors.Wrap(err, "updating school")
	}
	return s, nil
}

func (repo *schoolRepository) DeleteSchool(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM schools WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting school")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.ErrNotFound
	}
	return nil
}

func (repo *schoolRepository) CountSchoolDependents(ctx context.Context, id int64) (school.Dependents, error) {
	var deps school.Dependents
	q := `SELECT (SELECT count(*) FROM users WHERE school_id = $1) AS users,
		(SELECT count(*) FROM dossiers WHERE school_id = $1) AS dossiers`
	if err := repo.db.QueryRowxContext(ctx, q, id).Scan(&deps.Users, &deps.Dossiers); err != nil {
		return school.Dependents{}, errors.Wrap(err, "counting school dependents")
	}
	return deps, nil
}
