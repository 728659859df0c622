package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/director"
)

type (
	directorRow struct {
		ID        int64       `db:"id"`
		Name      string      `db:"name"`
		CPF       null.String `db:"cpf"`
		Address   null.String `db:"address"`
		Phone     null.String `db:"phone"`
		City      null.String `db:"city"`
		Status    string      `db:"status"`
		Mandate   null.String `db:"mandate"`
		HiredAt   null.Time   `db:"hired_at"`
		Photo     null.String `db:"photo"`
		CreatedAt time.Time   `db:"created_at"`
		UpdatedAt time.Time   `db:"updated_at"`
	}

	directorRepository struct {
		db *sqlx.DB
	}
)

var _ director.Repository = (*directorRepository)(nil) // interface compliance check

func NewDirectorRepository(db *sqlx.DB) *directorRepository {
	return &directorRepository{db: db}
}

func toDirectorRow(d director.Director) directorRow {
	return directorRow{
		ID:        d.ID,
		Name:      d.Name,
		CPF:       nullString(d.CPF),
		Address:   nullString(d.Address),
		Phone:     nullString(d.Phone),
		City:      nullString(d.City),
		Status:    string(d.Status),
		Mandate:   nullString(d.Mandate),
		HiredAt:   nullTime(d.HiredAt),
		Photo:     nullString(d.Photo),
		CreatedAt: utc(d.CreatedAt),
		UpdatedAt: utc(d.UpdatedAt),
	}
}

func (row directorRow) toDirector() director.Director {
	return director.Director{
		ID:        row.ID,
		Name:      row.Name,
		CPF:       row.CPF.String,
		Address:   row.Address.String,
		Phone:     row.Phone.String,
		City:      row.City.String,
		Status:    director.Status(row.Status),
		Mandate:   row.Mandate.String,
		HiredAt:   utcPtr(row.HiredAt),
		Photo:     row.Photo.String,
		CreatedAt: utc(row.CreatedAt),
		UpdatedAt: utc(row.UpdatedAt),
	}
}

const directorSelect = `SELECT id, name, cpf, address, phone, city, status, mandate, hired_at, photo,
	created_at, updated_at FROM directors`

var directorColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"status":     "status",
	"created_at": "created_at",
}

func (repo *directorRepository) CheckDirectorUniqueness(ctx context.Context, cpf string, excl ...director.Director) error {
	if cpf == "" {
		return nil
	}
	var c conds
	c.add("cpf = ?", cpf)
	ids := make([]int64, 0, len(excl))
	for _, d := range excl {
		ids = append(ids, d.ID)
	}
	if q, args := excludedIDs(ids); q != "" {
		c.add(q, args...)
	}
	q, args := selectQuery("SELECT count(*) FROM directors", c, "", core.Page{})
	var n int
	if err := repo.db.GetContext(ctx, &n, q, args...); err != nil {
		return errors.Wrap(err, "checking director uniqueness")
	}
	if n > 0 {
		return director.ErrCPFExists
	}
	return nil
}

func (repo *directorRepository) CreateDirector(ctx context.Context, d director.Director) (director.Director, error) {
	q := `INSERT INTO directors (name, cpf, address, phone, city, status, mandate, hired_at, photo, created_at, updated_at)
		VALUES (:name, :cpf, :address, :phone, :city, :status, :mandate, :hired_at, :photo, :created_at, :updated_at)
		RETURNING id`
	id, err := insert(ctx, repo.db, q, toDirectorRow(d))
	if err != nil {
		if isUniqueViolation(err, "directors_cpf_key") {
			return director.Director{}, director.ErrCPFExists
		}
		return director.Director{}, errors.Wrap(err, "inserting director")
	}
	d.ID = id
	return d, nil
}

func (repo *directorRepository) GetDirector(ctx context.Context, id int64) (director.Director, error) {
	var row directorRow
	if err := repo.db.GetContext(ctx, &row, directorSelect+" WHERE id = $1", id); err != nil {
		return director.Director{}, trapNoRowsErr(err, director.ErrNotFound, "finding director")
	}
	return row.toDirector(), nil
}

func (repo *directorRepository) QueryDirectors(ctx context.Context, filter director.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]director.Director, error) {
	var c conds
	c.search(filter.Search, "name", "cpf", "city", "mandate")
	if filter.Status != "" {
		c.add("status = ?", string(filter.Status))
	}
	orderBy := core.OrderByClause(ordering, directorColumns, "name ASC, id ASC")
	q, args := selectQuery(directorSelect, c, orderBy, page)
	var rows []directorRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying directors")
	}
	directors := make([]director.Director, 0, len(rows))
	for _, row := range rows {
		directors = append(directors, row.toDirector())
	}
	return directors, nil
}

func (repo *directorRepository) UpdateDirector(ctx context.Context, d director.Director) (director.Director, error) {
	q := `UPDATE directors SET name = :name, cpf = :cpf, address = :address, phone = :phone, city = :city,
		status = :status, mandate = :mandate, hired_at = :hired_at, photo = :photo, updated_at = :updated_at
		WHERE id = :id`
	if err := updateOne(ctx, repo.db, q, toDirectorRow(d), director.ErrNotFound); err != nil {
		if isUniqueViolation(err, "directors_cpf_key") {
			return director.Director{}, director.ErrCPFExists
		}
		if err == director.ErrNotFound {
			return director.Director{}, err
		}
		return director.Director{}, errors.Wrap(err, "updating director")
	}
	return d, nil
}

func (repo *directorRepository) DeleteDirector(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM directors WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting director")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return director.ErrNotFound
	}
	return nil
}

func (repo *directorRepository) CountDirectorSchools(ctx context.Context, id int64) (int, error) {
	var n int
	if err := repo.db.GetContext(ctx, &n, "SELECT count(*) FROM schools WHERE director_id = $1", id); err != nil {
		return 0, errors.Wrap(err, "counting director schools")
	}
	return n, nil
}

func (repo *directorRepository) DirectorStats(ctx context.Context) (director.Stats, error) {
	stats := director.Stats{ByMandate: make(map[string]int)}
	q := `SELECT count(*) AS total, count(*) FILTER (WHERE status = $1) AS active FROM directors`
	var totals struct {
		Total  int `db:"total"`
		Active int `db:"active"`
	}
	if err := repo.db.GetContext(ctx, &totals, q, string(director.StatusActive)); err != nil {
		return director.Stats{}, errors.Wrap(err, "counting directors")
	}
	stats.Total, stats.Active, stats.Inactive = totals.Total, totals.Active, totals.Total-totals.Active

	var mandates []struct {
		Mandate string `db:"mandate"`
		N       int    `db:"n"`
	}
	q = `SELECT mandate, count(*) AS n FROM directors WHERE mandate IS NOT NULL AND mandate <> '' GROUP BY mandate`
	if err := repo.db.SelectContext(ctx, &mandates, q); err != nil {
		return director.Stats{}, errors.Wrap(err, "counting directors by mandate")
	}
	for _, m := range mandates {
		stats.ByMandate[m.Mandate] = m.N
	}
	return stats, nil
}
