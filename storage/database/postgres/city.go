package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/city"
)

type (
	cityRow struct {
		ID        int64     `db:"id"`
		Name      string    `db:"name"`
		UF        string    `db:"uf"`
		Country   string    `db:"country"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	cityRepository struct {
		db *sqlx.DB
	}
)

var _ city.Repository = (*cityRepository)(nil) // interface compliance check

func NewCityRepository(db *sqlx.DB) *cityRepository {
	return &cityRepository{db: db}
}

func toCityRow(c city.City) cityRow {
	return cityRow{ID: c.ID, Name: c.Name, UF: c.UF, Country: c.Country, CreatedAt: utc(c.CreatedAt), UpdatedAt: utc(c.UpdatedAt)}
}

func (row cityRow) toCity() city.City {
	return city.City{ID: row.ID, Name: row.Name, UF: row.UF, Country: row.Country, CreatedAt: utc(row.CreatedAt), UpdatedAt: utc(row.UpdatedAt)}
}

const citySelect = "SELECT id, name, uf, country, created_at, updated_at FROM cities"

var cityColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"uf":         "uf",
	"created_at": "created_at",
}

func (repo *cityRepository) CheckCityUniqueness(ctx context.Context, name, uf string, excl ...city.City) error {
	var c conds
	c.add("lower(name) = lower(?)", name)
	c.add("uf = ?", uf)
	ids := make([]int64, 0, len(excl))
	for _, ct := range excl {
		ids = append(ids, ct.ID)
	}
	if q, args := excludedIDs(ids); q != "" {
		c.add(q, args...)
	}
	q, args := selectQuery("SELECT count(*) FROM cities", c, "", core.Page{})
	var n int
	if err := repo.db.GetContext(ctx, &n, q, args...); err != nil {
		return errors.Wrap(err, "checking city uniqueness")
	}
	if n > 0 {
		return city.ErrExists
	}
	return nil
}

func (repo *cityRepository) CreateCity(ctx context.Context, c city.City) (city.City, error) {
	q := `INSERT INTO cities (name, uf, country, created_at, updated_at)
		VALUES (:name, :uf, :country, :created_at, :updated_at) RETURNING id`
	id, err := insert(ctx, repo.db, q, toCityRow(c))
	if err != nil {
		if isUniqueViolation(err) {
			return city.City{}, city.ErrExists
		}
		return city.City{}, errors.Wrap(err, "inserting city")
	}
	c.ID = id
	return c, nil
}

func (repo *cityRepository) GetCity(ctx context.Context, id int64) (city.City, error) {
	var row cityRow
	if err := repo.db.GetContext(ctx, &row, citySelect+" WHERE id = $1", id); err != nil {
		return city.City{}, trapNoRowsErr(err, city.ErrNotFound, "finding city")
	}
	return row.toCity(), nil
}

func (repo *cityRepository) QueryCities(ctx context.Context, filter city.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]city.City, error) {
	var c conds
	c.search(filter.Search, "name")
	if filter.UF != "" {
		c.add("uf = ?", filter.UF)
	}
	orderBy := core.OrderByClause(ordering, cityColumns, "name ASC, uf ASC")
	q, args := selectQuery(citySelect, c, orderBy, page)
	var rows []cityRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying cities")
	}
	cities := make([]city.City, 0, len(rows))
	for _, row := range rows {
		cities = append(cities, row.toCity())
	}
	return cities, nil
}

func (repo *cityRepository) UpdateCity(ctx context.Context, c city.City) (city.City, error) {
	q := `UPDATE cities SET name = :name, uf = :uf, country = :country, updated_at = :updated_at WHERE id = :id`
	if err := updateOne(ctx, repo.db, q, toCityRow(c), city.ErrNotFound); err != nil {
		if isUniqueViolation(err) {
			return city.City{}, city.ErrExists
		}
		if err == city.ErrNotFound {
			return city.City{}, err
		}
		return city.City{}, errors.Wrap(err, "updating city")
	}
	return c, nil
}

func (repo *cityRepository) DeleteCity(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM cities WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting city")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return city.ErrNotFound
	}
	return nil
}

func (repo *cityRepository) CountCityReferences(ctx context.Context, id int64) (int, error) {
	var n int
	q := `SELECT (SELECT count(*) FROM schools WHERE city_id = $1) + (SELECT count(*) FROM requesters WHERE city_id = $1)`
	if err := repo.db.GetContext(ctx, &n, q, id); err != nil {
		return 0, errors.Wrap(err, "counting city references")
	}
	return n, nil
}
