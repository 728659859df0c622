package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/requester"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

type (
	requesterRow struct {
		ID           int64       `db:"id"`
		Name         string      `db:"name"`
		CPF          null.String `db:"cpf"`
		Email        null.String `db:"email"`
		Phone        null.String `db:"phone"`
		Address      null.String `db:"address"`
		CityID       null.Int64  `db:"city_id"`
		Relationship null.String `db:"relationship"`
		BirthDate    null.Time   `db:"birth_date"`
		RequestType  null.String `db:"request_type"`
		Status       string      `db:"status"`
		SchoolID     int64       `db:"school_id"`
		CreatedAt    time.Time   `db:"created_at"`
		UpdatedAt    time.Time   `db:"updated_at"`
	}

	requesterRepository struct {
		db *sqlx.DB
	}
)

var _ requester.Repository = (*requesterRepository)(nil) // interface compliance check

func NewRequesterRepository(db *sqlx.DB) *requesterRepository {
	return &requesterRepository{db: db}
}

func toRequesterRow(r requester.Requester) requesterRow {
	return requesterRow{
		ID:           r.ID,
		Name:         r.Name,
		CPF:          nullString(r.CPF),
		Email:        nullString(r.Email),
		Phone:        nullString(r.Phone),
		Address:      nullString(r.Address),
		CityID:       null.Int64FromPtr(r.CityID),
		Relationship: nullString(r.Relationship),
		BirthDate:    nullTime(r.BirthDate),
		RequestType:  nullString(r.RequestType),
		Status:       string(r.Status),
		SchoolID:     r.SchoolID,
		CreatedAt:    utc(r.CreatedAt),
		UpdatedAt:    utc(r.UpdatedAt),
	}
}

func (row requesterRow) toRequester() requester.Requester {
	return requester.Requester{
		ID:           row.ID,
		Name:         row.Name,
		CPF:          row.CPF.String,
		Email:        row.Email.String,
		Phone:        row.Phone.String,
		Address:      row.Address.String,
		CityID:       row.CityID.Ptr(),
		Relationship: row.Relationship.String,
		BirthDate:    utcPtr(row.BirthDate),
		RequestType:  row.RequestType.String,
		Status:       requester.Status(row.Status),
		SchoolID:     row.SchoolID,
		CreatedAt:    utc(row.CreatedAt),
		UpdatedAt:    utc(row.UpdatedAt),
	}
}

const requesterSelect = `SELECT id, name, cpf, email, phone, address, city_id, relationship, birth_date,
	request_type, status, school_id, created_at, updated_at FROM requesters`

var requesterColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"status":     "status",
	"created_at": "created_at",
}

func (repo *requesterRepository) CheckRequesterUniqueness(ctx context.Context, schoolID int64, cpf string, excl ...requester.Requester) error {
	if cpf == "" {
		return nil
	}
	var c conds
	c.add("school_id = ?", schoolID)
	c.add("cpf = ?", cpf)
	ids := make([]int64, 0, len(excl))
	for _, r := range excl {
		ids = append(ids, r.ID)
	}
	if q, args := excludedIDs(ids); q != "" {
		c.add(q, args...)
	}
	q, args := selectQuery("SELECT count(*) FROM requesters", c, "", core.Page{})
	var n int
	if err := repo.db.GetContext(ctx, &n, q, args...); err != nil {
		return errors.Wrap(err, "checking requester uniqueness")
	}
	if n > 0 {
		return requester.ErrCPFExists
	}
	return nil
}

func (repo *requesterRepository) CreateRequester(ctx context.Context, r requester.Requester) (requester.Requester, error) {
	q := `INSERT INTO requesters (name, cpf, email, phone, address, city_id, relationship, birth_date,
		request_type, status, school_id, created_at, updated_at)
		VALUES (:name, :cpf, :email, :phone, :address, :city_id, :relationship, :birth_date,
		:request_type, :status, :school_id, :created_at, :updated_at) RETURNING id`
	id, err := insert(ctx, repo.db, q, toRequesterRow(r))
	if err != nil {
		if isUniqueViolation(err) {
			return requester.Requester{}, requester.ErrCPFExists
		}
		return requester.Requester{}, errors.Wrap(err, "inserting requester")
	}
	r.ID = id
	return r, nil
}

func (repo *requesterRepository) GetRequester(ctx context.Context, id int64, scope tenant.Scope) (requester.Requester, error) {
	var c conds
	c.add("id = ?", id)
	c.scope(scope, "school_id")
	q, args := selectQuery(requesterSelect, c, "", core.Page{})
	var row requesterRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return requester.Requester{}, trapNoRowsErr(err, requester.ErrNotFound, "finding requester")
	}
	return row.toRequester(), nil
}

func (repo *requesterRepository) QueryRequesters(ctx context.Context, filter requester.QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]requester.Requester, error) {
	var c conds
	c.scope(scope, "school_id")
	c.search(filter.Search, "name", "cpf", "email")
	if filter.Status != "" {
		c.add("status = ?", string(filter.Status))
	}
	orderBy := core.OrderByClause(ordering, requesterColumns, "name ASC, id ASC")
	q, args := selectQuery(requesterSelect, c, orderBy, page)
	var rows []requesterRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying requesters")
	}
	reqs := make([]requester.Requester, 0, len(rows))
	for _, row := range rows {
		reqs = append(reqs, row.toRequester())
	}
	return reqs, nil
}

func (repo *requesterRepository) UpdateRequester(ctx context.Context, r requester.Requester) (requester.Requester, error) {
	q := `UPDATE requesters SET name = :name, cpf = :cpf, email = :email, phone = :phone, address = :address,
		city_id = :city_id, relationship = :relationship, birth_date = :birth_date, request_type = :request_type,
		status = :status, updated_at = :updated_at WHERE id = :id`
	if err := updateOne(ctx, repo.db, q, toRequesterRow(r), requester.ErrNotFound); err != nil {
		if isUniqueViolation(err) {
			return requester.Requester{}, requester.ErrCPFExists
		}
		if err == requester.ErrNotFound {
			return requester.Requester{}, err
		}
		return requester.Requester{}, errors.Wrap(err, "updating requester")
	}
	return r, nil
}

func (repo *requesterRepository) DeleteRequester(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM requesters WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting requester")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return requester.ErrNotFound
	}
	return nil
}
