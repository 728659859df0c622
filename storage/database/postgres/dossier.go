package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

type (
	dossierRow struct {
		ID           int64       `db:"id"`
		Number       string      `db:"number"`
		Year         int         `db:"year"`
		Name         string      `db:"name"`
		CPF          null.String `db:"cpf"`
		FatherName   null.String `db:"father_name"`
		MotherName   null.String `db:"mother_name"`
		Location     null.String `db:"location"`
		Folder       null.String `db:"folder"`
		Status       string      `db:"status"`
		DocumentType null.String `db:"document_type"`
		Notes        null.String `db:"notes"`
		Photo        null.String `db:"photo"`
		SchoolID     int64       `db:"school_id"`
		CreatedBy    null.Int64  `db:"created_by"`
		ArchivedAt   null.Time   `db:"archived_at"`
		CreatedAt    time.Time   `db:"created_at"`
		UpdatedAt    time.Time   `db:"updated_at"`
	}

	dossierRepository struct {
		db *sqlx.DB
	}
)

var _ dossier.Repository = (*dossierRepository)(nil) // interface compliance check

func NewDossierRepository(db *sqlx.DB) *dossierRepository {
	return &dossierRepository{db: db}
}

func toDossierRow(d dossier.Dossier) dossierRow {
	return dossierRow{
		ID:           d.ID,
		Number:       d.Number,
		Year:         d.Year,
		Name:         d.Name,
		CPF:          nullString(d.CPF),
		FatherName:   nullString(d.FatherName),
		MotherName:   nullString(d.MotherName),
		Location:     nullString(d.Location),
		Folder:       nullString(d.Folder),
		Status:       string(d.Status),
		DocumentType: nullString(d.DocumentType),
		Notes:        nullString(d.Notes),
		Photo:        nullString(d.Photo),
		SchoolID:     d.SchoolID,
		CreatedBy:    null.Int64FromPtr(d.CreatedBy),
		ArchivedAt:   nullTime(d.ArchivedAt),
		CreatedAt:    utc(d.CreatedAt),
		UpdatedAt:    utc(d.UpdatedAt),
	}
}

func (row dossierRow) toDossier() dossier.Dossier {
	return dossier.Dossier{
		ID:           row.ID,
		Number:       row.Number,
		Year:         row.Year,
		Name:         row.Name,
		CPF:          row.CPF.String,
		FatherName:   row.FatherName.String,
		MotherName:   row.MotherName.String,
		Location:     row.Location.String,
		Folder:       row.Folder.String,
		Status:       dossier.Status(row.Status),
		DocumentType: row.DocumentType.String,
		Notes:        row.Notes.String,
		Photo:        row.Photo.String,
		SchoolID:     row.SchoolID,
		CreatedBy:    row.CreatedBy.Ptr(),
		ArchivedAt:   utcPtr(row.ArchivedAt),
		CreatedAt:    utc(row.CreatedAt),
		UpdatedAt:    utc(row.UpdatedAt),
	}
}

const dossierSelect = `SELECT id, number, year, name, cpf, father_name, mother_name, location, folder, status,
	document_type, notes, photo, school_id, created_by, archived_at, created_at, updated_at FROM dossiers`

var dossierColumns = map[string]string{
	"id":         "id",
	"number":     "number",
	"name":       "name",
	"year":       "year",
	"status":     "status",
	"created_at": "created_at",
}

func (repo *dossierRepository) CheckDossierUniqueness(ctx context.Context, schoolID int64, number, cpf string, year int, excl ...dossier.Dossier) error {
	ids := make([]int64, 0, len(excl))
	for _, d := range excl {
		ids = append(ids, d.ID)
	}
	count := func(c conds) (int, error) {
		c.add("school_id = ?", schoolID)
		if q, args := excludedIDs(ids); q != "" {
			c.add(q, args...)
		}
		q, args := selectQuery("SELECT count(*) FROM dossiers", c, "", core.Page{})
		var n int
		err := repo.db.GetContext(ctx, &n, q, args...)
		return n, errors.Wrap(err, "checking dossier uniqueness")
	}

	var byNumber conds
	byNumber.add("number = ?", number)
	n, err := count(byNumber)
	if err != nil {
		return err
	}
	if n > 0 {
		return dossier.ErrNumberExists
	}

	if cpf == "" {
		return nil
	}
	var byCPF conds
	byCPF.add("cpf = ?", cpf)
	byCPF.add("year = ?", year)
	if n, err = count(byCPF); err != nil {
		return err
	}
	if n > 0 {
		return dossier.ErrCPFYearExists
	}
	return nil
}

func uniqueDossierErr(err error) error {
	switch {
	case isUniqueViolation(err, "dossiers_school_number_key"):
		return dossier.ErrNumberExists
	case isUniqueViolation(err, "dossiers_school_cpf_year_key"):
		return dossier.ErrCPFYearExists
	}
	return nil
}

func (repo *dossierRepository) CreateDossier(ctx context.Context, d dossier.Dossier) (dossier.Dossier, error) {
	q := `INSERT INTO dossiers (number, year, name, cpf, father_name, mother_name, location, folder, status,
		document_type, notes, photo, school_id, created_by, archived_at, created_at, updated_at)
		VALUES (:number, :year, :name, :cpf, :father_name, :mother_name, :location, :folder, :status,
		:document_type, :notes, :photo, :school_id, :created_by, :archived_at, :created_at, :updated_at) RETURNING id`
	id, err := insert(ctx, repo.db, q, toDossierRow(d))
	if err != nil {
		if uErr := uniqueDossierErr(err); uErr != nil {
			return dossier.Dossier{}, uErr
		}
		return dossier.Dossier{}, errors.Wrap(err, "inserting dossier")
	}
	d.ID = id
	return d, nil
}

func (repo *dossierRepository) GetDossier(ctx context.Context, id int64, scope tenant.Scope) (dossier.Dossier, error) {
	var c conds
	c.add("id = ?", id)
	c.scope(scope, "school_id")
	q, args := selectQuery(dossierSelect, c, "", core.Page{})
	var row dossierRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return dossier.Dossier{}, trapNoRowsErr(err, dossier.ErrNotFound, "finding dossier")
	}
	return row.toDossier(), nil
}

func (repo *dossierRepository) QueryDossiers(ctx context.Context, filter dossier.QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]dossier.Dossier, error) {
	var c conds
	c.scope(scope, "school_id")
	c.search(filter.Search, "name", "number", "cpf", "father_name", "mother_name")
	if filter.Status != "" {
		c.add("status = ?", string(filter.Status))
	}
	if filter.Year != 0 {
		c.add("year = ?", filter.Year)
	}
	if filter.DocumentType != "" {
		c.add("document_type = ?", filter.DocumentType)
	}

	orderBy := core.OrderByClause(ordering, dossierColumns, "created_at DESC, id DESC")
	q, args := selectQuery(dossierSelect, c, orderBy, page)
	var rows []dossierRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying dossiers")
	}
	dossiers := make([]dossier.Dossier, 0, len(rows))
	for _, row := range rows {
		dossiers = append(dossiers, row.toDossier())
	}
	return dossiers, nil
}

func (repo *dossierRepository) UpdateDossier(ctx context.Context, d dossier.Dossier) (dossier.Dossier, error) {
	q := `UPDATE dossiers SET number = :number, year = :year, name = :name, cpf = :cpf, father_name = :father_name,
		mother_name = :mother_name, location = :location, folder = :folder, status = :status,
		document_type = :document_type, notes = :notes, photo = :photo, archived_at = :archived_at,
		updated_at = :updated_at WHERE id = :id`
	if err := updateOne(ctx, repo.db, q, toDossierRow(d), dossier.ErrNotFound); err != nil {
		if uErr := uniqueDossierErr(err); uErr != nil {
			return dossier.Dossier{}, uErr
		}
		if err == dossier.ErrNotFound {
			return dossier.Dossier{}, err
		}
		return dossier.Dossier{}, errors.Wrap(err, "updating dossier")
	}
	return d, nil
}

func (repo *dossierRepository) DeleteDossier(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM dossiers WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting dossier")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dossier.ErrNotFound
	}
	return nil
}

func (repo *dossierRepository) CountDossiersByStatus(ctx context.Context, scope tenant.Scope) (map[dossier.Status]int, error) {
	var c conds
	c.scope(scope, "school_id")
	q, args := selectQuery("SELECT status, count(*) AS n FROM dossiers", c, "", core.Page{})
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := repo.db.SelectContext(ctx, &rows, q+" GROUP BY status", args...); err != nil {
		return nil, errors.Wrap(err, "counting dossiers")
	}
	counts := make(map[dossier.Status]int, len(rows))
	for _, row := range rows {
		counts[dossier.Status(row.Status)] = row.N
	}
	return counts, nil
}
