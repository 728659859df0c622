package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/movement"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

type (
	movementRow struct {
		ID                  int64       `db:"id"`
		DossierID           int64       `db:"dossier_id"`
		Kind                string      `db:"kind"`
		Status              string      `db:"status"`
		UserID              int64       `db:"user_id"`
		RequesterID         null.Int64  `db:"requester_id"`
		RequesterName       null.String `db:"requester_name"`
		RequesterDocument   null.String `db:"requester_document"`
		RequesterPhone      null.String `db:"requester_phone"`
		OriginSchoolID      int64       `db:"origin_school_id"`
		DestinationSchoolID null.Int64  `db:"destination_school_id"`
		Reason              null.String `db:"reason"`
		Notes               null.String `db:"notes"`
		OccurredAt          time.Time   `db:"occurred_at"`
		ExpectedReturnAt    null.Time   `db:"expected_return_at"`
		ReturnedAt          null.Time   `db:"returned_at"`
		ConcludedAt         null.Time   `db:"concluded_at"`
		SchoolID            int64       `db:"school_id"`
		CreatedAt           time.Time   `db:"created_at"`
		UpdatedAt           time.Time   `db:"updated_at"`
	}

	movementRepository struct {
		db *sqlx.DB
	}
)

var _ movement.Repository = (*movementRepository)(nil) // interface compliance check

func NewMovementRepository(db *sqlx.DB) *movementRepository {
	return &movementRepository{db: db}
}

func toMovementRow(m movement.Movement) movementRow {
	return movementRow{
		ID:                  m.ID,
		DossierID:           m.DossierID,
		Kind:                string(m.Kind),
		Status:              string(m.Status),
		UserID:              m.UserID,
		RequesterID:         null.Int64FromPtr(m.RequesterID),
		RequesterName:       nullString(m.RequesterName),
		RequesterDocument:   nullString(m.RequesterDocument),
		RequesterPhone:      nullString(m.RequesterPhone),
		OriginSchoolID:      m.OriginSchoolID,
		DestinationSchoolID: null.Int64FromPtr(m.DestinationSchoolID),
		Reason:              nullString(m.Reason),
		Notes:               nullString(m.Notes),
		OccurredAt:          utc(m.OccurredAt),
		ExpectedReturnAt:    nullTime(m.ExpectedReturnAt),
		ReturnedAt:          nullTime(m.ReturnedAt),
		ConcludedAt:         nullTime(m.ConcludedAt),
		SchoolID:            m.SchoolID,
		CreatedAt:           utc(m.CreatedAt),
		UpdatedAt:           utc(m.UpdatedAt),
	}
}

func (row movementRow) toMovement() movement.Movement {
	return movement.Movement{
		ID:                  row.ID,
		DossierID:           row.DossierID,
		Kind:                movement.Kind(row.Kind),
		Status:              movement.Status(row.Status),
		UserID:              row.UserID,
		RequesterID:         row.RequesterID.Ptr(),
		RequesterName:       row.RequesterName.String,
		RequesterDocument:   row.RequesterDocument.String,
		RequesterPhone:      row.RequesterPhone.String,
		OriginSchoolID:      row.OriginSchoolID,
		DestinationSchoolID: row.DestinationSchoolID.Ptr(),
		Reason:              row.Reason.String,
		Notes:               row.Notes.String,
		OccurredAt:          utc(row.OccurredAt),
		ExpectedReturnAt:    utcPtr(row.ExpectedReturnAt),
		ReturnedAt:          utcPtr(row.ReturnedAt),
		ConcludedAt:         utcPtr(row.ConcludedAt),
		SchoolID:            row.SchoolID,
		CreatedAt:           utc(row.CreatedAt),
		UpdatedAt:           utc(row.UpdatedAt),
	}
}

const movementSelect = `SELECT id, dossier_id, kind, status, user_id, requester_id, requester_name,
	requester_document, requester_phone, origin_school_id, destination_school_id, reason, notes, occurred_at,
	expected_return_at, returned_at, concluded_at, school_id, created_at, updated_at FROM movements`

var movementColumns = map[string]string{
	"id":                 "id",
	"kind":               "kind",
	"status":             "status",
	"occurred_at":        "occurred_at",
	"expected_return_at": "expected_return_at",
	"created_at":         "created_at",
}

func (repo *movementRepository) CreateMovement(ctx context.Context, m movement.Movement) (movement.Movement, error) {
	q := `INSERT INTO movements (dossier_id, kind, status, user_id, requester_id, requester_name,
		requester_document, requester_phone, origin_school_id, destination_school_id, reason, notes, occurred_at,
		expected_return_at, returned_at, concluded_at, school_id, created_at, updated_at)
		VALUES (:dossier_id, :kind, :status, :user_id, :requester_id, :requester_name,
		:requester_document, :requester_phone, :origin_school_id, :destination_school_id, :reason, :notes, :occurred_at,
		:expected_return_at, :returned_at, :concluded_at, :school_id, :created_at, :updated_at) RETURNING id`
	id, err := insert(ctx, repo.db, q, toMovementRow(m))
	if err != nil {
		return movement.Movement{}, errors.Wrap(err, "inserting movement")
	}
	m.ID = id
	return m, nil
}

func (repo *movementRepository) GetMovement(ctx context.Context, id int64, scope tenant.Scope) (movement.Movement, error) {
	var c conds
	c.add("id = ?", id)
	c.scope(scope, "school_id")
	q, args := selectQuery(movementSelect, c, "", core.Page{})
	var row movementRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return movement.Movement{}, trapNoRowsErr(err, movement.ErrNotFound, "finding movement")
	}
	return row.toMovement(), nil
}

func (repo *movementRepository) QueryMovements(ctx context.Context, filter movement.QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]movement.Movement, error) {
	var c conds
	c.scope(scope, "school_id")
	c.search(filter.Search, "requester_name", "requester_document", "reason")
	if filter.DossierID != 0 {
		c.add("dossier_id = ?", filter.DossierID)
	}
	if filter.Kind != "" {
		c.add("kind = ?", string(filter.Kind))
	}
	if filter.Status != "" {
		c.add("status = ?", string(filter.Status))
	}
	if !filter.OverdueAt.IsZero() {
		c.add("status = ?", string(movement.StatusPending))
		c.add("returned_at IS NULL")
		c.add("expected_return_at < ?", filter.OverdueAt.UTC())
	}

	orderBy := core.OrderByClause(ordering, movementColumns, "occurred_at DESC, id DESC")
	q, args := selectQuery(movementSelect, c, orderBy, page)
	var rows []movementRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying movements")
	}
	movs := make([]movement.Movement, 0, len(rows))
	for _, row := range rows {
		movs = append(movs, row.toMovement())
	}
	return movs, nil
}

func (repo *movementRepository) UpdateMovement(ctx context.Context, m movement.Movement) (movement.Movement, error) {
	q := `UPDATE movements SET status = :status, requester_id = :requester_id, requester_name = :requester_name,
		requester_document = :requester_document, requester_phone = :requester_phone,
		destination_school_id = :destination_school_id, reason = :reason, notes = :notes,
		expected_return_at = :expected_return_at, returned_at = :returned_at, concluded_at = :concluded_at,
		updated_at = :updated_at WHERE id = :id`
	if err := updateOne(ctx, repo.db, q, toMovementRow(m), movement.ErrNotFound); err != nil {
		if err == movement.ErrNotFound {
			return movement.Movement{}, err
		}
		return movement.Movement{}, errors.Wrap(err, "updating movement")
	}
	return m, nil
}

func (repo *movementRepository) DeleteMovement(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM movements WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting movement")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return movement.ErrNotFound
	}
	return nil
}

func (repo *movementRepository) CountMovementsByStatus(ctx context.Context, scope tenant.Scope) (map[movement.Status]int, error) {
	var c conds
	c.scope(scope, "school_id")
	q, args := selectQuery("SELECT status, count(*) AS n FROM movements", c, "", core.Page{})
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := repo.db.SelectContext(ctx, &rows, q+" GROUP BY status", args...); err != nil {
		return nil, errors.Wrap(err, "counting movements")
	}
	counts := make(map[movement.Status]int, len(rows))
	for _, row := range rows {
		counts[movement.Status(row.Status)] = row.N
	}
	return counts, nil
}
