package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/attachment"
)

type (
	attachmentRow struct {
		ID           int64      `db:"id"`
		DossierID    int64      `db:"dossier_id"`
		OriginalName string     `db:"original_name"`
		DisplayName  string     `db:"display_name"`
		StoredPath   string     `db:"stored_path"`
		Size         int64      `db:"size"`
		Extension    string     `db:"extension"`
		ContentType  string     `db:"content_type"`
		UploadedBy   null.Int64 `db:"uploaded_by"`
		UploadedAt   time.Time  `db:"uploaded_at"`
	}

	attachmentRepository struct {
		db *sqlx.DB
	}
)

var _ attachment.Repository = (*attachmentRepository)(nil) // interface compliance check

func NewAttachmentRepository(db *sqlx.DB) *attachmentRepository {
	return &attachmentRepository{db: db}
}

func (row attachmentRow) toAttachment() attachment.Attachment {
	return attachment.Attachment{
		ID:           row.ID,
		DossierID:    row.DossierID,
		OriginalName: row.OriginalName,
		DisplayName:  row.DisplayName,
		StoredPath:   row.StoredPath,
		Size:         row.Size,
		Extension:    row.Extension,
		ContentType:  row.ContentType,
		UploadedBy:   row.UploadedBy.Ptr(),
		UploadedAt:   utc(row.UploadedAt),
	}
}

const attachmentSelect = `SELECT id, dossier_id, original_name, display_name, stored_path, size, extension,
	content_type, uploaded_by, uploaded_at FROM attachments`

func (repo *attachmentRepository) CreateAttachment(ctx context.Context, a attachment.Attachment) (attachment.Attachment, error) {
	row := attachmentRow{
		DossierID:    a.DossierID,
		OriginalName: a.OriginalName,
		DisplayName:  a.DisplayName,
		StoredPath:   a.StoredPath,
		Size:         a.Size,
		Extension:    a.Extension,
		ContentType:  a.ContentType,
		UploadedBy:   null.Int64FromPtr(a.UploadedBy),
		UploadedAt:   utc(a.UploadedAt),
	}
	q := `INSERT INTO attachments (dossier_id, original_name, display_name, stored_path, size, extension,
		content_type, uploaded_by, uploaded_at)
		VALUES (:dossier_id, :original_name, :display_name, :stored_path, :size, :extension,
		:content_type, :uploaded_by, :uploaded_at) RETURNING id`
	id, err := insert(ctx, repo.db, q, row)
	if err != nil {
		return attachment.Attachment{}, errors.Wrap(err, "inserting attachment")
	}
	a.ID = id
	return a, nil
}

func (repo *attachmentRepository) GetAttachment(ctx context.Context, id int64) (attachment.Attachment, error) {
	var row attachmentRow
	if err := repo.db.GetContext(ctx, &row, attachmentSelect+" WHERE id = $1", id); err != nil {
		return attachment.Attachment{}, trapNoRowsErr(err, attachment.ErrNotFound, "finding attachment")
	}
	return row.toAttachment(), nil
}

func (repo *attachmentRepository) QueryAttachments(ctx context.Context, dossierID int64) ([]attachment.Attachment, error) {
	var rows []attachmentRow
	q := attachmentSelect + " WHERE dossier_id = $1 ORDER BY uploaded_at DESC, id DESC"
	if err := repo.db.SelectContext(ctx, &rows, q, dossierID); err != nil {
		return nil, errors.Wrap(err, "querying attachments")
	}
	atts := make([]attachment.Attachment, 0, len(rows))
	for _, row := range rows {
		atts = append(atts, row.toAttachment())
	}
	return atts, nil
}

func (repo *attachmentRepository) DeleteAttachment(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM attachments WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting attachment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attachment.ErrNotFound
	}
	return nil
}
