package inmemdb

import (
	"context"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/attachment"
)

type attachmentRepository struct {
	db *DB
}

var _ attachment.Repository = (*attachmentRepository)(nil) // interface compliance check

func NewAttachmentRepository(db *DB) *attachmentRepository {
	return &attachmentRepository{db: db}
}

func (repo *attachmentRepository) CreateAttachment(_ context.Context, a attachment.Attachment) (attachment.Attachment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.dossiers[a.DossierID]; !ok {
		return attachment.Attachment{}, attachment.ErrNotFound
	}
	a.ID = repo.db.nextPK()
	repo.db.attachments[a.ID] = &a
	return a, nil
}

func (repo *attachmentRepository) GetAttachment(_ context.Context, id int64) (attachment.Attachment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.attachments[id]; ok {
		return *a, nil
	}
	return attachment.Attachment{}, attachment.ErrNotFound
}

var attachmentComparers = comparers[attachment.Attachment]{
	"id":          byID(func(a attachment.Attachment) int64 { return a.ID }),
	"uploaded_at": func(a, b attachment.Attachment) int { return cmpTime(a.UploadedAt, b.UploadedAt) },
}

func (repo *attachmentRepository) QueryAttachments(_ context.Context, dossierID int64) ([]attachment.Attachment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	atts := make([]attachment.Attachment, 0)
	for _, a := range repo.db.attachments {
		if a.DossierID == dossierID {
			atts = append(atts, *a)
		}
	}
	sortRows(atts, nil, attachmentComparers, desc("uploaded_at"), desc("id"))
	return atts, nil
}

func (repo *attachmentRepository) DeleteAttachment(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.attachments[id]; !ok {
		return attachment.ErrNotFound
	}
	delete(repo.db.attachments, id)
	return nil
}
