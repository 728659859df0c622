// Package attachment stores the files of a dossier.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

// DefaultMaxSize is used when no upload limit is configured.
const DefaultMaxSize int64 = 16 << 20

var (
	AllowedExtensions = []string{".pdf", ".jpg", ".jpeg", ".png", ".doc", ".docx"}

	// errors
	ErrNotFound         = errors.New("attachment not found")
	ErrExtNotAllowed    = errors.New("file type not allowed, use pdf, jpg, jpeg, png, doc or docx")
	ErrTooLarge         = errors.New("file is too large")
	ErrEmpty            = errors.New("file is empty")
	ErrMissingFilename  = errors.New("file name is required")
	ErrDownloadDisabled = errors.New("downloads are disabled")
)

type Attachment struct {
	ID           int64     `json:"id"`
	DossierID    int64     `json:"dossier_id"`
	OriginalName string    `json:"original_name"`
	DisplayName  string    `json:"display_name"`
	StoredPath   string    `json:"-"`
	Size         int64     `json:"size"`
	Extension    string    `json:"extension"`
	ContentType  string    `json:"content_type"`
	UploadedBy   *int64    `json:"uploaded_by"`
	UploadedAt   time.Time `json:"uploaded_at"` // UTC
}

// SizeLabel formats Size as B, KB or MB with one decimal.
func (a Attachment) SizeLabel() string {
	return SizeLabel(a.Size)
}

func SizeLabel(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	}
}

// Upload is a file about to be attached.
type Upload struct {
	DossierID    int64
	OriginalName string
	DisplayName  string
	Size         int64
	ContentType  string
	Content      io.Reader
}

// Extension returns the lowercased extension of name, dot included.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func ExtensionAllowed(ext string) bool {
	for _, e := range AllowedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// StorageKey is where the file of an attachment lives in the file store.
func StorageKey(dossierID int64, ext string) string {
	return core.FileKey("dossiers", dossierID, ext)
}

type (
	Repository interface {
		CreateAttachment(ctx context.Context, a Attachment) (Attachment, error)
		GetAttachment(ctx context.Context, id int64) (Attachment, error)
		QueryAttachments(ctx context.Context, dossierID int64) ([]Attachment, error)
		DeleteAttachment(ctx context.Context, id int64) error
	}

	Service struct {
		repo    Repository
		store   core.FileStore
		maxSize int64
		logger  core.Logger
	}
)

func NewService(repo Repository, store core.FileStore, maxSize int64, logger core.Logger) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Service{repo: repo, store: store, maxSize: maxSize, logger: logger}
}

func (svc *Service) MaxSize() int64 { return svc.maxSize }

// Upload checks, stores and records up. The stored file is removed if the row cannot be written.
func (svc *Service) Upload(ctx context.Context, uploadedBy int64, up Upload) (Attachment, error) {
	name := core.CleanString(filepath.Base(up.OriginalName))
	if name == "" || name == "." {
		return Attachment{}, core.NewFieldValidationError("file", ErrMissingFilename)
	}
	ext := Extension(name)
	if !ExtensionAllowed(ext) {
		return Attachment{}, core.NewFieldValidationError("file", ErrExtNotAllowed)
	}
	if up.Size <= 0 {
		return Attachment{}, core.NewFieldValidationError("file", ErrEmpty)
	}
	if up.Size > svc.maxSize {
		return Attachment{}, core.NewFieldValidationError("file", ErrTooLarge)
	}

	contentType := up.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			contentType = ct
		}
	}
	display := core.CleanString(up.DisplayName)
	if display == "" {
		display = strings.TrimSuffix(name, filepath.Ext(name))
	}

	key := StorageKey(up.DossierID, ext)
	// one extra byte tells a lying Size apart from a file of exactly maxSize
	if err := svc.store.Put(ctx, key, io.LimitReader(up.Content, svc.maxSize+1), contentType); err != nil {
		return Attachment{}, pkgerrors.Wrap(err, "storing file")
	}

	a := Attachment{
		DossierID:    up.DossierID,
		OriginalName: name,
		DisplayName:  display,
		StoredPath:   key,
		Size:         up.Size,
		Extension:    strings.TrimPrefix(ext, "."),
		ContentType:  contentType,
		UploadedBy:   &uploadedBy,
		UploadedAt:   core.Now(),
	}
	created, err := svc.repo.CreateAttachment(ctx, a)
	if err != nil {
		if dErr := svc.store.Delete(ctx, key); dErr != nil {
			svc.logger.Warn("removing orphan attachment file", dErr, map[string]interface{}{"key": key})
		}
		return Attachment{}, err
	}
	return created, nil
}

func (svc *Service) Get(ctx context.Context, id int64) (Attachment, error) {
	return svc.repo.GetAttachment(ctx, id)
}

func (svc *Service) Query(ctx context.Context, dossierID int64) ([]Attachment, error) {
	return svc.repo.QueryAttachments(ctx, dossierID)
}

// Open returns the content of a. The caller closes it.
func (svc *Service) Open(ctx context.Context, a Attachment) (io.ReadCloser, error) {
	rc, err := svc.store.Open(ctx, a.StoredPath)
	if err != nil {
		if pkgerrors.Cause(err) == core.ErrFileNotFound {
			return nil, ErrNotFound
		}
		return nil, pkgerrors.Wrap(err, "opening file")
	}
	return rc, nil
}

// Delete removes the row then the file. A missing file is not an error.
func (svc *Service) Delete(ctx context.Context, a Attachment) error {
	if err := svc.repo.DeleteAttachment(ctx, a.ID); err != nil {
		return err
	}
	if err := svc.store.Delete(ctx, a.StoredPath); err != nil && pkgerrors.Cause(err) != core.ErrFileNotFound {
		svc.logger.Warn("removing attachment file", err, map[string]interface{}{"key": a.StoredPath})
	}
	return nil
}

// DeleteAll removes every attachment of a dossier, before the dossier itself goes away.
func (svc *Service) DeleteAll(ctx context.Context, dossierID int64) error {
	atts, err := svc.repo.QueryAttachments(ctx, dossierID)
	if err != nil {
		return err
	}
	for _, a := range atts {
		if err := svc.Delete(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
