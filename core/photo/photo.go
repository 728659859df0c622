// Package photo keeps the portraits of users and dossiers in the file store.
// The owning row only records the key, see user.Service.SetPhoto and dossier.Service.SetPhoto.
package photo

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

// DefaultMaxSize is used when no limit is configured.
const DefaultMaxSize int64 = 2 << 20

// Owners
const (
	OwnerUser     = "users"
	OwnerDossier  = "dossiers"
	OwnerDirector = "directors"
)

var (
	AllowedExtensions = []string{".jpg", ".jpeg", ".png"}

	// errors
	ErrNotFound      = errors.New("photo not found")
	ErrExtNotAllowed = errors.New("photo must be a jpg, jpeg or png image")
	ErrTooLarge      = errors.New("photo is too large")
	ErrEmpty         = errors.New("photo is empty")
)

// Upload is an image about to become a photo.
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	Content     io.Reader
}

type Store struct {
	files   core.FileStore
	maxSize int64
	logger  core.Logger
}

func NewStore(files core.FileStore, maxSize int64, logger core.Logger) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Store{files: files, maxSize: maxSize, logger: logger}
}

// Key is where a new photo of owner id goes.
func Key(owner string, id int64, ext string) string {
	return core.FileKey(owner, id, ext, "photo")
}

// Put checks and stores up, returning its key. Errors on the upload itself are reported on the "photo" field.
func (s *Store) Put(ctx context.Context, owner string, id int64, up Upload) (string, error) {
	ext := strings.ToLower(filepath.Ext(up.Filename))
	allowed := false
	for _, e := range AllowedExtensions {
		allowed = allowed || e == ext
	}
	switch {
	case !allowed:
		return "", core.NewFieldValidationError("photo", ErrExtNotAllowed)
	case up.Size <= 0:
		return "", core.NewFieldValidationError("photo", ErrEmpty)
	case up.Size > s.maxSize:
		return "", core.NewFieldValidationError("photo", ErrTooLarge)
	}

	contentType := up.ContentType
	if !strings.HasPrefix(contentType, "image/") {
		contentType = mime.TypeByExtension(ext)
	}
	key := Key(owner, id, ext)
	if err := s.files.Put(ctx, key, io.LimitReader(up.Content, s.maxSize+1), contentType); err != nil {
		return "", pkgerrors.Wrap(err, "storing photo")
	}
	return key, nil
}

// Open returns the photo stored at key. The caller closes it.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	rc, err := s.files.Open(ctx, key)
	if err != nil {
		if pkgerrors.Cause(err) == core.ErrFileNotFound {
			return nil, ErrNotFound
		}
		return nil, pkgerrors.Wrap(err, "opening photo")
	}
	return rc, nil
}

// Discard removes the file at key once nothing points to it anymore. Failures are only logged.
func (s *Store) Discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.files.Delete(ctx, key); err != nil && pkgerrors.Cause(err) != core.ErrFileNotFound {
		s.logger.Warn("removing photo file", err, map[string]interface{}{"key": key})
	}
}

// ContentType guesses the media type of the photo stored at key.
func ContentType(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
