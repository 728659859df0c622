package core

import (
	"context"
	"errors"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var ErrFileNotFound = errors.New("file not found")

type (
	// StoredFile describes an object kept by a FileStore.
	StoredFile struct {
		Key          string
		Size         int64
		LastModified time.Time
	}

	// FileStore is any backend able to keep uploaded files and backup artifacts.
	FileStore interface {
		Put(ctx context.Context, key string, r io.Reader, contentType string) error
		Open(ctx context.Context, key string) (io.ReadCloser, error)
		Delete(ctx context.Context, key string) error
		List(ctx context.Context, prefix string) ([]StoredFile, error)
	}
)

// FileKey names a new object as <kind>/<id>/[<sub>/...]<uuid><ext>.
// Every call returns a different key, an upload never overwrites a previous file.
func FileKey(kind string, id int64, ext string, sub ...string) string {
	parts := append([]string{kind, strconv.FormatInt(id, 10)}, sub...)
	return path.Join(append(parts, uuid.New().String()+ext)...)
}
