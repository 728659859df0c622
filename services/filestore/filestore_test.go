package filestore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "dossiers/1/a.pdf", strings.NewReader("pdf"), "application/pdf"))
	require.NoError(t, store.Put(ctx, "dossiers/2/b.jpg", strings.NewReader("jpeg!"), "image/jpeg"))
	require.NoError(t, store.Put(ctx, "backups/x.sql.gz", strings.NewReader("gz"), ""))

	f, err := store.Open(ctx, "dossiers/1/a.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	_ = f.Close()
	assert.Equal(t, "pdf", string(data))

	files, err := store.List(ctx, "dossiers/")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "dossiers/1/a.pdf", files[0].Key)
	assert.Equal(t, int64(5), files[1].Size)

	require.NoError(t, store.Delete(ctx, "dossiers/1/a.pdf"))
	_, err = store.Open(ctx, "dossiers/1/a.pdf")
	assert.Equal(t, core.ErrFileNotFound, err)
	assert.Equal(t, core.ErrFileNotFound, store.Delete(ctx, "dossiers/1/a.pdf"))

	for _, key := range []string{"", "/", "../etc/passwd", "a/../../b"} {
		assert.Equal(t, errInvalidKey, store.Put(ctx, key, strings.NewReader("x"), ""), key)
	}
}

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
}

func (f *fakeS3) notFound() error { return awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil) }

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, f.notFound()
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.StringValue(in.Key)]; !ok {
		return nil, awserr.New("NotFound", "not found", nil)
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	page := &s3.ListObjectsV2Output{}
	now := time.Now()
	for key, data := range f.objects {
		if strings.HasPrefix(key, aws.StringValue(in.Prefix)) {
			page.Contents = append(page.Contents, &s3.Object{Key: aws.String(key), Size: aws.Int64(int64(len(data))), LastModified: &now})
		}
	}
	fn(page, true)
	return nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	client := &fakeS3{objects: map[string][]byte{
		"backups/2024/05/01/b.sql.gz": []byte("1"),
		"backups/2024/04/30/a.sql.gz": []byte("22"),
		"media/x.pdf":                 []byte("333"),
	}}
	store := newS3Store(client, "bucket")

	files, err := store.List(ctx, "backups/")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "backups/2024/04/30/a.sql.gz", files[0].Key)
	assert.Equal(t, int64(2), files[0].Size)

	r, err := store.Open(ctx, "media/x.pdf")
	require.NoError(t, err)
	data, _ := io.ReadAll(r)
	assert.Equal(t, "333", string(data))

	_, err = store.Open(ctx, "media/nope.pdf")
	assert.Equal(t, core.ErrFileNotFound, err)

	require.NoError(t, store.Delete(ctx, "media/x.pdf"))
	assert.Equal(t, core.ErrFileNotFound, store.Delete(ctx, "media/x.pdf"))
}

func TestNew(t *testing.T) {
	_, err := New(core.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)

	store, err := New(core.StorageConfig{Backend: "local", MediaRoot: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)
}
