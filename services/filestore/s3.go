package filestore

import (
	"context"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

// S3Store keeps files in a bucket. Keys are object keys.
type S3Store struct {
	client   s3iface.S3API
	uploader *s3manager.Uploader
	bucket   string
}

var _ core.FileStore = (*S3Store)(nil) // interface compliance check

func NewS3Store(conf core.S3Config) (*S3Store, error) {
	if conf.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	awsConf := &aws.Config{
		Region:           aws.String(conf.Region),
		S3ForcePathStyle: aws.Bool(conf.ForcePathStyle),
	}
	if conf.Endpoint != "" {
		awsConf.Endpoint = aws.String(conf.Endpoint)
	}
	if conf.AccessKey != "" {
		awsConf.Credentials = credentials.NewStaticCredentials(conf.AccessKey, conf.SecretKey, "")
	}
	sess, err := session.NewSession(awsConf)
	if err != nil {
		return nil, errors.Wrap(err, "creating aws session")
	}
	return newS3Store(s3.New(sess), conf.Bucket), nil
}

func newS3Store(client s3iface.S3API, bucket string) *S3Store {
	return &S3Store{client: client, uploader: s3manager.NewUploaderWithClient(client), bucket: bucket}
}

func isNotFound(err error) bool {
	if aErr, ok := err.(awserr.Error); ok {
		switch aErr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	in := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.UploadWithContext(ctx, in); err != nil {
		return errors.Wrap(err, "uploading "+key)
	}
	return nil
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, core.ErrFileNotFound
		}
		return nil, errors.Wrap(err, "downloading "+key)
	}
	return out.Body, nil
}

// Delete checks the object exists first, S3 deletes are idempotent.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return core.ErrFileNotFound
		}
		return errors.Wrap(err, "finding "+key)
	}
	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrap(err, "deleting "+key)
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]core.StoredFile, error) {
	files := make([]core.StoredFile, 0)
	in := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket), Prefix: aws.String(prefix)}
	err := s.client.ListObjectsV2PagesWithContext(ctx, in, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			files = append(files, core.StoredFile{
				Key:          aws.StringValue(obj.Key),
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified).UTC(),
			})
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing "+prefix)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}

// New builds the store selected by conf.Backend.
func New(conf core.StorageConfig) (core.FileStore, error) {
	switch conf.Backend {
	case "", "local":
		return NewLocalStore(conf.MediaRoot)
	case "s3":
		return NewS3Store(conf.S3)
	}
	return nil, errors.Errorf("unknown storage backend %q", conf.Backend)
}
