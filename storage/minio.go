package storage

import (
	"context"
	"io"

	"github.com/Laisky/errors/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig configures the bucket backend.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIO stores attachments as objects in one bucket.
type MinIO struct {
	client *minio.Client
	bucket string
}

// NewMinIO connects to the endpoint and creates the bucket when missing.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio endpoint is empty")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new minio client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "check bucket %s", cfg.Bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrapf(err, "make bucket %s", cfg.Bucket)
		}
	}
	return &MinIO{client: client, bucket: cfg.Bucket}, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func isPreconditionFailed(err error) bool {
	return minio.ToErrorResponse(err).Code == "PreconditionFailed"
}

// createOnly makes the put fail when the object already exists.
func createOnly() minio.PutObjectOptions {
	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	opts.SetMatchETagExcept("*")
	return opts
}

// Exists stats the object.
func (m *MinIO) Exists(ctx context.Context, name string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, name, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "stat %s", name)
}

// Save streams r into the object with a conditional put, so an existing object is never replaced.
// MinIO only publishes an object once the upload completes.
func (m *MinIO) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	info, err := m.client.PutObject(ctx, m.bucket, name, r, -1, createOnly())
	if err != nil {
		if isPreconditionFailed(err) {
			return 0, errors.Wrap(ErrNameTaken, name)
		}
		return 0, errors.Wrapf(err, "put %s", name)
	}
	return info.Size, nil
}

// Open returns the object body.
func (m *MinIO) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if ok, err := m.Exists(ctx, name); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	obj, err := m.client.GetObject(ctx, m.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", name)
	}
	return obj, nil
}

// Remove deletes the object.
func (m *MinIO) Remove(ctx context.Context, name string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrapf(err, "remove %s", name)
	}
	return nil
}
