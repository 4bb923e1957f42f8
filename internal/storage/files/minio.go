package files

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore keeps uploads in a MinIO/S3 bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func (m *MinioStore) Save(ctx context.Context, userID int64, filename string, r io.Reader, size int64, contentType string) (string, error) {
	key := path.Join("form16", objectName(userID, filename))
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

// Materialize downloads the object into a temp file that release removes.
func (m *MinioStore) Materialize(ctx context.Context, location string) (string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "taxfiler-ocr-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp dir: %w", err)
	}
	release := func() { _ = os.RemoveAll(tmpDir) }
	local := tmpDir + string(os.PathSeparator) + path.Base(location)
	if err := m.client.FGetObject(ctx, m.bucket, location, local, minio.GetObjectOptions{}); err != nil {
		release()
		return "", func() {}, fmt.Errorf("get object: %w", err)
	}
	return local, release, nil
}

func (m *MinioStore) Remove(ctx context.Context, location string) error {
	if location == "" {
		return nil
	}
	if err := m.client.RemoveObject(ctx, m.bucket, location, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
