// internal/storage/minio_store.go
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fusion-sh/fusion/internal/config"
	"github.com/fusion-sh/fusion/internal/logging"
)

// ImageStore persists best-shot thumbnail bytes and returns a retrievable
// URL, addressed by a caller-chosen key (cameraExternalId/objectTrackId).
type ImageStore interface {
	SaveSnapshot(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// MinioStore is the S3-compatible backing for best-shot thumbnails (§domain
// stack: bestShot media, addressed by cameraExternalId/objectTrackId).
type MinioStore struct {
	client  *minio.Client
	bucket  string
	prefix  string
	baseURL *url.URL
	useSSL  bool
}

func NewMinioStoreFromEnv() (*MinioStore, error) {
	endpoint := config.Getenv("MINIO_ENDPOINT", "localhost:9000")
	accessKey := config.Getenv("MINIO_ACCESS_KEY", "")
	secretKey := config.Getenv("MINIO_SECRET_KEY", "")
	bucket := config.Getenv("MINIO_BUCKET", "fusion-bestshots")
	prefix := config.Getenv("MINIO_PREFIX", "")
	useSSL := config.GetenvBool("MINIO_USE_SSL", false)
	base := config.Getenv("MINIO_PUBLIC_BASE_URL", "")
	publicRead := config.GetenvBool("MINIO_PUBLIC_READ", false)

	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY / MINIO_SECRET_KEY not configured")
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		exists, existsErr := cli.BucketExists(ctx, bucket)
		if existsErr != nil || !exists {
			return nil, fmt.Errorf("create/verify bucket %s: %w", bucket, err)
		}
	}

	if publicRead {
		resource := fmt.Sprintf("arn:aws:s3:::%s/*", bucket)
		cleanPrefix := strings.Trim(prefix, "/")
		if cleanPrefix != "" {
			resource = fmt.Sprintf("arn:aws:s3:::%s/%s/*", bucket, cleanPrefix)
		}
		policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["%s"]}]}`, resource)
		if err := cli.SetBucketPolicy(ctx, bucket, policy); err != nil {
			return nil, fmt.Errorf("set bucket policy on %s: %w", bucket, err)
		}
	}

	var u *url.URL
	if base != "" {
		u, err = url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid MINIO_PUBLIC_BASE_URL: %w", err)
		}
	}

	logging.For("storage").WithField("endpoint", endpoint).WithField("bucket", bucket).
		Info("connected to best-shot object store")

	return &MinioStore{
		client:  cli,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		baseURL: u,
		useSSL:  useSSL,
	}, nil
}

func (s *MinioStore) SaveSnapshot(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}

	objectKey := joinObjectKey(s.prefix, key)

	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		objectKey,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", fmt.Errorf("put object to minio: %w", err)
	}

	if s.baseURL != nil {
		u := *s.baseURL
		if u.Path == "" || u.Path == "/" {
			u.Path = "/" + objectKey
		} else {
			u.Path = fmt.Sprintf("%s/%s", strings.TrimSuffix(u.Path, "/"), objectKey)
		}
		return u.String(), nil
	}

	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.client.EndpointURL().Host, s.bucket, objectKey), nil
}

func joinObjectKey(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimPrefix(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}
