package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
)

type MinIOStore struct {
	client        *minio.Client
	bucketName    string
	region        string
	publicBaseURL string

	bucketMu    sync.Mutex
	bucketReady bool
}

func NewMinIOStore(client *minio.Client, bucket, region, publicBaseURL string) *MinIOStore {
	if strings.TrimSpace(region) == "" {
		region = "us-east-1"
	}
	return &MinIOStore{
		client:        client,
		bucketName:    bucket,
		region:        region,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// EnsureBucket creates the bucket when missing. Only success is remembered;
// a failed check is retried by the next caller.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketReady {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.bucketReady = true
	return nil
}

// Ping checks that the bucket is reachable.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}

func (s *MinIOStore) Upload(ctx context.Context, path string, body io.Reader, size int64, contentType string, opts UploadOptions) (UploadResult, error) {
	key := normalizeKey(path)
	if key == "" {
		return UploadResult{}, fmt.Errorf("path is required")
	}
	if err := s.EnsureBucket(ctx); err != nil {
		return UploadResult{}, fmt.Errorf("ensure bucket failed: %w", err)
	}

	if !opts.Overwrite {
		_, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{})
		if err == nil {
			return UploadResult{}, ErrObjectExists
		}
		if minio.ToErrorResponse(err).Code != "NoSuchKey" {
			return UploadResult{}, fmt.Errorf("stat object failed: %w", err)
		}
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := s.client.PutObject(ctx, s.bucketName, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return UploadResult{}, fmt.Errorf("put object failed: %w", err)
	}

	return UploadResult{Path: key, PublicURL: s.publicURL(key)}, nil
}

func (s *MinIOStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	key := normalizeKey(path)
	if _, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{}); err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "NoSuchKey" || code == "NoSuchBucket" {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object failed: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object failed: %w", err)
	}
	return obj, nil
}

func (s *MinIOStore) Delete(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucketName, normalizeKey(path), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object failed: %w", err)
	}
	return nil
}

func (s *MinIOStore) PathFromURL(url string) (string, bool) {
	prefix := s.publicBaseURL + "/" + s.bucketName + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

func (s *MinIOStore) publicURL(key string) string {
	return s.publicBaseURL + "/" + s.bucketName + "/" + key
}

func normalizeKey(path string) string {
	return strings.TrimLeft(strings.TrimSpace(path), "/")
}
