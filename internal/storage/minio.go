package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PresignExpiry is how long artifact download links stay valid.
const PresignExpiry = 24 * time.Hour

// MinIOConfig holds object storage connection settings
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Artifact is one uploaded object.
type Artifact struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}

// ArtifactStore uploads translation outputs to a MinIO bucket.
type ArtifactStore struct {
	client *minio.Client
	bucket string
}

// NewArtifactStore connects to MinIO and creates the bucket if needed.
func NewArtifactStore(ctx context.Context, cfg MinIOConfig) (*ArtifactStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("MinIO endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("MinIO bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	store := &ArtifactStore{client: client, bucket: cfg.Bucket}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (s *ArtifactStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put uploads data under key and returns it with a presigned download URL.
func (s *ArtifactStore) Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	url, err := s.PresignedURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		URL:         url,
	}, nil
}

// PresignedURL generates a time-limited download link for key.
func (s *ArtifactStore) PresignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, strings.TrimPrefix(key, s.bucket+"/"), PresignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}

// RemoveJob deletes every artifact stored for jobID.
func (s *ArtifactStore) RemoveJob(ctx context.Context, jobID string) error {
	prefix := jobPrefix(jobID)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("failed to list %s: %w", prefix, obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove %s: %w", obj.Key, err)
		}
	}
	return nil
}

// Bucket returns the bucket name.
func (s *ArtifactStore) Bucket() string {
	return s.bucket
}

// Object layout: {jobID}/translated_page_N.png, {jobID}/translated_page_N.txt
// and {jobID}/translated_document.pdf, with N 1-based. An empty job ID
// gives bare file names.

func jobPrefix(jobID string) string {
	if jobID == "" {
		return ""
	}
	return jobID + "/"
}

// PageImageKey names the translated image of a 1-based page.
func PageImageKey(jobID string, page int) string {
	return fmt.Sprintf("%stranslated_page_%d.png", jobPrefix(jobID), page)
}

// PageTextKey names the translated text of a 1-based page.
func PageTextKey(jobID string, page int) string {
	return fmt.Sprintf("%stranslated_page_%d.txt", jobPrefix(jobID), page)
}

// DocumentKey names the combined PDF of a job.
func DocumentKey(jobID string) string {
	return jobPrefix(jobID) + "translated_document.pdf"
}
