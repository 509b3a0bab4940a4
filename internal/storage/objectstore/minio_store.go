package objectstore

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/tags"

	"github.com/animus-labs/freezer/internal/domain"
	platformstore "github.com/animus-labs/freezer/internal/platform/objectstore"
)

// MinioStore tags objects of a single bucket on any S3-compatible endpoint.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(cfg platformstore.Config) (*MinioStore, error) {
	client, err := platformstore.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func NewMinioStoreWithClient(client *minio.Client, bucket string) (*MinioStore, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func (s *MinioStore) Client() *minio.Client {
	return s.client
}

func (s *MinioStore) SetObjectTags(ctx context.Context, key string, tagSet domain.TagSet) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("minio store not initialized")
	}
	objectTags, err := tags.NewTags(tagSet.Clone(), true)
	if err != nil {
		return fmt.Errorf("build tags for %s: %w", key, err)
	}
	if err := s.client.PutObjectTagging(ctx, s.bucket, key, objectTags, minio.PutObjectTaggingOptions{}); err != nil {
		return fmt.Errorf("put object tagging %s: %w", key, err)
	}
	return nil
}

func (s *MinioStore) GetObjectTags(ctx context.Context, key string) (domain.TagSet, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("minio store not initialized")
	}
	objectTags, err := s.client.GetObjectTagging(ctx, s.bucket, key, minio.GetObjectTaggingOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object tagging %s: %w", key, err)
	}
	return domain.TagSet(objectTags.ToMap()), nil
}
