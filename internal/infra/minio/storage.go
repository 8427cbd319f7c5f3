package minio

import (
	"context"
	"fmt"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Storage struct {
	client      *miniogo.Client
	mediaBucket string
}

type StorageConfig struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	UseSSL      bool
	MediaBucket string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client:      client,
		mediaBucket: cfg.MediaBucket,
	}, nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.mediaBucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.mediaBucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.mediaBucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.mediaBucket, err)
		}
	}
	return nil
}

// MediaSize returns the stored size of an upload without downloading it.
func (s *Storage) MediaSize(ctx context.Context, objectKey string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.mediaBucket, objectKey, miniogo.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("stat media %s: %w", objectKey, err)
	}
	return info.Size, nil
}

func (s *Storage) DownloadMedia(ctx context.Context, objectKey string, destPath string) error {
	if err := s.client.FGetObject(ctx, s.mediaBucket, objectKey, destPath, miniogo.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download media %s: %w", objectKey, err)
	}
	return nil
}
