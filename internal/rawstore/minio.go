package rawstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"data_pipeline/internal/domain"
)

// Config holds the object store connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store persists raw envelopes as JSON objects. Objects are write-once:
// each key is derived from a globally unique item id and never rewritten.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to raw store: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	logger.Info("connected to raw store", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// Key builds the raw store key for an item:
// raw/source={sourceId}/date={YYYY-MM-DD}/{itemId}
func Key(sourceID, ingestDate, itemID string) string {
	return fmt.Sprintf("raw/source=%s/date=%s/%s", sourceID, ingestDate, itemID)
}

func (s *Store) Put(ctx context.Context, key string, env domain.RawEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, wrapStoreError(err))
	}

	s.logger.Debug("stored raw envelope", "key", key)
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (domain.RawEnvelope, error) {
	var env domain.RawEnvelope

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return env, fmt.Errorf("get %s: %w", key, wrapStoreError(err))
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		return env, fmt.Errorf("get %s: %w", key, wrapStoreError(err))
	}

	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("decode envelope %s: %w", key, err)
	}

	return env, nil
}

// wrapStoreError maps object store failures onto the store's error taxonomy
// while keeping the underlying cause visible.
func wrapStoreError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%w: %s", ErrNotFound, resp.Code)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
