package adapter

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Storage is durable key-value storage for the conversation archive blob.
// Get returns nil data without error when the key does not exist.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// CloudStorage implements Storage with one Cloud Storage object per key
type CloudStorage struct {
	bucketName string
	prefix     string
	client     *storage.Client
}

type CloudStorageOption func(*CloudStorage)

// WithObjectPrefix prepends prefix to every object name
func WithObjectPrefix(prefix string) CloudStorageOption {
	return func(s *CloudStorage) {
		s.prefix = prefix
	}
}

// NewCloudStorage creates a new Cloud Storage client
func NewCloudStorage(ctx context.Context, bucketName string, opts ...CloudStorageOption) (*CloudStorage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	s := &CloudStorage{
		bucketName: bucketName,
		client:     client,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *CloudStorage) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucketName).Object(s.prefix + key)
}

func (s *CloudStorage) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to read from storage", goerr.V("key", key))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read object data", goerr.V("key", key))
	}
	return data, nil
}

func (s *CloudStorage) Put(ctx context.Context, key string, data []byte) error {
	writer := s.object(key).NewWriter(ctx)
	writer.ContentType = "application/json"

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return goerr.Wrap(err, "failed to write to storage", goerr.V("key", key))
	}

	// the object is committed on Close
	if err := writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage writer", goerr.V("key", key))
	}
	return nil
}

func (s *CloudStorage) Close() error {
	return s.client.Close()
}
