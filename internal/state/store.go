package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/imamik/eksforge/internal/config"
	s3platform "github.com/imamik/eksforge/internal/platform/s3"
)

// Store loads and saves deployment records.
type Store interface {
	// Load returns the last saved record, or nil when nothing has been
	// saved yet.
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	// Location describes where the record lives, for messages.
	Location() string
}

// FileStore keeps the record in a local JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Location implements Store.
func (s *FileStore) Location() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) (*Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state %s: %w", s.path, err)
	}
	return decode(data)
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, rec *Record) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace state %s: %w", s.path, err)
	}
	return nil
}

// ObjectStore is the subset of the S3 client the store uses.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte) error
}

// S3Store keeps the record as one object in a versioned bucket.
type S3Store struct {
	objects ObjectStore
	bucket  string
	key     string

	once      sync.Once
	bucketErr error
}

// NewS3Store creates a store for bucket/key.
func NewS3Store(objects ObjectStore, bucket, key string) *S3Store {
	return &S3Store{objects: objects, bucket: bucket, key: key}
}

// Location implements Store.
func (s *S3Store) Location() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}

// Load implements Store.
func (s *S3Store) Load(ctx context.Context) (*Record, error) {
	data, err := s.objects.GetObject(ctx, s.bucket, s.key)
	if errors.Is(err, s3platform.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state %s: %w", s.Location(), err)
	}
	return decode(data)
}

// Save implements Store. The bucket is created on first save.
func (s *S3Store) Save(ctx context.Context, rec *Record) error {
	s.once.Do(func() {
		s.bucketErr = s.objects.EnsureBucket(ctx, s.bucket)
	})
	if s.bucketErr != nil {
		return fmt.Errorf("failed to prepare state bucket %s: %w", s.bucket, s.bucketErr)
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	if err := s.objects.PutObject(ctx, s.bucket, s.key, data); err != nil {
		return fmt.Errorf("failed to write state %s: %w", s.Location(), err)
	}
	return nil
}

// Open returns the store selected by cfg. env supplies the region and
// profile for the S3 backend.
func Open(ctx context.Context, cfg config.StateConfig, env config.Environment) (Store, error) {
	switch cfg.Backend {
	case config.StateBackendFile, "":
		path := cfg.Path
		if path == "" {
			path = config.DefaultStateFile
		}
		return NewFileStore(path), nil
	case config.StateBackendS3:
		region := cfg.Region
		if region == "" {
			region = env.Region
		}
		client, err := s3platform.NewClient(ctx, s3platform.Options{
			Region:    region,
			Profile:   env.Profile,
			Endpoint:  cfg.Endpoint,
			AccessKey: os.Getenv("EKSFORGE_STATE_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("EKSFORGE_STATE_SECRET_ACCESS_KEY"),
		})
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, cfg.Bucket, cfg.Key), nil
	default:
		return nil, config.NewConfigurationError("state.backend", "invalid backend %q", cfg.Backend)
	}
}
