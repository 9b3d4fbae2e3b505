package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sceneboard/internal/config"
)

var ErrNotFound = errors.New("object not found")

// Blobs stores uploaded media by key.
type Blobs interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// New builds the backend selected by cfg.Type ("local", "minio" or "memory").
func New(ctx context.Context, cfg config.StorageConfig) (Blobs, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocal(cfg.Local.RootPath)
	case "minio":
		return NewMinIO(ctx, cfg.MinIO)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// ========================================
// MinIO
// ========================================

type MinIOService struct {
	client *minio.Client
	bucket string
}

func NewMinIO(ctx context.Context, cfg config.MinIOConfig) (*MinIOService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &MinIOService{client: client, bucket: cfg.BucketName}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinIOService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}

	return nil
}

func (s *MinIOService) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, normalizePath(key), r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (s *MinIOService) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey := normalizePath(key)
	if _, err := s.client.StatObject(ctx, s.bucket, objectKey, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

func (s *MinIOService) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, normalizePath(key), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// ========================================
// Local directory
// ========================================

type LocalService struct {
	root string
}

func NewLocal(root string) (*LocalService, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalService{root: root}, nil
}

func (s *LocalService) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	target := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("put object: %w", err)
	}
	return f.Close()
}

func (s *LocalService) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.resolve(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return f, nil
}

func (s *LocalService) Delete(_ context.Context, key string) error {
	err := os.Remove(s.resolve(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *LocalService) resolve(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(normalizePath(key)))
}

// ========================================
// Memory
// ========================================

type MemoryService struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *MemoryService {
	return &MemoryService{objects: make(map[string][]byte)}
}

func (s *MemoryService) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	s.mu.Lock()
	s.objects[normalizePath(key)] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryService) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.objects[normalizePath(key)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryService) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, normalizePath(key))
	s.mu.Unlock()
	return nil
}

// Len reports how many objects are stored.
func (s *MemoryService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// normalizePath cleans key and keeps it relative, so "../x" cannot escape
// the bucket or root.
func normalizePath(p string) string {
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	return p
}
