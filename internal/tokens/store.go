// Package tokens persists the client credential pair in durable client
// storage. Every backend stores the two values under the keys
// "access_token" and "refresh_token" and clears them together.
package tokens

import (
	"context"
	"fmt"
	"sync"

	"github.com/sceneboard/internal/config"
)

const (
	AccessKey  = "access_token"
	RefreshKey = "refresh_token"
)

// Store is durable key/value storage for the credential pair. Get returns
// an empty string for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Open builds the backend selected by cfg.Type.
func Open(cfg config.TokensConfig) (Store, error) {
	switch cfg.Type {
	case "", "file":
		return NewFileStore(cfg.File.Path), nil
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.DSN())
	case "redis":
		return NewRedisStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown token store type %q", cfg.Type)
	}
}

// MemoryStore keeps tokens in process memory only.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *MemoryStore) Set(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
