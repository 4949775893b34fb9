// Package storage provides the key/value persistence backends used by the
// record store. Values are opaque JSON documents addressed by logical key.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound indicates a requested key is missing.
var ErrNotFound = errors.New("key not found")

// Logical keys written by the record store.
const (
	KeyPracticeRecords = "practice_records"
	KeyUserStats       = "user_stats"
	KeyStorageVersion  = "storage_version"
	KeyBackups         = "manual_backups"
)

// Storage persists raw values by key.
type Storage interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove is a no-op for an absent key.
	Remove(ctx context.Context, key string) error
	Close() error
}

// Kind names a storage backend.
type Kind string

const (
	KindSQLite Kind = "sqlite"
	KindBolt   Kind = "bolt"
	KindMemory Kind = "memory"
)

// Open opens the backend of the given kind at path. The memory backend ignores path.
func Open(kind Kind, path string) (Storage, error) {
	switch kind {
	case KindSQLite, "":
		return NewSQLite(path)
	case KindBolt:
		return OpenBolt(path)
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage kind %q", kind)
	}
}
