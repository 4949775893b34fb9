// Package store persists practice records, maintains the derived UserStats
// aggregate, and handles backups, import/export and schema migration.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/storage"
)

const (
	// CurrentVersion is the schema version written with every record.
	CurrentVersion = "1.0.0"

	DefaultMaxRecords = 1000
	DefaultMaxBackups = 20
)

// Store is the practice record store. Mutating calls are serialized within
// one Store; separate processes sharing a backend are last-write-wins.
type Store struct {
	mu         sync.Mutex
	backend    storage.Storage
	maxRecords int
	maxBackups int
	version    string
	migrations []Migration
	now        func() time.Time
	loc        *time.Location
	newID      func() string
	lastErr    error
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRecords caps the record collection.
func WithMaxRecords(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRecords = n
		}
	}
}

// WithMaxBackups caps the number of retained backups.
func WithMaxBackups(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBackups = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the location used to derive calendar days.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithVersion overrides the schema version the store migrates to.
func WithVersion(v string) Option {
	return func(s *Store) { s.version = v }
}

// WithMigrations replaces the ordered migration steps.
func WithMigrations(steps []Migration) Option {
	return func(s *Store) { s.migrations = steps }
}

// New opens a record store over backend, migrating persisted data to the
// current schema version and creating empty structures where missing.
func New(ctx context.Context, backend storage.Storage, opts ...Option) (*Store, error) {
	s := &Store{
		backend:    backend,
		maxRecords: DefaultMaxRecords,
		maxBackups: DefaultMaxBackups,
		version:    CurrentVersion,
		migrations: defaultMigrations(),
		now:        time.Now,
		loc:        time.Local,
		newID: func() string {
			return "record_" + uuid.NewString()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.checkVersion(ctx); err != nil {
		return nil, fmt.Errorf("check storage version: %w", err)
	}
	if err := s.initDataStructures(ctx); err != nil {
		return nil, fmt.Errorf("init data structures: %w", err)
	}
	return s, nil
}

// Close closes the underlying storage backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Version returns the schema version currently persisted.
func (s *Store) Version(ctx context.Context) (string, error) {
	return s.storedVersion(ctx)
}

// LastMigrationError returns the error of the most recent failed migration, if any.
func (s *Store) LastMigrationError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) initDataStructures(ctx context.Context) error {
	if _, err := s.backend.Get(ctx, storage.KeyPracticeRecords); errors.Is(err, storage.ErrNotFound) {
		slog.Debug("initializing practice records")
		if err := s.saveRecords(ctx, []model.PracticeRecord{}); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	if _, err := s.backend.Get(ctx, storage.KeyUserStats); errors.Is(err, storage.ErrNotFound) {
		slog.Debug("initializing user stats")
		if err := s.saveStats(ctx, model.NewUserStats(s.now())); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return nil
}

func (s *Store) loadRecords(ctx context.Context) ([]model.PracticeRecord, error) {
	data, err := s.backend.Get(ctx, storage.KeyPracticeRecords)
	if errors.Is(err, storage.ErrNotFound) {
		return []model.PracticeRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	var records []model.PracticeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if records == nil {
		records = []model.PracticeRecord{}
	}
	return records, nil
}

func (s *Store) saveRecords(ctx context.Context, records []model.PracticeRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := s.backend.Set(ctx, storage.KeyPracticeRecords, data); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	return nil
}

func (s *Store) loadStats(ctx context.Context) (model.UserStats, error) {
	data, err := s.backend.Get(ctx, storage.KeyUserStats)
	if errors.Is(err, storage.ErrNotFound) {
		return model.NewUserStats(s.now()), nil
	}
	if err != nil {
		return model.UserStats{}, fmt.Errorf("load user stats: %w", err)
	}
	stats := model.NewUserStats(s.now())
	if err := json.Unmarshal(data, &stats); err != nil {
		return model.UserStats{}, fmt.Errorf("decode user stats: %w", err)
	}
	normalizeStats(&stats)
	return stats, nil
}

func (s *Store) saveStats(ctx context.Context, stats model.UserStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode user stats: %w", err)
	}
	if err := s.backend.Set(ctx, storage.KeyUserStats, data); err != nil {
		return fmt.Errorf("save user stats: %w", err)
	}
	return nil
}

func (s *Store) storedVersion(ctx context.Context) (string, error) {
	data, err := s.backend.Get(ctx, storage.KeyStorageVersion)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load storage version: %w", err)
	}
	return normalizeVersion(string(data)), nil
}

func (s *Store) setVersion(ctx context.Context, v string) error {
	if err := s.backend.Set(ctx, storage.KeyStorageVersion, []byte(v)); err != nil {
		return fmt.Errorf("save storage version: %w", err)
	}
	return nil
}

// normalizeVersion strips whitespace and the JSON quotes older writers left around the value.
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		v = v[1 : len(v)-1]
	}
	return v
}

// StorageInfo summarizes the stored collection.
func (s *Store) StorageInfo(ctx context.Context) (model.StorageInfo, error) {
	records, err := s.loadRecords(ctx)
	if err != nil {
		return model.StorageInfo{}, err
	}
	backups, err := s.loadBackups(ctx)
	if err != nil {
		return model.StorageInfo{}, err
	}
	version, err := s.storedVersion(ctx)
	if err != nil {
		return model.StorageInfo{}, err
	}

	info := model.StorageInfo{
		TotalRecords:   len(records),
		TotalBackups:   len(backups),
		StorageVersion: version,
	}
	for _, r := range records {
		t := r.StartTime
		if info.OldestRecord == nil || t.Before(*info.OldestRecord) {
			info.OldestRecord = &t
		}
		if info.NewestRecord == nil || t.After(*info.NewestRecord) {
			info.NewestRecord = &t
		}
	}
	for _, key := range []string{storage.KeyPracticeRecords, storage.KeyUserStats, storage.KeyBackups} {
		data, err := s.backend.Get(ctx, key)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return model.StorageInfo{}, err
		}
		info.EstimatedSize += len(data)
	}
	return info, nil
}
