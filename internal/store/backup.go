package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/storage"
)

const migrationBackupID = "migration_backup"

// CreateBackup snapshots records, stats and the schema version. A non-empty
// label becomes the backup id and replaces an older backup with the same id.
func (s *Store) CreateBackup(ctx context.Context, label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBackup(ctx, label)
}

func (s *Store) createBackup(ctx context.Context, label string) (string, error) {
	records, err := s.rawValue(ctx, storage.KeyPracticeRecords, "[]")
	if err != nil {
		return "", err
	}
	stats, err := s.rawValue(ctx, storage.KeyUserStats, "null")
	if err != nil {
		return "", err
	}
	version, err := s.storedVersion(ctx)
	if err != nil {
		return "", err
	}

	id := label
	if id == "" {
		id = "score_backup_" + uuid.NewString()
	}
	backup := model.Backup{
		ID:        id,
		Timestamp: s.now(),
		Type:      model.BackupTypeScoreStorage,
		Data: model.BackupData{
			PracticeRecords: records,
			UserStats:       stats,
			StorageVersion:  version,
		},
	}

	backups, err := s.loadBackups(ctx)
	if err != nil {
		return "", err
	}
	kept := make([]model.Backup, 0, len(backups)+1)
	kept = append(kept, backup)
	for _, b := range backups {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	if len(kept) > s.maxBackups {
		kept = kept[:s.maxBackups]
	}
	if err := s.saveBackups(ctx, kept); err != nil {
		return "", err
	}
	slog.Info("backup created", "id", id)
	return id, nil
}

// RestoreBackup replaces the current records, stats and version with the snapshot.
func (s *Store) RestoreBackup(ctx context.Context, id string) (model.Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreBackup(ctx, id)
}

func (s *Store) restoreBackup(ctx context.Context, id string) (model.Backup, error) {
	backups, err := s.loadBackups(ctx)
	if err != nil {
		return model.Backup{}, err
	}
	var backup *model.Backup
	for i := range backups {
		if backups[i].ID == id {
			backup = &backups[i]
			break
		}
	}
	if backup == nil {
		return model.Backup{}, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}

	if err := s.backend.Set(ctx, storage.KeyPracticeRecords, backup.Data.PracticeRecords); err != nil {
		return model.Backup{}, fmt.Errorf("restore records: %w", err)
	}
	if len(backup.Data.UserStats) > 0 && string(backup.Data.UserStats) != "null" {
		if err := s.backend.Set(ctx, storage.KeyUserStats, backup.Data.UserStats); err != nil {
			return model.Backup{}, fmt.Errorf("restore user stats: %w", err)
		}
	} else if err := s.backend.Remove(ctx, storage.KeyUserStats); err != nil {
		return model.Backup{}, fmt.Errorf("restore user stats: %w", err)
	}
	if backup.Data.StorageVersion != "" {
		if err := s.setVersion(ctx, backup.Data.StorageVersion); err != nil {
			return model.Backup{}, err
		}
	} else if err := s.backend.Remove(ctx, storage.KeyStorageVersion); err != nil {
		return model.Backup{}, fmt.Errorf("restore storage version: %w", err)
	}
	slog.Info("backup restored", "id", id)
	return *backup, nil
}

// ListBackups returns the retained backups, newest first.
func (s *Store) ListBackups(ctx context.Context) ([]model.Backup, error) {
	return s.loadBackups(ctx)
}

// DeleteBackup removes one backup.
func (s *Store) DeleteBackup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backups, err := s.loadBackups(ctx)
	if err != nil {
		return err
	}
	kept := backups[:0]
	for _, b := range backups {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	if len(kept) == len(backups) {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	return s.saveBackups(ctx, kept)
}

func (s *Store) loadBackups(ctx context.Context) ([]model.Backup, error) {
	data, err := s.backend.Get(ctx, storage.KeyBackups)
	if errors.Is(err, storage.ErrNotFound) {
		return []model.Backup{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load backups: %w", err)
	}
	var backups []model.Backup
	if err := json.Unmarshal(data, &backups); err != nil {
		return nil, fmt.Errorf("decode backups: %w", err)
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	return backups, nil
}

func (s *Store) saveBackups(ctx context.Context, backups []model.Backup) error {
	data, err := json.Marshal(backups)
	if err != nil {
		return fmt.Errorf("encode backups: %w", err)
	}
	if err := s.backend.Set(ctx, storage.KeyBackups, data); err != nil {
		return fmt.Errorf("save backups: %w", err)
	}
	return nil
}

// rawValue returns the stored bytes for key, or fallback when absent.
func (s *Store) rawValue(ctx context.Context, key, fallback string) (json.RawMessage, error) {
	data, err := s.backend.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return json.RawMessage(fallback), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !json.Valid(data) {
		// Keep the snapshot a valid JSON document even if the stored value is not.
		quoted, err := json.Marshal(string(data))
		if err != nil {
			return nil, err
		}
		return quoted, nil
	}
	return data, nil
}
