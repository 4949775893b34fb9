package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/storage"
)

// Migration upgrades persisted data to Version. Apply runs with the store
// lock held and must use the unexported helpers.
type Migration struct {
	Version string
	Apply   func(ctx context.Context, s *Store) error
}

func defaultMigrations() []Migration {
	return []Migration{
		{Version: "1.0.0", Apply: restandardizeRecords},
	}
}

// checkVersion compares the stored schema version with the engine version
// and runs pending migrations. A failed migration is rolled back from the
// migration backup and logged; it does not fail the caller.
func (s *Store) checkVersion(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.storedVersion(ctx)
	if err != nil {
		return err
	}
	if stored == "" {
		if _, err := s.backend.Get(ctx, storage.KeyPracticeRecords); errors.Is(err, storage.ErrNotFound) {
			slog.Debug("fresh storage", "version", s.version)
			return s.setVersion(ctx, s.version)
		} else if err != nil {
			return err
		}
		// Unversioned data predates the version marker.
		stored = "0.0.0"
	}
	if stored == s.version {
		return nil
	}

	slog.Info("migrating storage", "from", stored, "to", s.version)
	if _, err := s.createBackup(ctx, migrationBackupID); err != nil {
		return fmt.Errorf("create migration backup: %w", err)
	}
	if err := s.migrate(ctx, stored); err != nil {
		merr := &MigrationError{From: stored, To: s.version, Err: err}
		slog.Error("storage migration failed, restoring backup", "error", merr)
		if _, rerr := s.restoreBackup(ctx, migrationBackupID); rerr != nil {
			return fmt.Errorf("restore after failed migration: %w", errors.Join(merr, rerr))
		}
		s.lastErr = merr
		return nil
	}
	if err := s.setVersion(ctx, s.version); err != nil {
		return err
	}
	s.lastErr = nil
	slog.Info("storage migrated", "version", s.version)
	return nil
}

func (s *Store) migrate(ctx context.Context, from string) error {
	for _, step := range s.migrations {
		if compareVersions(step.Version, from) <= 0 || compareVersions(step.Version, s.version) > 0 {
			continue
		}
		slog.Debug("running migration step", "version", step.Version)
		if err := step.Apply(ctx, s); err != nil {
			return fmt.Errorf("step %s: %w", step.Version, err)
		}
	}
	return nil
}

// restandardizeRecords runs every stored record back through Standardize and
// validate, then rebuilds UserStats.
func restandardizeRecords(ctx context.Context, s *Store) error {
	data, err := s.backend.Get(ctx, storage.KeyPracticeRecords)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var raws []map[string]any
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("decode records: %w", err)
	}

	now := s.now()
	records := make([]model.PracticeRecord, 0, len(raws))
	for i, raw := range raws {
		rec, err := Standardize(raw, now, s.newID)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if err := validate(rec); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		rec.Version = s.version
		records = append(records, rec)
	}
	if len(records) > s.maxRecords {
		records = records[:s.maxRecords]
	}
	if err := s.saveRecords(ctx, records); err != nil {
		return err
	}
	_, err = s.recalculate(ctx)
	return err
}

// compareVersions compares dotted numeric versions. Missing or non-numeric
// parts count as zero.
func compareVersions(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	for i := 0; i < max(len(pa), len(pb)); i++ {
		var x, y int
		if i < len(pa) {
			x, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			y, _ = strconv.Atoi(pb[i])
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}
