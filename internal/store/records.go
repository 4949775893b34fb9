package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
)

// SaveRecord standardizes and validates raw, upserts it by id (newest
// first), enforces the collection cap, persists, and folds the record into
// UserStats. Validation failures return a *ValidationError and write nothing.
func (s *Store) SaveRecord(ctx context.Context, raw map[string]any) (model.PracticeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := Standardize(raw, s.now(), s.newID)
	if err != nil {
		return model.PracticeRecord{}, err
	}
	if err := validate(rec); err != nil {
		return model.PracticeRecord{}, err
	}

	records, err := s.loadRecords(ctx)
	if err != nil {
		return model.PracticeRecord{}, err
	}

	replaced := false
	for i, existing := range records {
		if existing.ID == rec.ID {
			rec.CreatedAt = existing.CreatedAt
			rec.Revision = existing.Revision + 1
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append([]model.PracticeRecord{rec}, records...)
	}

	dropped := 0
	if len(records) > s.maxRecords {
		dropped = len(records) - s.maxRecords
		records = records[:s.maxRecords]
	}

	if err := s.saveRecords(ctx, records); err != nil {
		return model.PracticeRecord{}, err
	}
	if replaced {
		slog.Info("updated practice record", "id", rec.ID, "revision", rec.Revision)
	} else {
		slog.Info("saved practice record", "id", rec.ID, "exam_id", rec.ExamID, "accuracy", rec.Accuracy)
	}
	if dropped > 0 {
		slog.Info("truncated practice records", "dropped", dropped, "cap", s.maxRecords)
	}

	// A replaced or evicted record cannot be subtracted from running
	// averages, so those cases replay the collection through the same fold.
	if replaced || dropped > 0 {
		if _, err := s.recalculate(ctx); err != nil {
			return model.PracticeRecord{}, err
		}
		return rec, nil
	}

	stats, err := s.loadStats(ctx)
	if err != nil {
		return model.PracticeRecord{}, err
	}
	fold(&stats, rec, s.loc)
	stats.UpdatedAt = s.now()
	if err := s.saveStats(ctx, stats); err != nil {
		return model.PracticeRecord{}, fmt.Errorf("update user stats: %w", err)
	}
	return rec, nil
}

// GetRecords returns the records matching filter, newest startTime first.
func (s *Store) GetRecords(ctx context.Context, filter model.RecordFilter) ([]model.PracticeRecord, error) {
	records, err := s.loadRecords(ctx)
	if err != nil {
		return nil, err
	}
	out := records
	if !filter.Empty() {
		out = make([]model.PracticeRecord, 0, len(records))
		for _, r := range records {
			if filter.Match(r) {
				out = append(out, r)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

// newestFirst orders records by start time, newest first, breaking ties on
// id so the order does not depend on the input order.
func newestFirst(records []model.PracticeRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].StartTime.Equal(records[j].StartTime) {
			return records[i].StartTime.After(records[j].StartTime)
		}
		return records[i].ID > records[j].ID
	})
}

// ClearRecords removes every record and resets UserStats after taking a backup.
func (s *Store) ClearRecords(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backupID, err := s.createBackup(ctx, "pre_clear_backup")
	if err != nil {
		return "", err
	}
	if err := s.saveRecords(ctx, []model.PracticeRecord{}); err != nil {
		return "", err
	}
	prev, err := s.loadStats(ctx)
	if err != nil {
		return "", err
	}
	stats := model.NewUserStats(s.now())
	stats.CreatedAt = prev.CreatedAt
	if err := s.saveStats(ctx, stats); err != nil {
		return "", err
	}
	slog.Info("cleared practice records", "backup", backupID)
	return backupID, nil
}
