package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var csvHeader = []string{
	"id", "examId", "startTime", "endTime", "duration", "status", "score",
	"totalQuestions", "correctAnswers", "accuracy%", "category", "frequency", "title",
}

// ExportData serializes the store as a JSON document or as one CSV row per record.
func (s *Store) ExportData(ctx context.Context, format string) ([]byte, error) {
	records, err := s.loadRecords(ctx)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON, "":
		stats, err := s.loadStats(ctx)
		if err != nil {
			return nil, err
		}
		backups, err := s.loadBackups(ctx)
		if err != nil {
			return nil, err
		}
		version, err := s.storedVersion(ctx)
		if err != nil {
			return nil, err
		}
		doc := model.ExportDocument{
			ExportDate:      s.now(),
			Version:         version,
			PracticeRecords: records,
			UserStats:       &stats,
			Backups:         backups,
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode export: %w", err)
		}
		slog.Info("exported data", "format", FormatJSON, "records", len(records))
		return data, nil
	case FormatCSV:
		data, err := encodeCSV(records)
		if err != nil {
			return nil, err
		}
		slog.Info("exported data", "format", FormatCSV, "records", len(records))
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func encodeCSV(records []model.PracticeRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.ExamID,
			r.StartTime.Format(time.RFC3339),
			r.EndTime.Format(time.RFC3339),
			strconv.Itoa(r.Duration),
			string(r.Status),
			strconv.Itoa(r.Score),
			strconv.Itoa(r.TotalQuestions),
			strconv.Itoa(r.CorrectAnswers),
			strconv.Itoa(int(math.Round(r.Accuracy*100))) + "%",
			r.Metadata.Category,
			r.Metadata.Frequency,
			r.Title,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportOptions controls ImportData.
type ImportOptions struct {
	// Merge unions by id and keeps existing records; otherwise the
	// collection is replaced.
	Merge bool
}

// ImportResult reports what an import changed.
type ImportResult struct {
	BackupID string `json:"backupId"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Total    int    `json:"total"`
}

type importDocument struct {
	PracticeRecords *[]model.PracticeRecord `json:"practiceRecords"`
	UserStats       *model.UserStats        `json:"userStats"`
}

// ImportData loads a JSON export. The payload is checked before anything is
// written; a structurally invalid payload returns *ImportError and leaves the
// store untouched. A valid payload is preceded by an automatic backup.
func (s *Store) ImportData(ctx context.Context, data []byte, opts ImportOptions) (ImportResult, error) {
	var doc importDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return ImportResult{}, &ImportError{Reason: "malformed payload", Err: err}
	}
	if doc.PracticeRecords == nil {
		return ImportResult{}, &ImportError{Reason: "missing practiceRecords"}
	}
	incoming := *doc.PracticeRecords
	for i := range incoming {
		if incoming[i].SessionID == "" {
			incoming[i].SessionID = incoming[i].ID
		}
		if incoming[i].Version == "" {
			incoming[i].Version = s.version
		}
		if err := validate(incoming[i]); err != nil {
			return ImportResult{}, &ImportError{Reason: fmt.Sprintf("record %d", i), Err: err}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	backupID, err := s.createBackup(ctx, "pre_import_backup")
	if err != nil {
		return ImportResult{}, err
	}
	result := ImportResult{BackupID: backupID}

	var records []model.PracticeRecord
	if opts.Merge {
		records, err = s.loadRecords(ctx)
		if err != nil {
			return result, err
		}
		seen := make(map[string]bool, len(records))
		for _, r := range records {
			seen[r.ID] = true
		}
		for _, r := range incoming {
			if seen[r.ID] {
				result.Skipped++
				continue
			}
			seen[r.ID] = true
			records = append(records, r)
			result.Imported++
		}
		newestFirst(records)
	} else {
		records = incoming
		result.Imported = len(incoming)
	}
	truncated := len(records) > s.maxRecords
	if truncated {
		newestFirst(records)
		slog.Warn("import exceeds record cap, dropping oldest", "records", len(records), "cap", s.maxRecords)
		records = records[:s.maxRecords]
	}
	if err := s.saveRecords(ctx, records); err != nil {
		return result, err
	}
	result.Total = len(records)

	if !opts.Merge && !truncated && doc.UserStats != nil {
		stats := *doc.UserStats
		normalizeStats(&stats)
		if err := s.saveStats(ctx, stats); err != nil {
			return result, err
		}
	} else if _, err := s.recalculate(ctx); err != nil {
		return result, err
	}
	slog.Info("imported data", "merge", opts.Merge, "imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}
