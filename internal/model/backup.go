package model

import (
	"encoding/json"
	"time"
)

// BackupTypeScoreStorage tags snapshots taken by the record store.
const BackupTypeScoreStorage = "score_storage"

// BackupData holds the raw persisted values at snapshot time so a restore
// writes back exactly what was stored.
type BackupData struct {
	PracticeRecords json.RawMessage `json:"practiceRecords"`
	UserStats       json.RawMessage `json:"userStats"`
	StorageVersion  string          `json:"storageVersion"`
}

// Backup is an immutable snapshot of the store.
type Backup struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Type      string     `json:"type"`
	Data      BackupData `json:"data"`
}

// ExportDocument is the top-level JSON structure produced by a JSON export.
type ExportDocument struct {
	ExportDate      time.Time        `json:"exportDate"`
	Version         string           `json:"version"`
	PracticeRecords []PracticeRecord `json:"practiceRecords"`
	UserStats       *UserStats       `json:"userStats,omitempty"`
	Backups         []Backup         `json:"backups"`
}

// StorageInfo summarizes what the store currently holds.
type StorageInfo struct {
	TotalRecords   int        `json:"totalRecords"`
	TotalBackups   int        `json:"totalBackups"`
	OldestRecord   *time.Time `json:"oldestRecord,omitempty"`
	NewestRecord   *time.Time `json:"newestRecord,omitempty"`
	StorageVersion string     `json:"storageVersion"`
	EstimatedSize  int        `json:"estimatedSize"`
}
