package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/store"
)

func (h *Handler) handleListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.store.ListBackups(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	type backupSummary struct {
		ID        string    `json:"id"`
		Timestamp time.Time `json:"timestamp"`
		Type      string    `json:"type"`
		Version   string    `json:"storageVersion"`
		Size      int       `json:"size"`
	}
	out := make([]backupSummary, 0, len(backups))
	for _, b := range backups {
		out = append(out, backupSummary{
			ID:        b.ID,
			Timestamp: b.Timestamp,
			Type:      b.Type,
			Version:   b.Data.StorageVersion,
			Size:      len(b.Data.PracticeRecords) + len(b.Data.UserStats),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	var req struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, bodyError("decode backup request", err))
		return
	}
	id, err := h.store.CreateBackup(r.Context(), req.Label)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.RestoreBackup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        b.ID,
		"timestamp": b.Timestamp,
	})
}

func (h *Handler) handleDeleteBackup(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteBackup(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.RecalculateUserStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleClearRecords(w http.ResponseWriter, r *http.Request) {
	id, err := h.store.ClearRecords(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"backupId": id})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = store.FormatJSON
	}
	data, err := h.store.ExportData(r.Context(), format)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	contentType := "application/json"
	if format == store.FormatCSV {
		contentType = "text/csv; charset=utf-8"
	}
	filename := fmt.Sprintf("practice-export-%s.%s", time.Now().Format("2006-01-02"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write(data); err != nil {
		slog.Error("write export", "error", err)
	}
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	merge := false
	if s := r.URL.Query().Get("merge"); s != "" {
		var err error
		if merge, err = strconv.ParseBool(s); err != nil {
			h.writeError(w, r, badRequest("invalid merge flag %q", s))
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, r, bodyError("read import body", err))
		return
	}
	result, err := h.store.ImportData(r.Context(), data, store.ImportOptions{Merge: merge})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.CacheStats())
}

func (h *Handler) handleClearCache(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}
