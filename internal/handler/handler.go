package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/analytics"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/coach"
	appI18n "github.com/sallowayma-git/IELTS-practice-sub003/internal/i18n"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/store"
)

const defaultMaxBodyBytes = 10 << 20

// Config holds the HTTP layer settings.
type Config struct {
	// AdminPassword guards the mutating admin routes. Empty disables them.
	AdminPassword string
	// WindowDays is the analysis window used when a request names none.
	WindowDays int
	// Lang is the default locale for advice.
	Lang         string
	MaxBodyBytes int64
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	engine    *analytics.Engine
	coach     *coach.Client
	adminHash []byte
	config    Config
}

// New creates a new Handler. The coach client may be nil, in which case the
// advice route reports that advice is unavailable.
func New(s *store.Store, e *analytics.Engine, c *coach.Client, cfg Config) (*Handler, error) {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = analytics.DefaultWindowDays
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	h := &Handler{store: s, engine: e, coach: c, config: cfg}
	if cfg.AdminPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		h.adminHash = hash
	} else {
		slog.Warn("no admin password configured, admin routes are disabled")
	}
	return h, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/records", h.handleListRecords)
		r.Post("/records", h.handleSaveRecord)
		r.Get("/stats", h.handleStats)
		r.Get("/info", h.handleStorageInfo)
		r.Get("/backups", h.handleListBackups)
		r.Post("/backups", h.handleCreateBackup)
		r.Get("/export", h.handleExport)
		r.Get("/analytics/{kind}", h.handleAnalytics)
		r.Get("/cache", h.handleCacheStats)
		r.Post("/advice", h.handleAdvice)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/stats/recalculate", h.handleRecalculate)
			r.Post("/backups/{id}/restore", h.handleRestoreBackup)
			r.Delete("/backups/{id}", h.handleDeleteBackup)
			r.Post("/import", h.handleImport)
			r.Delete("/records", h.handleClearRecords)
			r.Delete("/cache", h.handleClearCache)
		})
	})
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	records, err := h.store.GetRecords(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleSaveRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		h.writeError(w, r, bodyError("decode record", err))
		return
	}
	rec, err := h.store.SaveRecord(r.Context(), raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetUserStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleStorageInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.StorageInfo(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// chronological returns every record oldest first, the order the analyses
// expect for their trend sequences.
func (h *Handler) chronological(r *http.Request) ([]model.PracticeRecord, error) {
	records, err := h.store.GetRecords(r.Context(), model.RecordFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]model.PracticeRecord, len(records))
	for i, rec := range records {
		out[len(records)-1-i] = rec
	}
	return out, nil
}

// requestError is a malformed request, reported as 400.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// bodyError keeps a body size overrun distinguishable from malformed input.
func bodyError(op string, err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return err
	}
	return badRequest("%s: %v", op, err)
}

func parseFilter(q url.Values) (model.RecordFilter, error) {
	f := model.RecordFilter{
		ExamID:   q.Get("examId"),
		Category: q.Get("category"),
	}
	if s := q.Get("status"); s != "" {
		f.Status = model.Status(s)
		if !f.Status.Valid() {
			return f, badRequest("invalid status %q", s)
		}
	}
	var err error
	if f.StartDate, err = parseDate(q.Get("startDate"), false); err != nil {
		return f, err
	}
	if f.EndDate, err = parseDate(q.Get("endDate"), true); err != nil {
		return f, err
	}
	if f.MinAccuracy, err = parseAccuracy(q.Get("minAccuracy")); err != nil {
		return f, err
	}
	if f.MaxAccuracy, err = parseAccuracy(q.Get("maxAccuracy")); err != nil {
		return f, err
	}
	return f, nil
}

// parseDate accepts RFC 3339 or a bare date. A bare end date covers the whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, badRequest("invalid date %q", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parseAccuracy(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 1 {
		return nil, badRequest("invalid accuracy %q", s)
	}
	return &v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorBody struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// writeError maps store errors to status codes with a localized message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var (
		ve  *store.ValidationError
		ie  *store.ImportError
		re  *requestError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: appI18n.T(ctx, "InvalidRecord"), Field: ve.Field, Detail: ve.Reason})
	case errors.As(err, &ie):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: appI18n.T(ctx, "InvalidImport"), Detail: ie.Error()})
	case errors.Is(err, store.ErrUnsupportedFormat):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: appI18n.T(ctx, "UnsupportedFormat")})
	case errors.Is(err, store.ErrBackupNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: appI18n.T(ctx, "BackupNotFound")})
	case errors.Is(err, coach.ErrNoPractice):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: appI18n.T(ctx, "NoPractice")})
	case errors.As(err, &mbe):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: appI18n.T(ctx, "BadRequest"), Detail: err.Error()})
	case errors.As(err, &re):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: appI18n.T(ctx, "BadRequest"), Detail: re.msg})
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: appI18n.T(ctx, "InternalError")})
	}
}
