package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/analytics"
	appI18n "github.com/sallowayma-git/IELTS-practice-sub003/internal/i18n"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/storage"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/store"
)

const testPassword = "s3cret"

var testNow = time.Date(2024, 6, 30, 18, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, password string) (http.Handler, *store.Store) {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	clock := func() time.Time { return testNow }
	s, err := store.New(context.Background(), storage.NewMemory(),
		store.WithClock(clock), store.WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	e := analytics.New(analytics.WithClock(clock), analytics.WithLocation(time.UTC))
	t.Cleanup(e.Close)

	h, err := New(s, e, nil, Config{AdminPassword: password})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)
	return r, s
}

type request struct {
	method string
	path   string
	body   string
	admin  bool
	lang   string
}

func do(t *testing.T, h http.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(req.method, req.path, strings.NewReader(req.body))
	if req.body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.admin {
		r.SetBasicAuth(adminUsername, testPassword)
	}
	if req.lang != "" {
		r.Header.Set("Accept-Language", req.lang)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func recordBody(examID string, daysAgo, correct, total int, category string) string {
	start := testNow.Add(-time.Duration(daysAgo) * 24 * time.Hour)
	payload := map[string]any{
		"examId":         examID,
		"startTime":      start.Format(time.RFC3339),
		"endTime":        start.Add(15 * time.Minute).Format(time.RFC3339),
		"totalQuestions": total,
		"correctAnswers": correct,
		"metadata":       map[string]any{"category": category},
		"questionTypePerformance": map[string]any{
			"multiple-choice": map[string]any{"correct": correct, "total": total},
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func seed(t *testing.T, h http.Handler, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		cat := "P1"
		if i%2 == 1 {
			cat = "P2"
		}
		w := do(t, h, request{method: http.MethodPost, path: "/api/records", body: recordBody(fmt.Sprintf("exam-%d", i), n-i, 5+i%5, 10, cat)})
		if w.Code != http.StatusCreated {
			t.Fatalf("seed record %d: expected 201, got %d: %s", i, w.Code, w.Body.String())
		}
	}
}

func TestSaveAndListRecords(t *testing.T) {
	h, _ := newTestServer(t, testPassword)

	w := do(t, h, request{method: http.MethodPost, path: "/api/records", body: recordBody("e1", 1, 8, 10, "P1")})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	rec := decode[model.PracticeRecord](t, w)
	if rec.Accuracy != 0.8 || rec.Duration != 900 || rec.ID == "" {
		t.Errorf("unexpected record %+v", rec)
	}

	w = do(t, h, request{method: http.MethodGet, path: "/api/records"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if records := decode[[]model.PracticeRecord](t, w); len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}

	stats := decode[model.UserStats](t, do(t, h, request{method: http.MethodGet, path: "/api/stats"}))
	if stats.TotalPractices != 1 || stats.AverageScore != 0.8 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSaveRecordRejected(t *testing.T) {
	h, s := newTestServer(t, testPassword)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"malformed JSON", `{"examId":`, ""},
		{"missing exam id", recordBody("", 1, 8, 10, "P1"), "examId"},
		{"correct exceeds total", recordBody("e1", 1, 12, 10, "P1"), "correctAnswers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, request{method: http.MethodPost, path: "/api/records", body: tt.body})
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			body := decode[errorBody](t, w)
			if body.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, body.Field)
			}
		})
	}

	records, err := s.GetRecords(context.Background(), model.RecordFilter{})
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records written, got %d", len(records))
	}
}

func TestListRecordsFilters(t *testing.T) {
	h, _ := newTestServer(t, testPassword)
	seed(t, h, 6)

	tests := []struct {
		query string
		code  int
		count int
	}{
		{"?category=P1", http.StatusOK, 3},
		{"?minAccuracy=0.8", http.StatusOK, 2},
		{"?startDate=2024-06-27", http.StatusOK, 3},
		{"?endDate=2024-06-25", http.StatusOK, 2},
		{"?status=completed&category=P2", http.StatusOK, 3},
		{"?status=finished", http.StatusBadRequest, 0},
		{"?minAccuracy=1.5", http.StatusBadRequest, 0},
		{"?startDate=yesterday", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := do(t, h, request{method: http.MethodGet, path: "/api/records" + tt.query})
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			if tt.code != http.StatusOK {
				return
			}
			if records := decode[[]model.PracticeRecord](t, w); len(records) != tt.count {
				t.Errorf("expected %d records, got %d", tt.count, len(records))
			}
		})
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	h, _ := newTestServer(t, testPassword)

	tests := []struct {
		name     string
		user     string
		password string
		code     int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong password", adminUsername, "guess", http.StatusUnauthorized},
		{"wrong user", "root", testPassword, http.StatusUnauthorized},
		{"admin", adminUsername, testPassword, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/stats/recalculate", nil)
			if tt.user != "" {
				r.SetBasicAuth(tt.user, tt.password)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, w.Code)
			}
			if tt.code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate challenge")
			}
		})
	}
}

func TestAdminRoutesDisabledWithoutPassword(t *testing.T) {
	h, _ := newTestServer(t, "")

	w := do(t, h, request{method: http.MethodPost, path: "/api/stats/recalculate", admin: true})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestBackupRestoreFlow(t *testing.T) {
	h, _ := newTestServer(t, testPassword)
	seed(t, h, 1)

	w := do(t, h, request{method: http.MethodPost, path: "/api/backups", body: `{"label":"before-more"}`})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	id := decode[map[string]string](t, w)["id"]
	if id != "before-more" {
		t.Errorf("expected backup id before-more, got %q", id)
	}

	seed(t, h, 3)
	w = do(t, h, request{method: http.MethodPost, path: "/api/backups/" + id + "/restore", admin: true})
	if w.Code != http.StatusOK {
		t.Fatalf("restore: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	records := decode[[]model.PracticeRecord](t, do(t, h, request{method: http.MethodGet, path: "/api/records"}))
	if len(records) != 1 {
		t.Errorf("expected 1 record after restore, got %d", len(records))
	}

	backups := decode[[]map[string]any](t, do(t, h, request{method: http.MethodGet, path: "/api/backups"}))
	if len(backups) != 1 || backups[0]["id"] != id {
		t.Errorf("unexpected backups %v", backups)
	}

	w = do(t, h, request{method: http.MethodDelete, path: "/api/backups/" + id, admin: true})
	if w.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", w.Code)
	}
	w = do(t, h, request{method: http.MethodPost, path: "/api/backups/" + id + "/restore", admin: true, lang: "zh-CN"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if got := decode[errorBody](t, w).Error; got != "未找到备份" {
		t.Errorf("expected localized error, got %q", got)
	}
}

func TestExportImport(t *testing.T) {
	h, s := newTestServer(t, testPassword)
	seed(t, h, 4)

	w := do(t, h, request{method: http.MethodGet, path: "/api/export?format=csv"})
	if w.Code != http.StatusOK {
		t.Fatalf("csv export: expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv, got %q", ct)
	}
	if lines := strings.Count(w.Body.String(), "\n"); lines != 5 {
		t.Errorf("expected header plus 4 rows, got %d lines", lines)
	}

	w = do(t, h, request{method: http.MethodGet, path: "/api/export?format=xml"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown format, got %d", w.Code)
	}

	w = do(t, h, request{method: http.MethodGet, path: "/api/export"})
	if w.Code != http.StatusOK {
		t.Fatalf("json export: expected 200, got %d", w.Code)
	}
	exported := w.Body.String()

	if _, err := s.ClearRecords(context.Background()); err != nil {
		t.Fatalf("ClearRecords: %v", err)
	}

	w = do(t, h, request{method: http.MethodPost, path: "/api/import?merge=true", body: exported, admin: true})
	if w.Code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	result := decode[store.ImportResult](t, w)
	if result.Imported != 4 || result.Total != 4 || result.BackupID == "" {
		t.Errorf("unexpected import result %+v", result)
	}

	tests := []struct {
		name string
		path string
		body string
	}{
		{"malformed", "/api/import", `{"practiceRecords":`},
		{"missing records", "/api/import", `{"userStats":{}}`},
		{"bad merge flag", "/api/import?merge=maybe", exported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, request{method: http.MethodPost, path: tt.path, body: tt.body, admin: true})
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	h, _ := newTestServer(t, testPassword)
	seed(t, h, 8)

	for _, kind := range []string{"basic", "categories", "question-types", "trends", "radar", "progress"} {
		t.Run(kind, func(t *testing.T) {
			w := do(t, h, request{method: http.MethodGet, path: "/api/analytics/" + kind + "?window=30"})
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	basic := decode[analytics.BasicStats](t, do(t, h, request{method: http.MethodGet, path: "/api/analytics/basic"}))
	if basic.TotalPractices != 8 {
		t.Errorf("expected 8 practices, got %d", basic.TotalPractices)
	}

	trends := decode[trendResponse](t, do(t, h, request{method: http.MethodGet, path: "/api/analytics/trends?lang=zh"}))
	if trends.TotalPractices != 8 || trends.LearningIntensityLabel == "" || trends.LearningIntensityLabel == trends.LearningIntensity {
		t.Errorf("unexpected trends %+v", trends)
	}

	radar := decode[analytics.RadarData](t, do(t, h, request{method: http.MethodGet, path: "/api/analytics/radar", lang: "zh"}))
	if len(radar.OverallMetrics) != 4 || radar.OverallMetrics[0].Label != "准确率" {
		t.Errorf("expected localized metric labels, got %+v", radar.OverallMetrics)
	}
	if len(radar.Categories) != 2 || radar.Categories[0].Label != "第一部分" {
		t.Errorf("expected localized category labels, got %+v", radar.Categories)
	}

	// The cached result keeps its untranslated labels.
	radar = decode[analytics.RadarData](t, do(t, h, request{method: http.MethodGet, path: "/api/analytics/radar"}))
	if radar.OverallMetrics[0].Label != "Accuracy" {
		t.Errorf("expected English label, got %q", radar.OverallMetrics[0].Label)
	}

	progress := decode[analytics.ProgressCurve](t, do(t, h, request{method: http.MethodGet, path: "/api/analytics/progress"}))
	if len(progress.Milestones) == 0 || !strings.HasPrefix(progress.Milestones[0].Label, "Best score") {
		t.Errorf("expected labelled milestones, got %+v", progress.Milestones)
	}

	if w := do(t, h, request{method: http.MethodGet, path: "/api/analytics/forecast"}); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown analysis, got %d", w.Code)
	}
	if w := do(t, h, request{method: http.MethodGet, path: "/api/analytics/trends?window=-3"}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad window, got %d", w.Code)
	}

	cache := decode[analytics.CacheStats](t, do(t, h, request{method: http.MethodGet, path: "/api/cache"}))
	if cache.Entries == 0 {
		t.Error("expected cached analyses")
	}
	if w := do(t, h, request{method: http.MethodDelete, path: "/api/cache", admin: true}); w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	cache = decode[analytics.CacheStats](t, do(t, h, request{method: http.MethodGet, path: "/api/cache"}))
	if cache.Entries != 0 {
		t.Errorf("expected empty cache, got %d entries", cache.Entries)
	}
}

func TestAdviceUnavailable(t *testing.T) {
	h, _ := newTestServer(t, testPassword)

	w := do(t, h, request{method: http.MethodPost, path: "/api/advice"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestStorageInfoAndClear(t *testing.T) {
	h, _ := newTestServer(t, testPassword)
	seed(t, h, 2)

	info := decode[model.StorageInfo](t, do(t, h, request{method: http.MethodGet, path: "/api/info"}))
	if info.TotalRecords != 2 || info.StorageVersion != store.CurrentVersion {
		t.Errorf("unexpected info %+v", info)
	}

	w := do(t, h, request{method: http.MethodDelete, path: "/api/records", admin: true})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if decode[map[string]string](t, w)["backupId"] == "" {
		t.Error("expected a backup id")
	}
	info = decode[model.StorageInfo](t, do(t, h, request{method: http.MethodGet, path: "/api/info"}))
	if info.TotalRecords != 0 || info.TotalBackups != 1 {
		t.Errorf("unexpected info after clear %+v", info)
	}
}
