package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "IELTS Practice Tracker" {
		t.Errorf("T(AppTitle) = %q, want 'IELTS Practice Tracker'", got)
	}

	got = T(ctx, "Metric_stability")
	if got != "Stability" {
		t.Errorf("T(Metric_stability) = %q, want 'Stability'", got)
	}
}

func TestTranslateChinese(t *testing.T) {
	ctx := initLang(t, "zh")

	got := T(ctx, "Metric_accuracy")
	if got != "准确率" {
		t.Errorf("T(Metric_accuracy) = %q, want '准确率'", got)
	}

	got = Label(ctx, "QuestionType", "true-false-not-given")
	if got != "判断题" {
		t.Errorf("Label(QuestionType, true-false-not-given) = %q, want '判断题'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "PracticesRecorded", 1)
	if got1 != "1 practice recorded." {
		t.Errorf("Tp(PracticesRecorded, 1) = %q, want '1 practice recorded.'", got1)
	}

	got5 := Tp(ctx, "PracticesRecorded", 5)
	if got5 != "5 practices recorded." {
		t.Errorf("Tp(PracticesRecorded, 5) = %q, want '5 practices recorded.'", got5)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "zh")

	got := Td(ctx, "Milestone_consecutive_improvement", map[string]any{"Count": 4})
	if got != "连续4天进步" {
		t.Errorf("Td(Milestone_consecutive_improvement) = %q, want '连续4天进步'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}

	got = Label(ctx, "QuestionType", "matching-features")
	if got != "matching-features" {
		t.Errorf("Label fallback = %q, want 'matching-features'", got)
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		prefs []string
		want  string
	}{
		{[]string{"zh-CN,zh;q=0.9,en;q=0.8"}, "zh"},
		{[]string{"en-GB"}, "en"},
		{[]string{"", "", "zh"}, "zh"},
		{[]string{"zh", "en"}, "zh"},
		{[]string{"fr"}, "en"},
	}
	for _, tc := range tests {
		if got := Match(tc.prefs...); got != tc.want {
			t.Errorf("Match(%q) = %q, want %q", tc.prefs, got, tc.want)
		}
	}
}

func TestMiddlewareNegotiates(t *testing.T) {
	initLang(t, "en")
	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Metric_efficiency")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "zh-CN")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got != "效率" {
		t.Errorf("expected Chinese label, got %q", got)
	}
	if rec.Header().Get("Content-Language") != "zh" {
		t.Errorf("expected Content-Language zh, got %q", rec.Header().Get("Content-Language"))
	}

	req = httptest.NewRequest(http.MethodGet, "/?lang=en", nil)
	req.Header.Set("Accept-Language", "zh-CN")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Efficiency" {
		t.Errorf("expected query parameter to win, got %q", got)
	}
}
