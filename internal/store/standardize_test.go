package store

import (
	"testing"
	"time"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
)

func fixedID() string { return "record_generated" }

func TestStandardizeAliases(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		raw   map[string]any
		check func(t *testing.T, r model.PracticeRecord)
	}{
		{
			name: "score info and percentage",
			raw: map[string]any{
				"examId":     "p1-high-01",
				"startTime":  start.Format(time.RFC3339),
				"endTime":    start.Add(15 * time.Minute).Format(time.RFC3339),
				"scoreInfo":  map[string]any{"correct": 6, "total": 8},
				"percentage": 75,
			},
			check: func(t *testing.T, r model.PracticeRecord) {
				if r.CorrectAnswers != 6 || r.TotalQuestions != 8 {
					t.Errorf("expected 6/8, got %d/%d", r.CorrectAnswers, r.TotalQuestions)
				}
				if r.Accuracy != 0.75 {
					t.Errorf("expected accuracy 0.75, got %v", r.Accuracy)
				}
				if r.Duration != 900 {
					t.Errorf("expected duration 900, got %d", r.Duration)
				}
			},
		},
		{
			name: "numeric strings and epoch millis",
			raw: map[string]any{
				"examId":    "e2",
				"startTime": float64(start.UnixMilli()),
				"duration":  "120",
				"correct":   "3",
				"total":     "4",
			},
			check: func(t *testing.T, r model.PracticeRecord) {
				if !r.StartTime.Equal(start) {
					t.Errorf("expected start %v, got %v", start, r.StartTime)
				}
				if !r.EndTime.Equal(start.Add(2 * time.Minute)) {
					t.Errorf("expected end derived from duration, got %v", r.EndTime)
				}
				if r.Accuracy != 0.75 {
					t.Errorf("expected accuracy 0.75, got %v", r.Accuracy)
				}
			},
		},
		{
			name: "answer map and metadata fallbacks",
			raw: map[string]any{
				"id":          "record_listening-s1_42",
				"completedAt": start.Format(time.RFC3339),
				"title":       "Section 1",
				"category":    "S1",
				"answers":     map[string]any{"q2": "B", "q1": "A"},
				"status":      "IN_PROGRESS",
			},
			check: func(t *testing.T, r model.PracticeRecord) {
				if r.ExamID != "listening-s1" {
					t.Errorf("expected exam id inferred from record id, got %q", r.ExamID)
				}
				if r.Type != model.PracticeListening {
					t.Errorf("expected listening, got %q", r.Type)
				}
				if len(r.Answers) != 2 || r.Answers[0].QuestionID != "q1" {
					t.Errorf("expected sorted answers, got %+v", r.Answers)
				}
				if r.TotalQuestions != 2 {
					t.Errorf("expected total from answers, got %d", r.TotalQuestions)
				}
				if r.Metadata.ExamTitle != "Section 1" || r.Metadata.Category != "S1" {
					t.Errorf("unexpected metadata %+v", r.Metadata)
				}
				if r.Status != model.StatusInProgress {
					t.Errorf("expected in-progress, got %q", r.Status)
				}
				if !r.EndTime.Equal(start) {
					t.Errorf("expected end from completedAt, got %v", r.EndTime)
				}
			},
		},
		{
			name: "question type performance from answers",
			raw: map[string]any{
				"examId":    "e3",
				"startTime": start.Format(time.RFC3339),
				"endTime":   start.Add(time.Minute).Format(time.RFC3339),
				"answers": []any{
					map[string]any{"questionId": "q1", "isCorrect": true, "questionType": "matching", "timeSpent": 10},
					map[string]any{"questionId": "q2", "correct": false, "questionType": "matching", "timeSpent": 20},
					map[string]any{"questionId": "q3", "correct": true},
				},
			},
			check: func(t *testing.T, r model.PracticeRecord) {
				perf, ok := r.QuestionTypePerformance["matching"]
				if !ok {
					t.Fatalf("expected matching performance, got %v", r.QuestionTypePerformance)
				}
				if perf.Total != 2 || perf.Correct != 1 || perf.TimeSpent != 30 {
					t.Errorf("unexpected performance %+v", perf)
				}
				if _, ok := r.QuestionTypePerformance["unknown"]; ok {
					t.Errorf("expected untyped answers skipped")
				}
				if r.CorrectAnswers != 2 {
					t.Errorf("expected 2 correct answers counted, got %d", r.CorrectAnswers)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Standardize(tc.raw, now, fixedID)
			if err != nil {
				t.Fatalf("Standardize: %v", err)
			}
			if err := validate(r); err != nil {
				t.Fatalf("validate: %v", err)
			}
			tc.check(t, r)
		})
	}
}

func TestStandardizeDefaults(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r, err := Standardize(map[string]any{}, now, fixedID)
	if err != nil {
		t.Fatalf("Standardize: %v", err)
	}
	if r.ID != "record_generated" || r.SessionID != r.ID {
		t.Errorf("expected generated id, got %q / %q", r.ID, r.SessionID)
	}
	if r.Status != model.StatusCompleted || r.Type != model.PracticeReading {
		t.Errorf("unexpected defaults %q %q", r.Status, r.Type)
	}
	if r.Answers == nil {
		t.Errorf("expected empty answers slice")
	}
	if !r.CreatedAt.Equal(now) || !r.UpdatedAt.Equal(now) {
		t.Errorf("expected timestamps set to now")
	}
}
