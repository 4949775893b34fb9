package store

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
)

var recordIDExamPattern = regexp.MustCompile(`^record_([^_]+)_`)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Standardize maps a loosely-typed completion payload onto the canonical
// record schema, filling typed defaults for every absent field. It only
// fails for timestamps that are present but unparseable; range and
// required-field checks belong to validate.
func Standardize(raw map[string]any, now time.Time, newID func() string) (model.PracticeRecord, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	meta := asMap(raw["metadata"])
	scoreInfo := asMap(raw["scoreInfo"])

	var r model.PracticeRecord

	r.ID = firstString(raw["id"])
	if r.ID == "" {
		r.ID = newID()
	}
	r.ExamID = inferExamID(raw, meta)
	r.SessionID = firstString(raw["sessionId"], raw["suiteSessionId"], meta["suiteSessionId"])
	if r.SessionID == "" {
		r.SessionID = r.ID
	}

	var err error
	if r.StartTime, err = timeField(raw, "startTime", "date", "timestamp"); err != nil {
		return r, err
	}
	if r.EndTime, err = timeField(raw, "endTime", "completedAt", "date"); err != nil {
		return r, err
	}

	r.Answers = standardizeAnswers(firstPresent(raw["answers"], raw["answerList"]), now)

	r.TotalQuestions = firstInt(-1, raw["totalQuestions"], raw["total"], raw["questionCount"],
		scoreInfo["total"], scoreInfo["totalQuestions"])
	if r.TotalQuestions < 0 {
		r.TotalQuestions = len(r.Answers)
	}
	r.CorrectAnswers = firstInt(-1, raw["correctAnswers"], raw["correct"], scoreInfo["correct"], raw["score"])
	if r.CorrectAnswers < 0 {
		r.CorrectAnswers = 0
		for _, a := range r.Answers {
			if a.Correct {
				r.CorrectAnswers++
			}
		}
	}
	r.Score = firstInt(r.CorrectAnswers, raw["score"])

	if acc, ok := toFloat(raw["accuracy"]); ok {
		r.Accuracy = acc
	} else if pct, ok := toFloat(firstPresent(raw["percentage"], scoreInfo["percentage"])); ok {
		r.Accuracy = pct / 100
	} else if r.TotalQuestions > 0 {
		r.Accuracy = float64(r.CorrectAnswers) / float64(r.TotalQuestions)
	}

	if d, ok := lookupAny(raw, "duration", "durationSeconds", "elapsedSeconds", "timeSpent"); ok {
		r.Duration = firstInt(0, d)
	} else if !r.StartTime.IsZero() && !r.EndTime.IsZero() && r.EndTime.After(r.StartTime) {
		r.Duration = int(r.EndTime.Sub(r.StartTime) / time.Second)
	}
	span := time.Duration(max(r.Duration, 0)) * time.Second
	switch {
	case r.StartTime.IsZero() && !r.EndTime.IsZero():
		r.StartTime = r.EndTime.Add(-span)
	case r.EndTime.IsZero() && !r.StartTime.IsZero():
		r.EndTime = r.StartTime.Add(span)
	}

	r.Status = model.StatusCompleted
	if s := firstString(raw["status"]); s != "" {
		r.Status = model.Status(strings.ReplaceAll(strings.ToLower(s), "_", "-"))
	}

	r.QuestionTypePerformance = standardizeTypePerformance(raw["questionTypePerformance"], r.Answers)

	r.Type = inferPracticeType(raw, meta, r.ExamID)
	r.Metadata = model.Metadata{
		ExamTitle: firstString(meta["examTitle"], meta["title"], raw["title"], raw["examTitle"], r.ExamID),
		Category:  firstString(meta["category"], raw["category"]),
		Frequency: firstString(meta["frequency"], raw["frequency"]),
		Type:      r.Type,
	}
	r.Title = firstString(raw["title"], r.Metadata.ExamTitle)

	r.Version = CurrentVersion
	r.Revision = firstInt(0, raw["revision"])
	r.CreatedAt = now
	if t, ok := parseTime(raw["createdAt"]); ok {
		r.CreatedAt = t
	}
	r.UpdatedAt = now
	return r, nil
}

// validate enforces required fields and value ranges on a standardized record.
func validate(r model.PracticeRecord) error {
	switch {
	case r.ID == "":
		return invalid("id", "required")
	case r.ExamID == "":
		return invalid("examId", "required")
	case r.StartTime.IsZero():
		return invalid("startTime", "required")
	case r.EndTime.IsZero():
		return invalid("endTime", "required")
	}
	if r.EndTime.Before(r.StartTime) {
		return invalid("endTime", "must not be before startTime")
	}
	if r.Duration < 0 {
		return invalid("duration", "must not be negative, got %d", r.Duration)
	}
	if r.TotalQuestions < 0 {
		return invalid("totalQuestions", "must not be negative, got %d", r.TotalQuestions)
	}
	if r.CorrectAnswers < 0 {
		return invalid("correctAnswers", "must not be negative, got %d", r.CorrectAnswers)
	}
	if r.CorrectAnswers > r.TotalQuestions {
		return invalid("correctAnswers", "%d exceeds totalQuestions %d", r.CorrectAnswers, r.TotalQuestions)
	}
	if math.IsNaN(r.Accuracy) || r.Accuracy < 0 || r.Accuracy > 1 {
		return invalid("accuracy", "must be between 0 and 1, got %v", r.Accuracy)
	}
	if !r.Status.Valid() {
		return invalid("status", "unknown status %q", r.Status)
	}
	return nil
}

func inferExamID(raw, meta map[string]any) string {
	if id := firstString(raw["examId"], meta["examId"]); id != "" {
		return id
	}
	if m := recordIDExamPattern.FindStringSubmatch(firstString(raw["id"])); m != nil {
		return m[1]
	}
	return ""
}

func inferPracticeType(raw, meta map[string]any, examID string) model.PracticeType {
	for _, v := range []any{raw["type"], meta["type"], meta["examType"]} {
		s := strings.ToLower(firstString(v))
		switch {
		case strings.Contains(s, "listen"):
			return model.PracticeListening
		case strings.Contains(s, "read"):
			return model.PracticeReading
		}
	}
	if strings.Contains(strings.ToLower(examID), "listening") {
		return model.PracticeListening
	}
	return model.PracticeReading
}

func standardizeAnswers(v any, now time.Time) []model.Answer {
	var entries []map[string]any
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			entries = append(entries, asMap(e))
		}
	case []map[string]any:
		entries = t
	case map[string]any:
		// {questionId: answer}; sort for a stable order.
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			entries = append(entries, map[string]any{"questionId": k, "answer": t[k]})
		}
	}

	answers := make([]model.Answer, 0, len(entries))
	for i, e := range entries {
		a := model.Answer{
			QuestionID:    firstString(e["questionId"]),
			Answer:        firstString(e["answer"], e["userAnswer"]),
			CorrectAnswer: firstString(e["correctAnswer"]),
			Correct:       toBool(e["correct"]) || toBool(e["isCorrect"]),
			QuestionType:  firstString(e["questionType"]),
			Timestamp:     now,
		}
		if a.QuestionID == "" {
			a.QuestionID = fmt.Sprintf("q%d", i+1)
		}
		if a.QuestionType == "" {
			a.QuestionType = "unknown"
		}
		if ts, ok := toFloat(e["timeSpent"]); ok && ts > 0 {
			a.TimeSpent = ts
		}
		if t, ok := parseTime(e["timestamp"]); ok {
			a.Timestamp = t
		}
		answers = append(answers, a)
	}
	return answers
}

func standardizeTypePerformance(v any, answers []model.Answer) map[string]model.TypePerformance {
	if m := asMap(v); len(m) > 0 {
		out := make(map[string]model.TypePerformance, len(m))
		for typ, perf := range m {
			p := asMap(perf)
			out[typ] = model.TypePerformance{
				Correct:   firstInt(0, p["correct"]),
				Total:     firstInt(0, p["total"]),
				TimeSpent: firstFloat(0, p["timeSpent"]),
			}
		}
		return out
	}

	var out map[string]model.TypePerformance
	for _, a := range answers {
		if a.QuestionType == "unknown" {
			continue
		}
		if out == nil {
			out = make(map[string]model.TypePerformance)
		}
		p := out[a.QuestionType]
		p.Total++
		if a.Correct {
			p.Correct++
		}
		p.TimeSpent += a.TimeSpent
		out[a.QuestionType] = p
	}
	return out
}

// timeField parses the first present key. A present but unparseable value
// for the primary key is a validation failure; fallbacks are best effort.
func timeField(raw map[string]any, primary string, fallbacks ...string) (time.Time, error) {
	if v, ok := raw[primary]; ok && !isBlank(v) {
		t, ok := parseTime(v)
		if !ok {
			return time.Time{}, invalid(primary, "unparseable timestamp %v", v)
		}
		return t, nil
	}
	for _, k := range fallbacks {
		if t, ok := parseTime(raw[k]); ok {
			return t, nil
		}
	}
	return time.Time{}, nil
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms).UTC(), true
		}
		return time.Time{}, false
	default:
		// Numeric timestamps are epoch milliseconds.
		if ms, ok := toFloat(v); ok && ms > 0 {
			return time.UnixMilli(int64(ms)).UTC(), true
		}
	}
	return time.Time{}, false
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func lookupAny(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstPresent(vals ...any) any {
	for _, v := range vals {
		if !isBlank(v) {
			return v
		}
	}
	return nil
}

func firstString(vals ...any) string {
	for _, v := range vals {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case json.Number:
			return t.String()
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case int:
			return strconv.Itoa(t)
		case int64:
			return strconv.FormatInt(t, 10)
		case bool:
			return strconv.FormatBool(t)
		}
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func firstFloat(fallback float64, vals ...any) float64 {
	for _, v := range vals {
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return fallback
}

func firstInt(fallback int, vals ...any) int {
	for _, v := range vals {
		if f, ok := toFloat(v); ok {
			return int(math.Round(f))
		}
	}
	return fallback
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}
