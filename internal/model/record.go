package model

import "time"

// Status represents the lifecycle state of a practice attempt.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusInProgress Status = "in-progress"
	StatusAbandoned  Status = "abandoned"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusInProgress, StatusAbandoned:
		return true
	}
	return false
}

// PracticeType distinguishes reading and listening practice.
type PracticeType string

const (
	PracticeReading   PracticeType = "reading"
	PracticeListening PracticeType = "listening"
)

// Answer is one standardized answer inside a practice record.
type Answer struct {
	QuestionID    string    `json:"questionId"`
	Answer        string    `json:"answer"`
	CorrectAnswer string    `json:"correctAnswer,omitempty"`
	Correct       bool      `json:"correct"`
	TimeSpent     float64   `json:"timeSpent"`
	QuestionType  string    `json:"questionType"`
	Timestamp     time.Time `json:"timestamp"`
}

// TypePerformance aggregates answers of one question type within a record.
type TypePerformance struct {
	Correct   int     `json:"correct"`
	Total     int     `json:"total"`
	TimeSpent float64 `json:"timeSpent"`
}

// Metadata carries catalog information about the practiced exam.
type Metadata struct {
	ExamTitle string       `json:"examTitle"`
	Category  string       `json:"category"`
	Frequency string       `json:"frequency"`
	Type      PracticeType `json:"type,omitempty"`
}

// PracticeRecord is one standardized practice attempt.
type PracticeRecord struct {
	ID        string       `json:"id"`
	ExamID    string       `json:"examId"`
	SessionID string       `json:"sessionId"`
	Title     string       `json:"title,omitempty"`
	Type      PracticeType `json:"type,omitempty"`

	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Duration  int       `json:"duration"` // seconds

	Status         Status  `json:"status"`
	Score          int     `json:"score"`
	TotalQuestions int     `json:"totalQuestions"`
	CorrectAnswers int     `json:"correctAnswers"`
	Accuracy       float64 `json:"accuracy"`

	Answers                 []Answer                   `json:"answers"`
	QuestionTypePerformance map[string]TypePerformance `json:"questionTypePerformance,omitempty"`
	Metadata                Metadata                   `json:"metadata"`

	Version   string    `json:"version"`
	Revision  int       `json:"revision"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Completed reports whether the attempt finished normally.
func (r PracticeRecord) Completed() bool {
	return r.Status == StatusCompleted
}

// RecordFilter narrows the result of a record query.
// Zero values mean no filtering on that field.
type RecordFilter struct {
	ExamID      string
	Category    string
	Status      Status
	StartDate   time.Time
	EndDate     time.Time
	MinAccuracy *float64
	MaxAccuracy *float64
}

// Empty reports whether no filter field is set.
func (f RecordFilter) Empty() bool {
	return f.ExamID == "" && f.Category == "" && f.Status == "" &&
		f.StartDate.IsZero() && f.EndDate.IsZero() &&
		f.MinAccuracy == nil && f.MaxAccuracy == nil
}

// Match reports whether r passes every filter field.
func (f RecordFilter) Match(r PracticeRecord) bool {
	if f.ExamID != "" && r.ExamID != f.ExamID {
		return false
	}
	if f.Category != "" && r.Metadata.Category != f.Category {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.StartDate.IsZero() && r.StartTime.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && r.StartTime.After(f.EndDate) {
		return false
	}
	if f.MinAccuracy != nil && r.Accuracy < *f.MinAccuracy {
		return false
	}
	if f.MaxAccuracy != nil && r.Accuracy > *f.MaxAccuracy {
		return false
	}
	return true
}
