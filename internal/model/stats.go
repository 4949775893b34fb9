package model

import "time"

// Achievement badge identifiers. Category mastery badges are "<category>-master".
const (
	AchievementFirstPractice = "first-practice"
	AchievementWeekStreak    = "week-streak"
	AchievementMonthStreak   = "month-streak"
	AchievementHighScorer    = "high-scorer"
)

// CategoryStat is the per-category slice of UserStats.
type CategoryStat struct {
	Practices      int     `json:"practices"`
	AvgScore       float64 `json:"avgScore"`
	TimeSpent      int     `json:"timeSpent"`
	BestScore      float64 `json:"bestScore"`
	TotalQuestions int     `json:"totalQuestions"`
	CorrectAnswers int     `json:"correctAnswers"`
	// ScoreTotal is the sum of accuracies in billionths.
	ScoreTotal int64 `json:"scoreTotal"`
}

// QuestionTypeStat is the per-question-type slice of UserStats.
type QuestionTypeStat struct {
	Practices          int     `json:"practices"`
	Accuracy           float64 `json:"accuracy"`
	TotalQuestions     int     `json:"totalQuestions"`
	CorrectAnswers     int     `json:"correctAnswers"`
	AvgTimePerQuestion float64 `json:"avgTimePerQuestion"`
	TimedPractices     int     `json:"timedPractices"`
	// TimeTotal is the sum of per-question seconds in billionths.
	TimeTotal int64 `json:"timeTotal"`
}

// UserStats is the derived aggregate over every stored practice record.
type UserStats struct {
	TotalPractices    int                         `json:"totalPractices"`
	TotalTimeSpent    int                         `json:"totalTimeSpent"`
	AverageScore      float64                     `json:"averageScore"`
	BestAccuracy      float64                     `json:"bestAccuracy"`
	ScoreTotal        int64                       `json:"scoreTotal"`
	CategoryStats     map[string]CategoryStat     `json:"categoryStats"`
	QuestionTypeStats map[string]QuestionTypeStat `json:"questionTypeStats"`
	StreakDays        int                         `json:"streakDays"`
	LongestStreak     int                         `json:"longestStreak"`
	PracticeDays      []string                    `json:"practiceDays"`
	LastPracticeDate  string                      `json:"lastPracticeDate,omitempty"`
	Achievements      []string                    `json:"achievements"`
	CreatedAt         time.Time                   `json:"createdAt"`
	UpdatedAt         time.Time                   `json:"updatedAt"`
}

// NewUserStats returns an empty aggregate stamped with now.
func NewUserStats(now time.Time) UserStats {
	return UserStats{
		CategoryStats:     map[string]CategoryStat{},
		QuestionTypeStats: map[string]QuestionTypeStat{},
		PracticeDays:      []string{},
		Achievements:      []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
