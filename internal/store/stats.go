package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
)

const dayLayout = "2006-01-02"

// Means are kept as integer sums of fixed-point values so the aggregate is
// identical whatever order records are folded in.
const fixedScale = 1e9

func toFixed(v float64) int64 { return int64(math.Round(v * fixedScale)) }

func fixedMean(sum int64, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(sum) / fixedScale / float64(n)
}

// atLeast reports whether the mean of sum over n is >= threshold, compared
// on the fixed-point values.
func atLeast(sum int64, n int, threshold float64) bool {
	return sum >= int64(n)*toFixed(threshold)
}

// GetUserStats returns the persisted aggregate.
func (s *Store) GetUserStats(ctx context.Context) (model.UserStats, error) {
	return s.loadStats(ctx)
}

// RecalculateUserStats rebuilds UserStats by replaying every stored record
// through the same fold used by SaveRecord. Records are replayed in
// (startTime, id) order so the result does not depend on storage order.
func (s *Store) RecalculateUserStats(ctx context.Context) (model.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recalculate(ctx)
}

func (s *Store) recalculate(ctx context.Context) (model.UserStats, error) {
	records, err := s.loadRecords(ctx)
	if err != nil {
		return model.UserStats{}, err
	}
	prev, err := s.loadStats(ctx)
	if err != nil {
		return model.UserStats{}, err
	}

	stats := replay(records, s.loc, s.now())
	stats.CreatedAt = prev.CreatedAt
	if err := s.saveStats(ctx, stats); err != nil {
		return model.UserStats{}, fmt.Errorf("recalculate user stats: %w", err)
	}
	slog.Info("recalculated user stats", "records", len(records))
	return stats, nil
}

// replay folds records into a fresh aggregate in canonical order.
func replay(records []model.PracticeRecord, loc *time.Location, now time.Time) model.UserStats {
	ordered := make([]model.PracticeRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].StartTime.Equal(ordered[j].StartTime) {
			return ordered[i].StartTime.Before(ordered[j].StartTime)
		}
		return ordered[i].ID < ordered[j].ID
	})

	stats := model.NewUserStats(now)
	for _, r := range ordered {
		fold(&stats, r, loc)
	}
	stats.UpdatedAt = now
	return stats
}

// fold adds one record to the aggregate. It is the only place the
// aggregate is computed: SaveRecord applies it to one record and
// RecalculateUserStats to all of them.
func fold(stats *model.UserStats, r model.PracticeRecord, loc *time.Location) {
	normalizeStats(stats)

	stats.TotalPractices++
	stats.TotalTimeSpent += r.Duration
	stats.ScoreTotal += toFixed(r.Accuracy)
	stats.AverageScore = fixedMean(stats.ScoreTotal, stats.TotalPractices)
	if r.Accuracy > stats.BestAccuracy {
		stats.BestAccuracy = r.Accuracy
	}

	foldCategory(stats, r)
	foldQuestionTypes(stats, r)
	foldStreak(stats, r, loc)
	stats.Achievements = achievements(stats)
}

func foldCategory(stats *model.UserStats, r model.PracticeRecord) {
	category := r.Metadata.Category
	if category == "" {
		return
	}
	cs := stats.CategoryStats[category]
	cs.Practices++
	cs.TimeSpent += r.Duration
	cs.TotalQuestions += r.TotalQuestions
	cs.CorrectAnswers += r.CorrectAnswers
	if r.Accuracy > cs.BestScore {
		cs.BestScore = r.Accuracy
	}
	cs.ScoreTotal += toFixed(r.Accuracy)
	cs.AvgScore = fixedMean(cs.ScoreTotal, cs.Practices)
	stats.CategoryStats[category] = cs
}

func foldQuestionTypes(stats *model.UserStats, r model.PracticeRecord) {
	for typ, perf := range r.QuestionTypePerformance {
		ts := stats.QuestionTypeStats[typ]
		ts.Practices++
		ts.TotalQuestions += perf.Total
		ts.CorrectAnswers += perf.Correct
		if ts.TotalQuestions > 0 {
			ts.Accuracy = float64(ts.CorrectAnswers) / float64(ts.TotalQuestions)
		}
		if perf.TimeSpent > 0 && perf.Total > 0 {
			ts.TimedPractices++
			ts.TimeTotal += toFixed(perf.TimeSpent / float64(perf.Total))
			ts.AvgTimePerQuestion = fixedMean(ts.TimeTotal, ts.TimedPractices)
		}
		stats.QuestionTypeStats[typ] = ts
	}
}

// foldStreak adds the record's calendar day to the practice-day set and
// recomputes the current streak (the run ending at the latest day) and the
// longest run. Both depend only on the set, not on fold order.
func foldStreak(stats *model.UserStats, r model.PracticeRecord, loc *time.Location) {
	when := r.StartTime
	if when.IsZero() {
		when = r.EndTime
	}
	if when.IsZero() {
		return
	}
	day := when.In(loc).Format(dayLayout)

	i := sort.SearchStrings(stats.PracticeDays, day)
	if i == len(stats.PracticeDays) || stats.PracticeDays[i] != day {
		stats.PracticeDays = append(stats.PracticeDays, "")
		copy(stats.PracticeDays[i+1:], stats.PracticeDays[i:])
		stats.PracticeDays[i] = day
	}

	current, longest := 0, 0
	var prev time.Time
	for _, d := range stats.PracticeDays {
		t, err := time.Parse(dayLayout, d)
		if err != nil {
			continue
		}
		if !prev.IsZero() && dayDiff(prev, t) == 1 {
			current++
		} else {
			current = 1
		}
		longest = max(longest, current)
		prev = t
	}
	stats.StreakDays = current
	stats.LongestStreak = longest
	stats.LastPracticeDate = stats.PracticeDays[len(stats.PracticeDays)-1]
}

// dayDiff counts calendar days between two dates parsed in UTC.
func dayDiff(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// achievements derives the unlocked badges from the aggregate.
func achievements(stats *model.UserStats) []string {
	var out []string
	if stats.TotalPractices >= 1 {
		out = append(out, model.AchievementFirstPractice)
	}
	if stats.LongestStreak >= 7 {
		out = append(out, model.AchievementWeekStreak)
	}
	if stats.LongestStreak >= 30 {
		out = append(out, model.AchievementMonthStreak)
	}
	if stats.BestAccuracy >= 0.9 {
		out = append(out, model.AchievementHighScorer)
	}
	for category, cs := range stats.CategoryStats {
		if cs.Practices >= 10 && atLeast(cs.ScoreTotal, cs.Practices, 0.8) {
			out = append(out, strings.ToLower(category)+"-master")
		}
	}
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out
}

// normalizeStats fills nil collections left by older or hand-edited
// documents and rebuilds fixed-point sums missing from them.
func normalizeStats(stats *model.UserStats) {
	if stats.ScoreTotal == 0 && stats.AverageScore > 0 {
		stats.ScoreTotal = toFixed(stats.AverageScore * float64(stats.TotalPractices))
	}
	for k, cs := range stats.CategoryStats {
		if cs.ScoreTotal == 0 && cs.AvgScore > 0 {
			cs.ScoreTotal = toFixed(cs.AvgScore * float64(cs.Practices))
			stats.CategoryStats[k] = cs
		}
	}
	for k, ts := range stats.QuestionTypeStats {
		if ts.TimeTotal == 0 && ts.AvgTimePerQuestion > 0 {
			ts.TimeTotal = toFixed(ts.AvgTimePerQuestion * float64(ts.TimedPractices))
			stats.QuestionTypeStats[k] = ts
		}
	}
	if stats.CategoryStats == nil {
		stats.CategoryStats = map[string]model.CategoryStat{}
	}
	if stats.QuestionTypeStats == nil {
		stats.QuestionTypeStats = map[string]model.QuestionTypeStat{}
	}
	if stats.PracticeDays == nil {
		stats.PracticeDays = []string{}
	}
	if stats.Achievements == nil {
		stats.Achievements = []string{}
	}
}
