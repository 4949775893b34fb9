package analytics

import (
	"sort"
	"time"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
)

const (
	dayLayout          = "2006-01-02"
	progressionPeriods = 10
	minImprovementRate = 10
)

// Learning intensity labels, by mean practices per active day.
const (
	IntensityHigh   = "high"
	IntensityMedium = "medium"
	IntensityLow    = "low"
)

// DayStats aggregates one calendar day of completed practices.
type DayStats struct {
	Date                   string  `json:"date"`
	Practices              int     `json:"practices"`
	TotalTime              int     `json:"totalTime"`
	TotalQuestions         int     `json:"totalQuestions"`
	TotalCorrectAnswers    int     `json:"totalCorrectAnswers"`
	AverageScore           float64 `json:"averageScore"`
	AverageAccuracy        float64 `json:"averageAccuracy"`
	AverageTimePerPractice float64 `json:"averageTimePerPractice"`
	BestScore              float64 `json:"bestScore"`
	WorstScore             float64 `json:"worstScore"`
}

// ScorePeriod is one sub-window of the score progression.
type ScorePeriod struct {
	Period        int       `json:"period"`
	AverageScore  float64   `json:"averageScore"`
	PracticeCount int       `json:"practiceCount"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
}

// AccuracyPeriod is one sub-window of the question-weighted accuracy progression.
type AccuracyPeriod struct {
	Period         int       `json:"period"`
	Accuracy       float64   `json:"accuracy"`
	TotalQuestions int       `json:"totalQuestions"`
	TotalCorrect   int       `json:"totalCorrect"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
}

// WeekdayStats aggregates practices started on one weekday.
type WeekdayStats struct {
	Practices    int     `json:"practices"`
	AverageScore float64 `json:"averageScore"`
	AverageTime  float64 `json:"averageTime"`
}

// TrendAnalysis describes learning over a trailing window of days.
type TrendAnalysis struct {
	TimeRange              int                     `json:"timeRange"`
	TotalDays              int                     `json:"totalDays"`
	ActiveDays             int                     `json:"activeDays"`
	TotalPractices         int                     `json:"totalPractices"`
	AveragePracticesPerDay float64                 `json:"averagePracticesPerDay"`
	ScoreProgression       []ScorePeriod           `json:"scoreProgression"`
	AccuracyProgression    []AccuracyPeriod        `json:"accuracyProgression"`
	TimeEfficiencyTrend    float64                 `json:"timeEfficiencyTrend"`
	PracticeFrequencyTrend float64                 `json:"practiceFrequencyTrend"`
	DailyStats             map[string]DayStats     `json:"dailyStats"`
	WeekdayPerformance     map[string]WeekdayStats `json:"weekdayPerformance"`
	LearningIntensity      string                  `json:"learningIntensity"`
	ImprovementRate        float64                 `json:"improvementRate"`
}

func emptyTrendAnalysis() TrendAnalysis {
	return TrendAnalysis{
		ScoreProgression:    []ScorePeriod{},
		AccuracyProgression: []AccuracyPeriod{},
		DailyStats:          map[string]DayStats{},
		WeekdayPerformance:  map[string]WeekdayStats{},
		LearningIntensity:   IntensityLow,
	}
}

// AnalyzeLearningTrends analyzes the completed records started within the
// last windowDays days. A non-positive window uses DefaultWindowDays.
func (e *Engine) AnalyzeLearningTrends(records []model.PracticeRecord, windowDays int) TrendAnalysis {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if len(records) == 0 {
		return emptyTrendAnalysis()
	}
	return cached(e, fingerprint("learning_trends", records, windowDays), func() TrendAnalysis {
		return e.learningTrends(records, windowDays)
	})
}

func (e *Engine) learningTrends(records []model.PracticeRecord, windowDays int) TrendAnalysis {
	window := e.inWindow(records, windowDays)
	if len(window) == 0 {
		return emptyTrendAnalysis()
	}
	daily := groupByDay(window, e.loc)

	return TrendAnalysis{
		TimeRange:              windowDays,
		TotalDays:              windowDays,
		ActiveDays:             len(daily),
		TotalPractices:         len(window),
		AveragePracticesPerDay: float64(len(window)) / float64(windowDays),
		ScoreProgression:       scoreProgression(window),
		AccuracyProgression:    accuracyProgression(window),
		TimeEfficiencyTrend:    timeEfficiencyTrend(window),
		PracticeFrequencyTrend: practiceFrequencyTrend(daily),
		DailyStats:             daily,
		WeekdayPerformance:     weekdayPerformance(window, e.loc),
		LearningIntensity:      learningIntensity(daily),
		ImprovementRate:        improvementRate(window),
	}
}

// inWindow returns the completed records started within [now-days, now],
// oldest first.
func (e *Engine) inWindow(records []model.PracticeRecord, days int) []model.PracticeRecord {
	end := e.now()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	out := make([]model.PracticeRecord, 0, len(records))
	for _, r := range records {
		if !r.Completed() || r.StartTime.Before(start) || r.StartTime.After(end) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func groupByDay(records []model.PracticeRecord, loc *time.Location) map[string]DayStats {
	daily := map[string]DayStats{}
	for _, r := range records {
		date := r.StartTime.In(loc).Format(dayLayout)
		d := daily[date]
		if d.Practices == 0 || r.Accuracy < d.WorstScore {
			d.WorstScore = r.Accuracy
		}
		if r.Accuracy > d.BestScore {
			d.BestScore = r.Accuracy
		}
		d.Date = date
		d.Practices++
		d.TotalTime += r.Duration
		d.TotalQuestions += r.TotalQuestions
		d.TotalCorrectAnswers += r.CorrectAnswers
		// Running sum; divided below.
		d.AverageScore += r.Accuracy
		daily[date] = d
	}
	for date, d := range daily {
		n := float64(d.Practices)
		d.AverageScore /= n
		d.AverageAccuracy = ratio(float64(d.TotalCorrectAnswers), float64(d.TotalQuestions))
		d.AverageTimePerPractice = float64(d.TotalTime) / n
		daily[date] = d
	}
	return daily
}

func periodSize(n int) int {
	return max(1, n/progressionPeriods)
}

func scoreProgression(records []model.PracticeRecord) []ScorePeriod {
	size := periodSize(len(records))
	out := []ScorePeriod{}
	for i := 0; i < len(records); i += size {
		chunk := records[i:min(i+size, len(records))]
		var sum float64
		for _, r := range chunk {
			sum += r.Accuracy
		}
		out = append(out, ScorePeriod{
			Period:        i/size + 1,
			AverageScore:  sum / float64(len(chunk)),
			PracticeCount: len(chunk),
			StartDate:     chunk[0].StartTime,
			EndDate:       chunk[len(chunk)-1].StartTime,
		})
	}
	return out
}

func accuracyProgression(records []model.PracticeRecord) []AccuracyPeriod {
	size := periodSize(len(records))
	out := []AccuracyPeriod{}
	for i := 0; i < len(records); i += size {
		chunk := records[i:min(i+size, len(records))]
		p := AccuracyPeriod{
			Period:    i/size + 1,
			StartDate: chunk[0].StartTime,
			EndDate:   chunk[len(chunk)-1].StartTime,
		}
		for _, r := range chunk {
			p.TotalQuestions += r.TotalQuestions
			p.TotalCorrect += r.CorrectAnswers
		}
		p.Accuracy = ratio(float64(p.TotalCorrect), float64(p.TotalQuestions))
		out = append(out, p)
	}
	return out
}

// timeEfficiencyTrend is the negated slope of seconds per question, so a
// positive value means the learner is getting faster.
func timeEfficiencyTrend(records []model.PracticeRecord) float64 {
	perQuestion := make([]float64, len(records))
	for i, r := range records {
		questions := r.TotalQuestions
		if questions <= 0 {
			questions = 1
		}
		perQuestion[i] = float64(r.Duration) / float64(questions)
	}
	return -slope(perQuestion)
}

// practiceFrequencyTrend compares mean daily practices of the later half of
// active days against the earlier half.
func practiceFrequencyTrend(daily map[string]DayStats) float64 {
	if len(daily) < 2 {
		return 0
	}
	dates := make([]string, 0, len(daily))
	for d := range daily {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	half := len(dates) / 2
	avg := func(ds []string) float64 {
		var sum float64
		for _, d := range ds {
			sum += float64(daily[d].Practices)
		}
		return sum / float64(len(ds))
	}
	return avg(dates[len(dates)-half:]) - avg(dates[:half])
}

func weekdayPerformance(records []model.PracticeRecord, loc *time.Location) map[string]WeekdayStats {
	type acc struct {
		practices   int
		score, time float64
	}
	var days [7]acc
	for _, r := range records {
		wd := r.StartTime.In(loc).Weekday()
		days[wd].practices++
		days[wd].score += r.Accuracy
		days[wd].time += float64(r.Duration)
	}
	out := make(map[string]WeekdayStats, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		a := days[wd]
		ws := WeekdayStats{Practices: a.practices}
		if a.practices > 0 {
			ws.AverageScore = a.score / float64(a.practices)
			ws.AverageTime = a.time / float64(a.practices)
		}
		out[wd.String()] = ws
	}
	return out
}

func learningIntensity(daily map[string]DayStats) string {
	if len(daily) == 0 {
		return IntensityLow
	}
	total := 0
	for _, d := range daily {
		total += d.Practices
	}
	perDay := float64(total) / float64(len(daily))
	switch {
	case perDay >= 5:
		return IntensityHigh
	case perDay >= 2:
		return IntensityMedium
	}
	return IntensityLow
}

// improvementRate is the mean score of the last quarter of records minus
// that of the first quarter. It needs at least ten records.
func improvementRate(records []model.PracticeRecord) float64 {
	if len(records) < minImprovementRate {
		return 0
	}
	q := len(records) / 4
	avg := func(rs []model.PracticeRecord) float64 {
		var sum float64
		for _, r := range rs {
			sum += r.Accuracy
		}
		return sum / float64(len(rs))
	}
	return avg(records[len(records)-q:]) - avg(records[:q])
}
