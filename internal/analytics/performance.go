package analytics

import "github.com/sallowayma-git/IELTS-practice-sub003/internal/model"

const (
	recentCategoryScores = 10
	recentTypeScores     = 5
)

// CategoryPerformance is the breakdown for one metadata category.
type CategoryPerformance struct {
	Practices              int     `json:"practices"`
	TotalTimeSpent         int     `json:"totalTimeSpent"`
	TotalQuestions         int     `json:"totalQuestions"`
	TotalCorrectAnswers    int     `json:"totalCorrectAnswers"`
	AverageScore           float64 `json:"averageScore"`
	AverageAccuracy        float64 `json:"averageAccuracy"`
	AverageTimePerPractice float64 `json:"averageTimePerPractice"`
	AverageTimePerQuestion float64 `json:"averageTimePerQuestion"`
	BestScore              float64 `json:"bestScore"`
	WorstScore             float64 `json:"worstScore"`
	ImprovementTrend       float64 `json:"improvementTrend"`
	RecentAverageScore     float64 `json:"recentAverageScore"`
	RecentImprovementTrend float64 `json:"recentImprovementTrend"`
	Stability              float64 `json:"stability"`
}

// AnalyzeCategoryPerformance groups completed records by metadata category.
// Records without a category are skipped.
func (e *Engine) AnalyzeCategoryPerformance(records []model.PracticeRecord) map[string]CategoryPerformance {
	if len(records) == 0 {
		return map[string]CategoryPerformance{}
	}
	return cached(e, fingerprint("category_performance", records, 0), func() map[string]CategoryPerformance {
		return categoryPerformance(records)
	})
}

func categoryPerformance(records []model.PracticeRecord) map[string]CategoryPerformance {
	scores := map[string][]float64{}
	out := map[string]CategoryPerformance{}
	for _, r := range records {
		category := r.Metadata.Category
		if !r.Completed() || category == "" {
			continue
		}
		cp := out[category]
		if cp.Practices == 0 || r.Accuracy < cp.WorstScore {
			cp.WorstScore = r.Accuracy
		}
		if r.Accuracy > cp.BestScore {
			cp.BestScore = r.Accuracy
		}
		cp.Practices++
		cp.TotalTimeSpent += r.Duration
		cp.TotalQuestions += r.TotalQuestions
		cp.TotalCorrectAnswers += r.CorrectAnswers
		out[category] = cp
		scores[category] = append(scores[category], r.Accuracy)
	}

	for category, cp := range out {
		s := scores[category]
		recent := tail(s, recentCategoryScores)
		cp.AverageScore = mean(s)
		cp.AverageAccuracy = ratio(float64(cp.TotalCorrectAnswers), float64(cp.TotalQuestions))
		cp.AverageTimePerPractice = float64(cp.TotalTimeSpent) / float64(cp.Practices)
		cp.AverageTimePerQuestion = ratio(float64(cp.TotalTimeSpent), float64(cp.TotalQuestions))
		cp.ImprovementTrend = slope(s)
		cp.RecentAverageScore = mean(recent)
		cp.RecentImprovementTrend = slope(recent)
		cp.Stability = stability(s)
		out[category] = cp
	}
	return out
}

// QuestionTypePerformance is the breakdown for one question type.
type QuestionTypePerformance struct {
	Practices              int     `json:"practices"`
	TotalQuestions         int     `json:"totalQuestions"`
	TotalCorrectAnswers    int     `json:"totalCorrectAnswers"`
	TotalTimeSpent         float64 `json:"totalTimeSpent"`
	OverallAccuracy        float64 `json:"overallAccuracy"`
	AverageTimePerQuestion float64 `json:"averageTimePerQuestion"`
	BestAccuracy           float64 `json:"bestAccuracy"`
	WorstAccuracy          float64 `json:"worstAccuracy"`
	AccuracyTrend          float64 `json:"accuracyTrend"`
	// TimeTrend is the slope of time per question; negative means faster.
	TimeTrend         float64 `json:"timeTrend"`
	RecentAccuracy    float64 `json:"recentAccuracy"`
	RecentAverageTime float64 `json:"recentAverageTime"`
	Stability         float64 `json:"stability"`
}

// AnalyzeQuestionTypePerformance groups completed records by each key of
// their per-question-type performance.
func (e *Engine) AnalyzeQuestionTypePerformance(records []model.PracticeRecord) map[string]QuestionTypePerformance {
	if len(records) == 0 {
		return map[string]QuestionTypePerformance{}
	}
	return cached(e, fingerprint("question_type_performance", records, 0), func() map[string]QuestionTypePerformance {
		return questionTypePerformance(records)
	})
}

func questionTypePerformance(records []model.PracticeRecord) map[string]QuestionTypePerformance {
	accuracy := map[string][]float64{}
	timing := map[string][]float64{}
	out := map[string]QuestionTypePerformance{}
	for _, r := range records {
		if !r.Completed() {
			continue
		}
		for typ, perf := range r.QuestionTypePerformance {
			qp := out[typ]
			acc := ratio(float64(perf.Correct), float64(perf.Total))
			if qp.Practices == 0 || acc < qp.WorstAccuracy {
				qp.WorstAccuracy = acc
			}
			if acc > qp.BestAccuracy {
				qp.BestAccuracy = acc
			}
			qp.Practices++
			qp.TotalQuestions += perf.Total
			qp.TotalCorrectAnswers += perf.Correct
			qp.TotalTimeSpent += perf.TimeSpent
			out[typ] = qp

			accuracy[typ] = append(accuracy[typ], acc)
			if perf.TimeSpent > 0 && perf.Total > 0 {
				timing[typ] = append(timing[typ], perf.TimeSpent/float64(perf.Total))
			}
		}
	}

	for typ, qp := range out {
		acc := accuracy[typ]
		tm := timing[typ]
		qp.OverallAccuracy = ratio(float64(qp.TotalCorrectAnswers), float64(qp.TotalQuestions))
		qp.AverageTimePerQuestion = ratio(qp.TotalTimeSpent, float64(qp.TotalQuestions))
		qp.AccuracyTrend = slope(acc)
		qp.TimeTrend = slope(tm)
		qp.RecentAccuracy = mean(tail(acc, recentTypeScores))
		qp.RecentAverageTime = mean(tail(tm, recentTypeScores))
		qp.Stability = stability(acc)
		out[typ] = qp
	}
	return out
}
