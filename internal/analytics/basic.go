package analytics

import "github.com/sallowayma-git/IELTS-practice-sub003/internal/model"

// BasicStats summarizes completed practices. Scores are accuracies in [0, 1].
type BasicStats struct {
	TotalPractices         int     `json:"totalPractices"`
	TotalTimeSpent         int     `json:"totalTimeSpent"`
	AverageScore           float64 `json:"averageScore"`
	AverageAccuracy        float64 `json:"averageAccuracy"`
	AverageTimePerPractice float64 `json:"averageTimePerPractice"`
	AverageTimePerQuestion float64 `json:"averageTimePerQuestion"`
	TotalQuestions         int     `json:"totalQuestions"`
	TotalCorrectAnswers    int     `json:"totalCorrectAnswers"`
	BestScore              float64 `json:"bestScore"`
	WorstScore             float64 `json:"worstScore"`
	ScoreStdDev            float64 `json:"scoreStdDev"`
	CompletionRate         float64 `json:"completionRate"`
	ImprovementTrend       float64 `json:"improvementTrend"`
}

// CalculateBasicStats aggregates the completed records. The improvement
// trend follows the order of records as given.
func (e *Engine) CalculateBasicStats(records []model.PracticeRecord) BasicStats {
	if len(records) == 0 {
		return BasicStats{}
	}
	return cached(e, fingerprint("basic_stats", records, 0), func() BasicStats {
		return basicStats(records)
	})
}

func basicStats(records []model.PracticeRecord) BasicStats {
	var (
		stats  BasicStats
		scores []float64
	)
	for _, r := range records {
		if !r.Completed() {
			continue
		}
		if len(scores) == 0 || r.Accuracy < stats.WorstScore {
			stats.WorstScore = r.Accuracy
		}
		if r.Accuracy > stats.BestScore {
			stats.BestScore = r.Accuracy
		}
		scores = append(scores, r.Accuracy)
		stats.TotalTimeSpent += r.Duration
		stats.TotalQuestions += r.TotalQuestions
		stats.TotalCorrectAnswers += r.CorrectAnswers
	}
	stats.TotalPractices = len(scores)
	if stats.TotalPractices == 0 {
		return stats
	}

	n := float64(stats.TotalPractices)
	stats.AverageScore = mean(scores)
	stats.AverageAccuracy = ratio(float64(stats.TotalCorrectAnswers), float64(stats.TotalQuestions))
	stats.AverageTimePerPractice = float64(stats.TotalTimeSpent) / n
	stats.AverageTimePerQuestion = ratio(float64(stats.TotalTimeSpent), float64(stats.TotalQuestions))
	stats.ScoreStdDev = stddev(scores)
	stats.CompletionRate = n / float64(len(records))
	stats.ImprovementTrend = slope(scores)
	return stats
}
