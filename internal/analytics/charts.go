package analytics

import (
	"math"
	"sort"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
)

// Composite radar metric keys.
const (
	MetricAccuracy    = "accuracy"
	MetricStability   = "stability"
	MetricEfficiency  = "efficiency"
	MetricImprovement = "improvement"
)

// Milestone types.
const (
	MilestoneBestScore              = "best_score"
	MilestoneConsecutiveImprovement = "consecutive_improvement"
	MilestoneHighVolume             = "high_volume"
)

const (
	movingAverageDays      = 7
	minImprovementStreak   = 3
	minHighVolumePractices = 5
	// efficiencyCeiling is the seconds per question that scores zero efficiency.
	efficiencyCeiling = 60.0
)

var categoryColors = map[string]string{
	"P1": "#4CAF50",
	"P2": "#2196F3",
	"P3": "#FF9800",
}

var questionTypeColors = map[string]string{
	"heading-matching":     "#E91E63",
	"country-matching":     "#9C27B0",
	"true-false-not-given": "#673AB7",
	"multiple-choice":      "#3F51B5",
	"gap-filling":          "#009688",
	"summary-completion":   "#795548",
}

var metricColors = map[string]string{
	MetricAccuracy:    "#4CAF50",
	MetricStability:   "#2196F3",
	MetricEfficiency:  "#FF9800",
	MetricImprovement: "#9C27B0",
}

func colorOr(palette map[string]string, key, fallback string) string {
	if c, ok := palette[key]; ok {
		return c
	}
	return fallback
}

// RadarPoint is one axis of a radar chart. Label defaults to Key and may be
// replaced by a localized name.
type RadarPoint struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Value    int    `json:"value"`
	MaxValue int    `json:"maxValue"`
	Color    string `json:"color"`
}

// RadarData holds per-category, per-question-type and composite axes.
type RadarData struct {
	Categories     []RadarPoint `json:"categories"`
	QuestionTypes  []RadarPoint `json:"questionTypes"`
	OverallMetrics []RadarPoint `json:"overallMetrics"`
}

func metricPoints(accuracy, stability, efficiency, improvement int) []RadarPoint {
	values := []struct {
		key   string
		value int
	}{
		{MetricAccuracy, accuracy},
		{MetricStability, stability},
		{MetricEfficiency, efficiency},
		{MetricImprovement, improvement},
	}
	out := make([]RadarPoint, len(values))
	for i, v := range values {
		out[i] = RadarPoint{Key: v.key, Label: v.key, Value: v.value, MaxValue: 100, Color: metricColors[v.key]}
	}
	return out
}

// GenerateRadarChartData builds radar axes from the completed records in a
// single pass. Every value is a percentage clamped to [0, 100].
func (e *Engine) GenerateRadarChartData(records []model.PracticeRecord) RadarData {
	if len(records) == 0 {
		return RadarData{
			Categories:     []RadarPoint{},
			QuestionTypes:  []RadarPoint{},
			OverallMetrics: metricPoints(0, 0, 0, 0),
		}
	}
	return cached(e, fingerprint("radar_chart", records, 0), func() RadarData {
		return radarData(records)
	})
}

func radarData(records []model.PracticeRecord) RadarData {
	type catAcc struct {
		score     float64
		practices int
	}
	type typeAcc struct {
		correct, total int
	}
	categories := map[string]*catAcc{}
	types := map[string]*typeAcc{}
	var catOrder []string
	var scores []float64
	var totalTime, totalQ, totalRight int
	for _, r := range records {
		if !r.Completed() {
			continue
		}
		scores = append(scores, r.Accuracy)
		totalTime += r.Duration
		totalQ += r.TotalQuestions
		totalRight += r.CorrectAnswers

		if c := r.Metadata.Category; c != "" {
			if categories[c] == nil {
				categories[c] = &catAcc{}
				catOrder = append(catOrder, c)
			}
			categories[c].practices++
			categories[c].score += r.Accuracy
		}
		for typ, perf := range r.QuestionTypePerformance {
			if types[typ] == nil {
				types[typ] = &typeAcc{}
			}
			types[typ].correct += perf.Correct
			types[typ].total += perf.Total
		}
	}

	data := RadarData{
		Categories:    make([]RadarPoint, 0, len(catOrder)),
		QuestionTypes: make([]RadarPoint, 0, len(types)),
	}
	for _, c := range catOrder {
		acc := categories[c]
		data.Categories = append(data.Categories, RadarPoint{
			Key:      c,
			Label:    c,
			Value:    percent(acc.score / float64(acc.practices)),
			MaxValue: 100,
			Color:    colorOr(categoryColors, c, "#9E9E9E"),
		})
	}
	typeNames := make([]string, 0, len(types))
	for typ := range types {
		typeNames = append(typeNames, typ)
	}
	sort.Strings(typeNames)
	for _, typ := range typeNames {
		acc := types[typ]
		data.QuestionTypes = append(data.QuestionTypes, RadarPoint{
			Key:      typ,
			Label:    typ,
			Value:    percent(ratio(float64(acc.correct), float64(acc.total))),
			MaxValue: 100,
			Color:    colorOr(questionTypeColors, typ, "#607D8B"),
		})
	}

	accuracy := ratio(float64(totalRight), float64(totalQ))
	perQuestion := ratio(float64(totalTime), float64(totalQ))
	efficiency := math.Max(0, efficiencyCeiling-perQuestion) / efficiencyCeiling
	// A slope of +/-0.1 per practice maps to the ends of the scale.
	improvement := (slope(scores) + 0.1) / 0.2
	data.OverallMetrics = metricPoints(
		percent(accuracy),
		percent(stability(scores)),
		percent(efficiency),
		percent(improvement),
	)
	return data
}

// DataPoint is one day on the progress curve.
type DataPoint struct {
	Date         string  `json:"date"`
	Day          int     `json:"day"`
	AverageScore float64 `json:"averageScore"`
	Practices    int     `json:"practices"`
	TotalTime    int     `json:"totalTime"`
	BestScore    float64 `json:"bestScore"`
	WorstScore   float64 `json:"worstScore"`
}

// MovingAveragePoint is the trailing mean of daily average scores.
type MovingAveragePoint struct {
	Date          string  `json:"date"`
	Day           int     `json:"day"`
	MovingAverage float64 `json:"movingAverage"`
}

// TrendPoint is one point of the fitted trend line.
type TrendPoint struct {
	Date       string  `json:"date"`
	Day        int     `json:"day"`
	TrendValue float64 `json:"trendValue"`
}

// Milestone marks a notable day. Value is a score for best_score, a day
// count for consecutive_improvement and a practice count for high_volume.
type Milestone struct {
	Type  string  `json:"type"`
	Date  string  `json:"date"`
	Day   int     `json:"day"`
	Value float64 `json:"value"`
	Label string  `json:"label,omitempty"`
}

// ProgressCurve is chart-ready daily progress over a window.
type ProgressCurve struct {
	TimeRange      int                  `json:"timeRange"`
	DataPoints     []DataPoint          `json:"dataPoints"`
	MovingAverages []MovingAveragePoint `json:"movingAverages"`
	TrendLine      []TrendPoint         `json:"trendLine"`
	Milestones     []Milestone          `json:"milestones"`
}

func emptyProgressCurve(timeRange int) ProgressCurve {
	return ProgressCurve{
		TimeRange:      timeRange,
		DataPoints:     []DataPoint{},
		MovingAverages: []MovingAveragePoint{},
		TrendLine:      []TrendPoint{},
		Milestones:     []Milestone{},
	}
}

// GenerateProgressCurveData builds daily data points, a seven-day moving
// average, a fitted trend line and milestones for the completed records
// started within the last windowDays days.
func (e *Engine) GenerateProgressCurveData(records []model.PracticeRecord, windowDays int) ProgressCurve {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if len(records) == 0 {
		return emptyProgressCurve(0)
	}
	return cached(e, fingerprint("progress_curve", records, windowDays), func() ProgressCurve {
		return e.progressCurve(records, windowDays)
	})
}

func (e *Engine) progressCurve(records []model.PracticeRecord, windowDays int) ProgressCurve {
	curve := emptyProgressCurve(windowDays)
	daily := groupByDay(e.inWindow(records, windowDays), e.loc)
	dates := make([]string, 0, len(daily))
	for d := range daily {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	scores := make([]float64, len(dates))
	for i, date := range dates {
		d := daily[date]
		scores[i] = d.AverageScore
		curve.DataPoints = append(curve.DataPoints, DataPoint{
			Date:         date,
			Day:          i + 1,
			AverageScore: d.AverageScore,
			Practices:    d.Practices,
			TotalTime:    d.TotalTime,
			BestScore:    d.BestScore,
			WorstScore:   d.WorstScore,
		})
	}

	for i := movingAverageDays - 1; i < len(scores); i++ {
		curve.MovingAverages = append(curve.MovingAverages, MovingAveragePoint{
			Date:          dates[i],
			Day:           i + 1,
			MovingAverage: mean(scores[i-movingAverageDays+1 : i+1]),
		})
	}

	if len(scores) > 1 {
		trend := slope(scores)
		avg := mean(scores)
		half := float64(len(scores)) / 2
		for i, date := range dates {
			curve.TrendLine = append(curve.TrendLine, TrendPoint{
				Date:       date,
				Day:        i + 1,
				TrendValue: avg + trend*(float64(i)-half),
			})
		}
	}

	curve.Milestones = milestones(curve.DataPoints)
	return curve
}

func milestones(points []DataPoint) []Milestone {
	out := []Milestone{}
	if len(points) == 0 {
		return out
	}

	best := points[0]
	busiest := points[0]
	for _, p := range points[1:] {
		if p.BestScore > best.BestScore {
			best = p
		}
		if p.Practices > busiest.Practices {
			busiest = p
		}
	}
	out = append(out, Milestone{Type: MilestoneBestScore, Date: best.Date, Day: best.Day, Value: best.BestScore})

	run, longest, end := 0, 0, 0
	for i := 1; i < len(points); i++ {
		if points[i].AverageScore > points[i-1].AverageScore {
			run++
			if run > longest {
				longest, end = run, i
			}
		} else {
			run = 0
		}
	}
	if longest >= minImprovementStreak {
		p := points[end]
		out = append(out, Milestone{Type: MilestoneConsecutiveImprovement, Date: p.Date, Day: p.Day, Value: float64(longest)})
	}

	if busiest.Practices >= minHighVolumePractices {
		out = append(out, Milestone{Type: MilestoneHighVolume, Date: busiest.Date, Day: busiest.Day, Value: float64(busiest.Practices)})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}
