package handler

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/analytics"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/coach"
	appI18n "github.com/sallowayma-git/IELTS-practice-sub003/internal/i18n"
)

// trendResponse adds the localized intensity label to a trend analysis.
type trendResponse struct {
	analytics.TrendAnalysis
	LearningIntensityLabel string `json:"learningIntensityLabel"`
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	window, err := h.windowParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	records, err := h.chronological(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	switch kind := chi.URLParam(r, "kind"); kind {
	case "basic":
		writeJSON(w, http.StatusOK, h.engine.CalculateBasicStats(records))
	case "categories":
		writeJSON(w, http.StatusOK, h.engine.AnalyzeCategoryPerformance(records))
	case "question-types":
		writeJSON(w, http.StatusOK, h.engine.AnalyzeQuestionTypePerformance(records))
	case "trends":
		trends := h.engine.AnalyzeLearningTrends(records, window)
		writeJSON(w, http.StatusOK, trendResponse{
			TrendAnalysis:          trends,
			LearningIntensityLabel: appI18n.Label(ctx, "Intensity", trends.LearningIntensity),
		})
	case "radar":
		writeJSON(w, http.StatusOK, localizeRadar(ctx, h.engine.GenerateRadarChartData(records)))
	case "progress":
		writeJSON(w, http.StatusOK, localizeProgress(ctx, h.engine.GenerateProgressCurveData(records, window)))
	default:
		writeJSON(w, http.StatusNotFound, errorBody{Error: appI18n.T(ctx, "UnknownAnalysis"), Detail: kind})
	}
}

func (h *Handler) windowParam(r *http.Request) (int, error) {
	s := r.URL.Query().Get("window")
	if s == "" {
		return h.config.WindowDays, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, badRequest("invalid window %q", s)
	}
	return n, nil
}

// localizeRadar returns a copy of data with translated labels. Cached
// results are shared, so the slices are never written in place.
func localizeRadar(ctx context.Context, data analytics.RadarData) analytics.RadarData {
	return analytics.RadarData{
		Categories:     relabel(ctx, "Category", data.Categories),
		QuestionTypes:  relabel(ctx, "QuestionType", data.QuestionTypes),
		OverallMetrics: relabel(ctx, "Metric", data.OverallMetrics),
	}
}

func relabel(ctx context.Context, group string, points []analytics.RadarPoint) []analytics.RadarPoint {
	out := make([]analytics.RadarPoint, len(points))
	for i, p := range points {
		p.Label = appI18n.Label(ctx, group, p.Key)
		out[i] = p
	}
	return out
}

func localizeProgress(ctx context.Context, curve analytics.ProgressCurve) analytics.ProgressCurve {
	milestones := make([]analytics.Milestone, len(curve.Milestones))
	for i, m := range curve.Milestones {
		msgID := "Milestone_" + m.Type
		if m.Type == analytics.MilestoneBestScore {
			m.Label = appI18n.Td(ctx, msgID, map[string]any{"Percent": int(math.Round(m.Value * 100))})
		} else {
			m.Label = appI18n.Td(ctx, msgID, map[string]any{"Count": int(m.Value)})
		}
		milestones[i] = m
	}
	curve.Milestones = milestones
	return curve
}

func (h *Handler) handleAdvice(w http.ResponseWriter, r *http.Request) {
	if h.coach == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: appI18n.T(r.Context(), "AdviceDisabled")})
		return
	}
	window, err := h.windowParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	records, err := h.chronological(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	stats, err := h.store.GetUserStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	lang := appI18n.Match(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"), h.config.Lang)
	summary := coach.Summarize(h.engine, records, stats, window, lang)
	advice, err := h.coach.Advise(r.Context(), summary)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, advice)
}
