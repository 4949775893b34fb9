package coach

import (
	"bytes"
	"embed"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/analytics"
)

//go:embed prompts/*.txt
var promptFS embed.FS

// Tone selects a prompt variant.
type Tone string

const (
	ToneConcise     Tone = "concise"
	ToneStandard    Tone = "standard"
	ToneEncouraging Tone = "encouraging"
)

var validTones = map[Tone]bool{
	ToneConcise:     true,
	ToneStandard:    true,
	ToneEncouraging: true,
}

// IsValidTone checks if a tone name is valid.
func IsValidTone(t string) bool {
	return validTones[Tone(t)]
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Tone]*template.Template
)

var dataTagRegex = regexp.MustCompile(`(?i)</?\s*practice-data\b[^>]*>`)

const maxNameRunes = 60

func loadTemplates() error {
	loadOnce.Do(func() {
		templates = make(map[Tone]*template.Template)
		for tone := range validTones {
			file := "prompts/advice_" + string(tone) + ".txt"
			content, err := promptFS.ReadFile(file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New(string(tone)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			templates[tone] = tmpl
		}
	})
	return loadErr
}

// Summary is the practice picture the coach is asked about.
type Summary struct {
	Basic         analytics.BasicStats
	Categories    map[string]analytics.CategoryPerformance
	QuestionTypes map[string]analytics.QuestionTypePerformance
	Trends        analytics.TrendAnalysis
	StreakDays    int
	// Language is the locale the advice should be written in, "en" or "zh".
	Language string
}

type namedScore struct {
	Name      string
	Percent   int
	Practices int
}

type promptData struct {
	Practices      int
	AveragePercent int
	BestPercent    int
	WorstPercent   int
	Trend          string
	WindowDays     int
	Intensity      string
	ActiveDays     int
	StreakDays     int
	Categories     []namedScore
	WeakTypes      []namedScore
	Language       string
}

const maxWeakTypes = 3

// BuildPrompt renders the system prompt for tone.
func BuildPrompt(tone Tone, s Summary) (string, error) {
	if err := loadTemplates(); err != nil {
		return "", err
	}
	tmpl, ok := templates[tone]
	if !ok {
		return "", fmt.Errorf("invalid tone %q", tone)
	}

	data := promptData{
		Practices:      s.Basic.TotalPractices,
		AveragePercent: pct(s.Basic.AverageScore),
		BestPercent:    pct(s.Basic.BestScore),
		WorstPercent:   pct(s.Basic.WorstScore),
		Trend:          trendLabel(s.Basic.ImprovementTrend),
		WindowDays:     s.Trends.TimeRange,
		Intensity:      s.Trends.LearningIntensity,
		ActiveDays:     s.Trends.ActiveDays,
		StreakDays:     s.StreakDays,
		Language:       languageName(s.Language),
	}
	if data.Intensity == "" {
		data.Intensity = analytics.IntensityLow
	}

	for name, c := range s.Categories {
		data.Categories = append(data.Categories, namedScore{Name: sanitizeName(name), Percent: pct(c.AverageScore), Practices: c.Practices})
	}
	// Weakest first.
	sort.Slice(data.Categories, func(i, j int) bool {
		if data.Categories[i].Percent != data.Categories[j].Percent {
			return data.Categories[i].Percent < data.Categories[j].Percent
		}
		return data.Categories[i].Name < data.Categories[j].Name
	})

	for name, q := range s.QuestionTypes {
		data.WeakTypes = append(data.WeakTypes, namedScore{Name: sanitizeName(name), Percent: pct(q.OverallAccuracy), Practices: q.Practices})
	}
	sort.Slice(data.WeakTypes, func(i, j int) bool {
		if data.WeakTypes[i].Percent != data.WeakTypes[j].Percent {
			return data.WeakTypes[i].Percent < data.WeakTypes[j].Percent
		}
		return data.WeakTypes[i].Name < data.WeakTypes[j].Name
	})
	if len(data.WeakTypes) > maxWeakTypes {
		data.WeakTypes = data.WeakTypes[:maxWeakTypes]
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func pct(v float64) int {
	return int(math.Round(v * 100))
}

func trendLabel(slope float64) string {
	switch {
	case slope > 0.01:
		return "improving"
	case slope < -0.01:
		return "declining"
	}
	return "steady"
}

func languageName(lang string) string {
	if strings.HasPrefix(lang, "zh") {
		return "Simplified Chinese"
	}
	return "English"
}

// sanitizeName strips data delimiters from user-supplied names and caps their length.
func sanitizeName(name string) string {
	name = dataTagRegex.ReplaceAllString(name, "")
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "[unnamed]"
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		name = string([]rune(name)[:maxNameRunes])
	}
	return name
}
