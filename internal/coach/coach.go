// Package coach asks an OpenAI-compatible model for study advice based on
// practice analytics.
package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/analytics"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
)

// ErrNoPractice is returned when there is nothing to advise on.
var ErrNoPractice = errors.New("no completed practice to advise on")

// Advice is the model's structured response.
type Advice struct {
	Summary    string   `json:"summary"`
	FocusAreas []string `json:"focusAreas"`
	NextSteps  []string `json:"nextSteps"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
	tone  Tone
}

// New creates a coach client. An empty tone means standard.
func New(baseURL, apiKey, modelName, tone string) (*Client, error) {
	if tone == "" {
		tone = string(ToneStandard)
	}
	if !IsValidTone(tone) {
		return nil, fmt.Errorf("invalid advice tone %q", tone)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		tone:  Tone(tone),
	}, nil
}

// Ping checks that the endpoint is reachable and lists models.
func (c *Client) Ping(ctx context.Context) error {
	models, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	slog.Debug("LLM endpoint reachable", "models", len(models.Models))
	return nil
}

// Advise requests study advice for the summary.
func (c *Client) Advise(ctx context.Context, s Summary) (*Advice, error) {
	if s.Basic.TotalPractices == 0 {
		return nil, ErrNoPractice
	}
	systemPrompt, err := BuildPrompt(c.tone, s)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "What should I focus on next?"},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.4,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseAdvice(raw)
}

func parseAdvice(raw string) (*Advice, error) {
	var advice Advice
	if err := json.Unmarshal([]byte(raw), &advice); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	if advice.FocusAreas == nil {
		advice.FocusAreas = []string{}
	}
	if advice.NextSteps == nil {
		advice.NextSteps = []string{}
	}
	return &advice, nil
}

// Summarize runs the analyses the coach needs over records.
func Summarize(e *analytics.Engine, records []model.PracticeRecord, stats model.UserStats, windowDays int, lang string) Summary {
	return Summary{
		Basic:         e.CalculateBasicStats(records),
		Categories:    e.AnalyzeCategoryPerformance(records),
		QuestionTypes: e.AnalyzeQuestionTypePerformance(records),
		Trends:        e.AnalyzeLearningTrends(records, windowDays),
		StreakDays:    stats.StreakDays,
		Language:      lang,
	}
}
