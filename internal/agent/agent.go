// Package agent implements the capability ports of the marking pipeline:
// question analysis, answer evaluation, and feedback generation, each
// backed by a structured-extraction LLM call.
package agent

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pavelanni/marker/internal/llm"
	"github.com/pavelanni/marker/internal/model"
)

// QuestionAnalyzer turns a raw question from a marking guide into a rubric.
type QuestionAnalyzer interface {
	AnalyzeQuestion(ctx context.Context, raw model.RawQuestion) (*model.AnalyzedQuestion, error)
}

// AnswerEvaluator judges one student answer against its rubric.
type AnswerEvaluator interface {
	EvaluateAnswer(ctx context.Context, q *model.AnalyzedQuestion, answer string) (*model.Evaluation, error)
}

// FeedbackGenerator produces the feedback report for an evaluated
// submission.
type FeedbackGenerator interface {
	GenerateFeedback(ctx context.Context, evals []model.Evaluation, scores *model.ScoreSheet) (*model.FeedbackReport, error)
}

const (
	// Marking runs at temperature 0 for consistency. On a structured
	// parse failure one retry is made with a small bump, capped at 0.3;
	// callers above this package only see success or final failure.
	baseTemperature  = 0.0
	retryBump        = 0.2
	maxRetryTemp     = 0.3
	defaultMaxTokens = 8192
)

// completeJSON performs one structured completion and strictly decodes the
// response into v, retrying once on a malformed response.
func completeJSON(ctx context.Context, client llm.Client, system, prompt string, v any) error {
	req := llm.Request{
		System:      system,
		Prompt:      prompt,
		Temperature: baseTemperature,
		MaxTokens:   defaultMaxTokens,
	}

	resp, err := client.Complete(ctx, req)
	if err != nil {
		return err
	}
	err = llm.Decode(resp.Content, v)
	if err == nil {
		return nil
	}

	var parseErr *llm.ParseError
	if !errors.As(err, &parseErr) {
		return err
	}

	retryTemp := baseTemperature + retryBump
	if retryTemp > maxRetryTemp {
		retryTemp = maxRetryTemp
	}
	slog.Debug("retrying malformed structured response", "temperature", retryTemp, "error", parseErr.Err)

	req.Temperature = retryTemp
	resp, err = client.Complete(ctx, req)
	if err != nil {
		return err
	}
	return llm.Decode(resp.Content, v)
}
