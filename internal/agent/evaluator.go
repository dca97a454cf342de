package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/marker/internal/llm"
	"github.com/pavelanni/marker/internal/llm/prompts"
	"github.com/pavelanni/marker/internal/model"
)

// Evaluator is the LLM-backed AnswerEvaluator.
type Evaluator struct {
	client llm.Client
}

func NewEvaluator(client llm.Client) *Evaluator {
	return &Evaluator{client: client}
}

type evaluationPayload struct {
	Concepts       []model.ConceptJudgement `json:"concepts_identified"`
	OverallQuality model.Quality            `json:"overall_quality"`
	Strengths      []string                 `json:"strengths"`
	Weaknesses     []string                 `json:"weaknesses"`
	Misconceptions []string                 `json:"misconceptions"`
	Confidence     float64                  `json:"confidence_score"`
	NeedsReview    bool                     `json:"requires_human_review"`
	ReviewReason   string                   `json:"review_reason"`
}

// EvaluateAnswer judges one answer against its rubric. The awarded marks
// are the sum of concept points earned, capped at the question maximum.
func (e *Evaluator) EvaluateAnswer(ctx context.Context, q *model.AnalyzedQuestion, answer string) (*model.Evaluation, error) {
	var payload evaluationPayload
	prompt := prompts.BuildEvaluationPrompt(q, answer)
	if err := completeJSON(ctx, e.client, prompts.EvaluatorSystem, prompt, &payload); err != nil {
		return nil, fmt.Errorf("evaluate answer for question %s: %w", q.ID, err)
	}

	eval := &model.Evaluation{
		QuestionID:     q.ID,
		QuestionNumber: q.Number,
		Concepts:       payload.Concepts,
		OverallQuality: payload.OverallQuality,
		Strengths:      payload.Strengths,
		Weaknesses:     payload.Weaknesses,
		Misconceptions: payload.Misconceptions,
		Confidence:     payload.Confidence,
		MaxMarks:       q.MaxMarks,
		NeedsReview:    payload.NeedsReview,
		ReviewReason:   payload.ReviewReason,
		EvaluatedAt:    time.Now().UTC(),
	}

	marks := eval.ConceptPointsEarned()
	if marks > q.MaxMarks {
		marks = q.MaxMarks
	}
	eval.MarksAwarded = marks

	return eval, nil
}
