package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/marker/internal/llm"
	"github.com/pavelanni/marker/internal/llm/prompts"
	"github.com/pavelanni/marker/internal/model"
)

// Analyzer is the LLM-backed QuestionAnalyzer.
type Analyzer struct {
	client llm.Client
}

func NewAnalyzer(client llm.Client) *Analyzer {
	return &Analyzer{client: client}
}

type analysisPayload struct {
	QuestionType   model.QuestionType       `json:"question_type"`
	KeyConcepts    []model.KeyConcept       `json:"key_concepts"`
	Criteria       model.EvaluationCriteria `json:"evaluation_criteria"`
	Keywords       []string                 `json:"keywords"`
	CommonMistakes []string                 `json:"common_mistakes"`
}

// AnalyzeQuestion builds the rubric for one raw question. The question ID
// is derived from the question number and stays stable for the lifetime of
// the guide: downstream evaluation matching is by this ID.
func (a *Analyzer) AnalyzeQuestion(ctx context.Context, raw model.RawQuestion) (*model.AnalyzedQuestion, error) {
	var payload analysisPayload
	prompt := prompts.BuildAnalysisPrompt(raw)
	if err := completeJSON(ctx, a.client, prompts.AnalyzerSystem, prompt, &payload); err != nil {
		return nil, fmt.Errorf("analyze question %s: %w", raw.Number, err)
	}

	q := &model.AnalyzedQuestion{
		ID:             questionID(raw.Number),
		Number:         raw.Number,
		Text:           raw.Text,
		Type:           payload.QuestionType,
		MaxMarks:       raw.MaxMarks,
		KeyConcepts:    payload.KeyConcepts,
		Criteria:       payload.Criteria,
		Keywords:       payload.Keywords,
		CommonMistakes: payload.CommonMistakes,
		SampleAnswer:   raw.SampleAnswer,
		Options:        raw.Options,
		CorrectAnswer:  raw.CorrectAnswer,
	}

	if diff := q.ConceptPoints() - q.MaxMarks; diff > 1.0 || diff < -1.0 {
		slog.Warn("concept points diverge from max marks",
			"question", q.ID, "concept_points", q.ConceptPoints(), "max_marks", q.MaxMarks)
	}

	return q, nil
}

func questionID(number string) string {
	n := strings.TrimSpace(number)
	n = strings.TrimSuffix(n, ".")
	return "q" + n
}
