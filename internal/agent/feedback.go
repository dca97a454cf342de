package agent

import (
	"context"
	"fmt"

	"github.com/pavelanni/marker/internal/llm"
	"github.com/pavelanni/marker/internal/llm/prompts"
	"github.com/pavelanni/marker/internal/model"
)

// Feedback is the LLM-backed FeedbackGenerator. It makes one call per
// evaluated question and one aggregate call for the overall summary.
type Feedback struct {
	client llm.Client
}

func NewFeedback(client llm.Client) *Feedback {
	return &Feedback{client: client}
}

type questionFeedbackPayload struct {
	Feedback         string   `json:"feedback"`
	Strengths        []string `json:"strengths"`
	ImprovementAreas []string `json:"improvement_areas"`
	Suggestions      []string `json:"suggestions"`
}

type overallFeedbackPayload struct {
	OverallFeedback      string   `json:"overall_feedback"`
	KeyStrengths         []string `json:"key_strengths"`
	KeyImprovements      []string `json:"key_improvements"`
	StudyRecommendations []string `json:"study_recommendations"`
	Encouragement        string   `json:"encouragement"`
}

func (f *Feedback) GenerateFeedback(ctx context.Context, evals []model.Evaluation, scores *model.ScoreSheet) (*model.FeedbackReport, error) {
	report := &model.FeedbackReport{}

	for i := range evals {
		var payload questionFeedbackPayload
		prompt := prompts.BuildQuestionFeedbackPrompt(&evals[i])
		if err := completeJSON(ctx, f.client, prompts.FeedbackSystem, prompt, &payload); err != nil {
			return nil, fmt.Errorf("feedback for question %s: %w", evals[i].QuestionID, err)
		}
		report.QuestionFeedback = append(report.QuestionFeedback, model.QuestionFeedback{
			QuestionID:       evals[i].QuestionID,
			Feedback:         payload.Feedback,
			Strengths:        payload.Strengths,
			ImprovementAreas: payload.ImprovementAreas,
			Suggestions:      payload.Suggestions,
		})
	}

	var overall overallFeedbackPayload
	prompt := prompts.BuildOverallFeedbackPrompt(evals, scores)
	if err := completeJSON(ctx, f.client, prompts.FeedbackSystem, prompt, &overall); err != nil {
		return nil, fmt.Errorf("overall feedback: %w", err)
	}

	report.OverallFeedback = overall.OverallFeedback
	report.KeyStrengths = overall.KeyStrengths
	report.KeyImprovements = overall.KeyImprovements
	report.StudyRecommendations = overall.StudyRecommendations
	report.Encouragement = overall.Encouragement

	return report, nil
}
