package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient returns canned structured responses for local development
// without a backend. It keys off the prompt's section tags to decide which
// schema the caller expects.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	var content string
	switch {
	case strings.Contains(req.Prompt, "<question_to_analyze>"):
		content = mockAnalysisJSON
	case strings.Contains(req.Prompt, "<student_answer>"):
		content = mockEvaluationJSON
	case strings.Contains(req.Prompt, "<performance_summary>"):
		content = mockOverallFeedbackJSON
	case strings.Contains(req.Prompt, "<evaluation_summary>"):
		content = mockQuestionFeedbackJSON
	default:
		return nil, fmt.Errorf("mock client: unrecognized prompt shape")
	}
	return &Response{
		Content:      content,
		PromptTokens: 1500,
		OutputTokens: 500,
	}, nil
}

func (m *MockClient) Ping(ctx context.Context) error { return nil }

const mockAnalysisJSON = `{
  "question_type": "short_answer",
  "key_concepts": [
    {"concept": "[Mock] First key idea", "points": 3, "mandatory": true, "keywords": ["first", "idea"]},
    {"concept": "[Mock] Supporting detail", "points": 2, "mandatory": false, "keywords": ["detail"]}
  ],
  "evaluation_criteria": {
    "excellent": "[Mock] All concepts clearly explained with examples",
    "good": "[Mock] Most concepts present with minor gaps",
    "satisfactory": "[Mock] Basic concepts present but incomplete",
    "poor": "[Mock] Missing most key concepts"
  },
  "keywords": ["mock"],
  "common_mistakes": ["[Mock] Confusing the two ideas"]
}`

const mockEvaluationJSON = `{
  "concepts_identified": [
    {"concept": "[Mock] First key idea", "present": true, "accuracy": "fully_correct", "evidence": "[Mock] quoted text", "points_earned": 3, "points_possible": 3},
    {"concept": "[Mock] Supporting detail", "present": false, "accuracy": "not_present", "evidence": "", "points_earned": 0, "points_possible": 2}
  ],
  "overall_quality": "good",
  "strengths": ["[Mock] Clear explanation of the main idea"],
  "weaknesses": ["[Mock] Missing supporting detail"],
  "misconceptions": [],
  "confidence_score": 0.9,
  "requires_human_review": false,
  "review_reason": ""
}`

const mockQuestionFeedbackJSON = `{
  "feedback": "[Mock] A solid answer that covers the main idea well.",
  "strengths": ["[Mock] Main idea identified"],
  "improvement_areas": ["[Mock] Add the supporting detail"],
  "suggestions": ["[Mock] Revisit the relevant chapter"]
}`

const mockOverallFeedbackJSON = `{
  "overall_feedback": "[Mock] Good work overall with room to grow.",
  "key_strengths": ["[Mock] Conceptual understanding"],
  "key_improvements": ["[Mock] Completeness of answers"],
  "study_recommendations": ["[Mock] Practice past papers"],
  "encouragement": "[Mock] Keep it up!"
}`
