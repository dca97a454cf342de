package model

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// QuestionFeedback is constructive feedback for one answer.
type QuestionFeedback struct {
	QuestionID       string   `json:"question_id"`
	Feedback         string   `json:"feedback"`
	Strengths        []string `json:"strengths,omitempty"`
	ImprovementAreas []string `json:"improvement_areas,omitempty"`
	Suggestions      []string `json:"suggestions,omitempty"`
}

// FeedbackReport is the full feedback for one submission: an overall
// summary plus one entry per evaluated question.
type FeedbackReport struct {
	OverallFeedback      string             `json:"overall_feedback"`
	QuestionFeedback     []QuestionFeedback `json:"question_feedback"`
	KeyStrengths         []string           `json:"key_strengths,omitempty"`
	KeyImprovements      []string           `json:"key_improvements,omitempty"`
	StudyRecommendations []string           `json:"study_recommendations,omitempty"`
	Encouragement        string             `json:"encouragement,omitempty"`
}

// ReviewPriority orders reports in a human reviewer's queue.
type ReviewPriority string

const (
	PriorityLow    ReviewPriority = "low"
	PriorityMedium ReviewPriority = "medium"
	PriorityHigh   ReviewPriority = "high"
)

// EvaluationReport is the terminal aggregate for one marked submission.
// A report is created once and never mutated; a re-mark of changed input
// produces a new report.
type EvaluationReport struct {
	StudentID       string          `json:"student_id"`
	StudentName     string          `json:"student_name,omitempty"`
	GuideID         string          `json:"guide_id"`
	AssessmentTitle string          `json:"assessment_title"`
	ScoreSheet      ScoreSheet      `json:"scoring_result"`
	Evaluations     []Evaluation    `json:"question_evaluations"`
	Feedback        FeedbackReport  `json:"feedback_report"`
	Audit           AuditResult     `json:"qa_result"`
	RequiresReview  bool            `json:"requires_review"`
	ReviewPriority  ReviewPriority  `json:"review_priority"`
	MarkedBy        string          `json:"marked_by"`
	MarkedAt        time.Time       `json:"marked_at"`
	ProcessingTime  time.Duration   `json:"processing_time_ns"`
}

// WriteJSON serializes the report field-for-field. The round trip through
// ReadJSON is lossless for all nested structures.
func (r *EvaluationReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// ReadJSON deserializes a report previously written with WriteJSON.
func ReadJSON(r io.Reader) (*EvaluationReport, error) {
	var report EvaluationReport
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
