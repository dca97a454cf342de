package model

import "time"

// Accuracy grades how correctly one concept appears in an answer.
type Accuracy string

const (
	FullyCorrect     Accuracy = "fully_correct"
	PartiallyCorrect Accuracy = "partially_correct"
	Incorrect        Accuracy = "incorrect"
	NotPresent       Accuracy = "not_present"
)

// Quality is the evaluator's overall judgement of one answer.
type Quality string

const (
	QualityExcellent    Quality = "excellent"
	QualityGood         Quality = "good"
	QualitySatisfactory Quality = "satisfactory"
	QualityPoor         Quality = "poor"
	QualityInadequate   Quality = "inadequate"
)

// Ordinal maps a quality tier to a 1-5 scale (inadequate=1, excellent=5).
// Unknown tiers map to 3 so a malformed value never skews alignment checks.
func (q Quality) Ordinal() int {
	switch q {
	case QualityExcellent:
		return 5
	case QualityGood:
		return 4
	case QualitySatisfactory:
		return 3
	case QualityPoor:
		return 2
	case QualityInadequate:
		return 1
	default:
		return 3
	}
}

// ConceptJudgement records whether one rubric concept was found in the
// answer, how accurately, and the points it earned.
type ConceptJudgement struct {
	Concept        string   `json:"concept"`
	Present        bool     `json:"present"`
	Accuracy       Accuracy `json:"accuracy"`
	Evidence       string   `json:"evidence"`
	PointsEarned   float64  `json:"points_earned"`
	PointsPossible float64  `json:"points_possible"`
	Feedback       string   `json:"feedback,omitempty"`
}

// Evaluation is the complete judgement of one answer against its rubric.
// Evaluations are immutable once created; a correction produces a new one.
type Evaluation struct {
	QuestionID     string             `json:"question_id"`
	QuestionNumber string             `json:"question_number,omitempty"`
	Concepts       []ConceptJudgement `json:"concepts_identified"`
	OverallQuality Quality            `json:"overall_quality"`
	Strengths      []string           `json:"strengths,omitempty"`
	Weaknesses     []string           `json:"weaknesses,omitempty"`
	Misconceptions []string           `json:"misconceptions,omitempty"`
	Confidence     float64            `json:"confidence_score"`
	MarksAwarded   float64            `json:"marks_awarded"`
	MaxMarks       float64            `json:"max_marks"`
	NeedsReview    bool               `json:"requires_human_review,omitempty"`
	ReviewReason   string             `json:"review_reason,omitempty"`
	EvaluatedAt    time.Time          `json:"evaluated_at"`
}

// ConceptPointsEarned sums the points earned across all concept judgements,
// without applying the per-question ceiling.
func (e *Evaluation) ConceptPointsEarned() float64 {
	var sum float64
	for _, c := range e.Concepts {
		sum += c.PointsEarned
	}
	return sum
}

// Percentage returns the score for this answer as 0-100.
func (e *Evaluation) Percentage() float64 {
	if e.MaxMarks == 0 {
		return 0
	}
	return e.MarksAwarded / e.MaxMarks * 100
}

// QuestionScore is one question's line in the score sheet.
type QuestionScore struct {
	QuestionID   string  `json:"question_id"`
	MarksAwarded float64 `json:"marks_awarded"`
	MaxMarks     float64 `json:"max_marks"`
	Percentage   float64 `json:"percentage"`
	Quality      Quality `json:"quality,omitempty"`
}

// ScoreSheet is the numeric aggregation of all evaluations for one
// submission. It is derived deterministically and never hand-edited.
type ScoreSheet struct {
	TotalMarks     float64         `json:"total_marks"`
	MaxMarks       float64         `json:"max_marks"`
	Percentage     float64         `json:"percentage"`
	Grade          string          `json:"grade"`
	Passed         bool            `json:"passed"`
	QuestionScores []QuestionScore `json:"question_scores"`
}

// QuestionsPassed counts questions scored at 50% or above.
func (s *ScoreSheet) QuestionsPassed() int {
	n := 0
	for _, q := range s.QuestionScores {
		if q.Percentage >= 50 {
			n++
		}
	}
	return n
}

// Severity ranks how serious an audit flag is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Flag is a soft quality-assurance concern raised by the audit.
type Flag struct {
	QuestionID string            `json:"question_id"`
	Reason     string            `json:"reason"`
	Severity   Severity          `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
}

// Issue is a hard audit failure; any issue fails the whole audit.
type Issue struct {
	QuestionID  string `json:"question_id"`
	Description string `json:"description"`
}

// ConfidenceTier summarizes how much the audit trusts the evaluation set.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

// AuditResult is the output of the consistency engine for one submission.
type AuditResult struct {
	Passed           bool           `json:"passed"`
	RequiresReview   bool           `json:"requires_human_review"`
	Flags            []Flag         `json:"flags"`
	Issues           []Issue        `json:"issues"`
	ConfidenceTier   ConfidenceTier `json:"confidence_level"`
	ConsistencyScore float64        `json:"consistency_score"`
	Recommendations  []string       `json:"recommendations,omitempty"`
	AuditedAt        time.Time      `json:"audited_at"`
}
