package model

import (
	"math"
	"time"
)

// QuestionType classifies how a question is answered and marked.
type QuestionType string

const (
	TypeMCQ         QuestionType = "mcq"
	TypeShortAnswer QuestionType = "short_answer"
	TypeEssay       QuestionType = "essay"
	TypeNumerical   QuestionType = "numerical"
	TypeTrueFalse   QuestionType = "true_false"
	TypeMixed       QuestionType = "mixed"
)

// KeyConcept is one concept the marker looks for in an answer, with the
// points it carries.
type KeyConcept struct {
	Concept     string   `json:"concept"`
	Points      float64  `json:"points"`
	Mandatory   bool     `json:"mandatory"`
	Keywords    []string `json:"keywords,omitempty"`
	Description string   `json:"description,omitempty"`
}

// EvaluationCriteria describes the four rubric tiers for a question.
type EvaluationCriteria struct {
	Excellent    string `json:"excellent"`
	Good         string `json:"good"`
	Satisfactory string `json:"satisfactory"`
	Poor         string `json:"poor"`
}

// RawQuestion is a question as extracted from an uploaded guide document,
// before analysis has produced a rubric for it.
type RawQuestion struct {
	Number        string   `json:"question_number"`
	Text          string   `json:"question_text"`
	MaxMarks      float64  `json:"max_marks"`
	MarkingNotes  string   `json:"marking_notes,omitempty"`
	SampleAnswer  string   `json:"sample_answer,omitempty"`
	Options       []Option `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
}

// Option is one choice of an MCQ or true/false question.
type Option struct {
	Label     string `json:"label"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

// AnalyzedQuestion is a question with its complete evaluation rubric.
// It is produced once per question when a guide is uploaded and is
// immutable afterwards; evaluations reference it by ID.
type AnalyzedQuestion struct {
	ID             string             `json:"id"`
	Number         string             `json:"question_number"`
	Text           string             `json:"question_text"`
	Type           QuestionType       `json:"question_type"`
	MaxMarks       float64            `json:"max_marks"`
	KeyConcepts    []KeyConcept       `json:"key_concepts"`
	Criteria       EvaluationCriteria `json:"evaluation_criteria"`
	Keywords       []string           `json:"keywords,omitempty"`
	CommonMistakes []string           `json:"common_mistakes,omitempty"`
	SampleAnswer   string             `json:"sample_answer,omitempty"`
	Options        []Option           `json:"options,omitempty"`
	CorrectAnswer  string             `json:"correct_answer,omitempty"`
}

// ConceptPoints sums the points allocated to the question's key concepts.
// A large mismatch with MaxMarks is a data-quality warning, not an error.
func (q *AnalyzedQuestion) ConceptPoints() float64 {
	var sum float64
	for _, c := range q.KeyConcepts {
		sum += c.Points
	}
	return sum
}

// MarkingGuide is the complete, analyzed marking scheme for one assessment.
// A guide is never mutated after creation: a corrected guide gets a new ID.
type MarkingGuide struct {
	Title      string             `json:"title"`
	Subject    string             `json:"subject,omitempty"`
	Grade      string             `json:"grade,omitempty"`
	TotalMarks float64            `json:"total_marks"`
	Questions  []AnalyzedQuestion `json:"questions"`
	SourceFile string             `json:"source_file,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Question returns the question with the given ID, or nil.
func (g *MarkingGuide) Question(id string) *AnalyzedQuestion {
	for i := range g.Questions {
		if g.Questions[i].ID == id {
			return &g.Questions[i]
		}
	}
	return nil
}

// ValidateTotalMarks reports whether the per-question marks sum to the
// declared total, within a small tolerance for floating point error.
func (g *MarkingGuide) ValidateTotalMarks() bool {
	var sum float64
	for _, q := range g.Questions {
		sum += q.MaxMarks
	}
	return math.Abs(sum-g.TotalMarks) < 0.01
}

// Answer is one student's response to one question.
type Answer struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"answer_text"`
	Blank      bool   `json:"is_blank,omitempty"`
}

// AnswerSheet is everything a student submitted for one assessment.
type AnswerSheet struct {
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name,omitempty"`
	Answers     []Answer  `json:"answers"`
	SubmittedAt time.Time `json:"submitted_at"`
	SourceFile  string    `json:"source_file,omitempty"`
}

// Answer returns the answer for the given question ID, or nil if the
// student did not answer it.
func (s *AnswerSheet) Answer(questionID string) *Answer {
	for i := range s.Answers {
		if s.Answers[i].QuestionID == questionID {
			return &s.Answers[i]
		}
	}
	return nil
}

// AnsweredCount counts non-blank answers.
func (s *AnswerSheet) AnsweredCount() int {
	n := 0
	for _, a := range s.Answers {
		if !a.Blank {
			n++
		}
	}
	return n
}
