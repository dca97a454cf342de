// Package document is the ingestion boundary. Text extraction from
// scanned or binary formats (PDF, OCR) lives behind the Extractor
// interface and stays outside the core; this package ships a plain-text
// extractor and the structured parsers for the JSON interchange format
// the CLI and API consume.
package document

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pavelanni/marker/internal/model"
)

// ExtractedDocument is the ingestion result the core consumes.
type ExtractedDocument struct {
	Text      string
	Scanned   bool
	PageCount int
}

// Extractor turns raw document bytes into plain text. Implementations
// with OCR fallback are invisible to callers.
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) (*ExtractedDocument, error)
}

// PlainText extracts UTF-8 text documents as-is. Pages are counted by
// form feed separators.
type PlainText struct{}

func (PlainText) Extract(ctx context.Context, data []byte, filename string) (*ExtractedDocument, error) {
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document %s is empty", filename)
	}
	return &ExtractedDocument{
		Text:      text,
		Scanned:   false,
		PageCount: strings.Count(text, "\f") + 1,
	}, nil
}

// GuideDocument is the structured form of an uploaded marking guide
// before its questions are analyzed.
type GuideDocument struct {
	Title      string              `json:"title"`
	Subject    string              `json:"subject,omitempty"`
	Grade      string              `json:"grade,omitempty"`
	TotalMarks float64             `json:"total_marks,omitempty"`
	Questions  []model.RawQuestion `json:"questions"`
}

// ParseGuide decodes and validates a guide document.
func ParseGuide(text string) (*GuideDocument, error) {
	var doc GuideDocument
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("parse guide document: %w", err)
	}
	if doc.Title == "" {
		return nil, fmt.Errorf("guide document has no title")
	}
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("guide document has no questions")
	}
	for i, q := range doc.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return nil, fmt.Errorf("question %d has no text", i+1)
		}
		if q.MaxMarks <= 0 {
			return nil, fmt.Errorf("question %d has non-positive max marks", i+1)
		}
		if strings.TrimSpace(q.Number) == "" {
			doc.Questions[i].Number = fmt.Sprintf("%d", i+1)
		}
	}
	return &doc, nil
}

// AnswerDocument is the structured form of an uploaded answer sheet.
type AnswerDocument struct {
	StudentName string         `json:"student_name,omitempty"`
	Answers     []model.Answer `json:"answers"`
}

// ParseAnswerSheet decodes and validates an answer sheet document.
func ParseAnswerSheet(text string) (*AnswerDocument, error) {
	var doc AnswerDocument
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("parse answer sheet: %w", err)
	}
	if len(doc.Answers) == 0 {
		return nil, fmt.Errorf("answer sheet has no answers")
	}
	for i := range doc.Answers {
		a := &doc.Answers[i]
		if a.QuestionID == "" {
			return nil, fmt.Errorf("answer %d has no question_id", i+1)
		}
		if strings.TrimSpace(a.Text) == "" {
			a.Blank = true
		}
	}
	return &doc, nil
}
