package model

import (
	"bytes"
	"reflect"
	"testing"
	"time"
)

func TestReportJSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	report := &EvaluationReport{
		StudentID:       "s42",
		StudentName:     "Sam",
		GuideID:         "guide_deadbeef",
		AssessmentTitle: "Midterm",
		ScoreSheet: ScoreSheet{
			TotalMarks: 10,
			MaxMarks:   15,
			Percentage: 66.67,
			Grade:      "B-",
			Passed:     true,
			QuestionScores: []QuestionScore{
				{QuestionID: "q1", MarksAwarded: 5, MaxMarks: 5, Percentage: 100, Quality: QualityExcellent},
				{QuestionID: "q2", MarksAwarded: 5, MaxMarks: 10, Percentage: 50, Quality: QualitySatisfactory},
			},
		},
		Evaluations: []Evaluation{
			{
				QuestionID:     "q1",
				QuestionNumber: "1",
				OverallQuality: QualityExcellent,
				Confidence:     0.95,
				MarksAwarded:   5,
				MaxMarks:       5,
				EvaluatedAt:    now,
				Concepts: []ConceptJudgement{
					{Concept: "c1", Present: true, Accuracy: FullyCorrect, Evidence: "quoted", PointsEarned: 5, PointsPossible: 5},
				},
			},
		},
		Feedback: FeedbackReport{
			OverallFeedback: "Good work",
			QuestionFeedback: []QuestionFeedback{
				{QuestionID: "q1", Feedback: "well argued", Strengths: []string{"clarity"}},
			},
			KeyStrengths:  []string{"concepts"},
			Encouragement: "keep going",
		},
		Audit: AuditResult{
			Passed:           true,
			Flags:            []Flag{{QuestionID: "q2", Reason: "Low confidence score", Severity: SeverityMedium, Details: map[string]string{"confidence": "0.50"}}},
			RequiresReview:   true,
			ConfidenceTier:   ConfidenceMedium,
			ConsistencyScore: 0.95,
			AuditedAt:        now,
		},
		RequiresReview: true,
		ReviewPriority: PriorityMedium,
		MarkedBy:       "AI Marker",
		MarkedAt:       now,
		ProcessingTime: 42 * time.Second,
	}

	var buf bytes.Buffer
	if err := report.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	if !reflect.DeepEqual(report, got) {
		t.Errorf("round trip is not lossless:\nwrote %+v\nread  %+v", report, got)
	}
}

func TestReadJSONRejectsGarbage(t *testing.T) {
	if _, err := ReadJSON(bytes.NewBufferString("not json at all")); err == nil {
		t.Error("expected error for malformed input")
	}
}
