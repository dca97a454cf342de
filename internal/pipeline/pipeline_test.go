package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pavelanni/marker/internal/model"
	"github.com/pavelanni/marker/internal/qa"
)

// fakeEvaluator awards a fixed fraction of each question's marks.
type fakeEvaluator struct {
	mu       sync.Mutex
	fraction float64
	errFor   string
	seen     []string
}

func (f *fakeEvaluator) EvaluateAnswer(_ context.Context, q *model.AnalyzedQuestion, _ string) (*model.Evaluation, error) {
	f.mu.Lock()
	f.seen = append(f.seen, q.ID)
	f.mu.Unlock()
	if f.errFor == q.ID {
		return nil, errors.New("backend unavailable")
	}
	earned := q.MaxMarks * f.fraction
	return &model.Evaluation{
		QuestionID:     q.ID,
		MaxMarks:       q.MaxMarks,
		MarksAwarded:   earned,
		OverallQuality: model.QualityGood,
		Confidence:     0.9,
		Concepts: []model.ConceptJudgement{
			{Concept: "c", Present: earned > 0, PointsEarned: earned, PointsPossible: q.MaxMarks},
		},
	}, nil
}

type fakeFeedback struct {
	err error
}

func (f *fakeFeedback) GenerateFeedback(_ context.Context, evals []model.Evaluation, _ *model.ScoreSheet) (*model.FeedbackReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	report := &model.FeedbackReport{OverallFeedback: "overall"}
	for _, e := range evals {
		report.QuestionFeedback = append(report.QuestionFeedback, model.QuestionFeedback{
			QuestionID: e.QuestionID,
			Feedback:   "per-question",
		})
	}
	return report, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ string, _ int, _ string, status string) {
	n.mu.Lock()
	n.events = append(n.events, status)
	n.mu.Unlock()
}

func testGuide(n int) *model.MarkingGuide {
	g := &model.MarkingGuide{Title: "Quiz"}
	for i := 0; i < n; i++ {
		id := string(rune('1' + i))
		g.Questions = append(g.Questions, model.AnalyzedQuestion{
			ID:       "q" + id,
			Number:   id,
			MaxMarks: 10,
		})
		g.TotalMarks += 10
	}
	return g
}

func fullSheet(g *model.MarkingGuide) *model.AnswerSheet {
	sheet := &model.AnswerSheet{StudentID: "s1", StudentName: "Sam"}
	for _, q := range g.Questions {
		sheet.Answers = append(sheet.Answers, model.Answer{QuestionID: q.ID, Text: "answer " + q.ID})
	}
	return sheet
}

func TestRunProducesReport(t *testing.T) {
	guide := testGuide(3)
	orch := New(&fakeEvaluator{fraction: 0.8}, &fakeFeedback{}, qa.New(qa.DefaultConfig()))

	report, err := orch.Run(context.Background(), "", "guide_1", guide, fullSheet(guide))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.GuideID != "guide_1" {
		t.Errorf("GuideID = %q", report.GuideID)
	}
	if report.AssessmentTitle != "Quiz" {
		t.Errorf("AssessmentTitle = %q", report.AssessmentTitle)
	}
	if report.ScoreSheet.TotalMarks != 24 {
		t.Errorf("TotalMarks = %.1f, want 24", report.ScoreSheet.TotalMarks)
	}
	if report.MarkedBy != "AI Marker" {
		t.Errorf("MarkedBy = %q", report.MarkedBy)
	}
	if len(report.Evaluations) != 3 {
		t.Errorf("expected 3 evaluations, got %d", len(report.Evaluations))
	}
	if len(report.Feedback.QuestionFeedback) != 3 {
		t.Errorf("expected 3 feedback entries, got %d", len(report.Feedback.QuestionFeedback))
	}
	if report.ProcessingTime <= 0 {
		t.Error("ProcessingTime should be positive")
	}
}

func TestRunSkipsMissingAnswers(t *testing.T) {
	guide := testGuide(5)
	sheet := &model.AnswerSheet{
		StudentID: "s1",
		Answers: []model.Answer{
			{QuestionID: "q1", Text: "a"},
			{QuestionID: "q3", Text: "b"},
			{QuestionID: "q5", Text: "c"},
		},
	}
	eval := &fakeEvaluator{fraction: 1.0}
	orch := New(eval, &fakeFeedback{}, qa.New(qa.DefaultConfig()))

	report, err := orch.Run(context.Background(), "", "g", guide, sheet)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(eval.seen) != 3 {
		t.Errorf("evaluator called %d times, want 3 (unanswered questions skipped)", len(eval.seen))
	}

	// Unanswered questions contribute nothing, including to the maximum:
	// the sheet maximum is the sum over evaluated questions only.
	if len(report.Evaluations) != 3 {
		t.Fatalf("expected 3 evaluations, got %d", len(report.Evaluations))
	}
	if report.ScoreSheet.MaxMarks != 30 {
		t.Errorf("MaxMarks = %.1f, want 30", report.ScoreSheet.MaxMarks)
	}
	if report.ScoreSheet.TotalMarks != 30 {
		t.Errorf("TotalMarks = %.1f, want 30", report.ScoreSheet.TotalMarks)
	}

	// Guide order survives the concurrent fan-out.
	wantOrder := []string{"q1", "q3", "q5"}
	for i, e := range report.Evaluations {
		if e.QuestionID != wantOrder[i] {
			t.Errorf("evaluation %d = %q, want %q", i, e.QuestionID, wantOrder[i])
		}
	}
}

func TestRunEvaluationFailure(t *testing.T) {
	guide := testGuide(3)
	orch := New(&fakeEvaluator{fraction: 1.0, errFor: "q2"}, &fakeFeedback{}, qa.New(qa.DefaultConfig()))

	_, err := orch.Run(context.Background(), "", "g", guide, fullSheet(guide))
	if err == nil {
		t.Fatal("expected error")
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected *StageError, got %T", err)
	}
	if stageErr.Stage != StageEvaluating {
		t.Errorf("Stage = %q, want %q", stageErr.Stage, StageEvaluating)
	}
}

func TestRunFeedbackFailure(t *testing.T) {
	guide := testGuide(2)
	orch := New(&fakeEvaluator{fraction: 0.5}, &fakeFeedback{err: errors.New("boom")}, qa.New(qa.DefaultConfig()))

	_, err := orch.Run(context.Background(), "", "g", guide, fullSheet(guide))

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected *StageError, got %v", err)
	}
	if stageErr.Stage != StageFeedback {
		t.Errorf("Stage = %q, want %q", stageErr.Stage, StageFeedback)
	}
}

func TestRunNotifies(t *testing.T) {
	guide := testGuide(1)
	notifier := &recordingNotifier{}
	orch := New(&fakeEvaluator{fraction: 1}, &fakeFeedback{}, qa.New(qa.DefaultConfig()),
		WithNotifier(notifier), WithMaxConcurrent(1))

	if _, err := orch.Run(context.Background(), "job-1", "g", guide, fullSheet(guide)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(notifier.events) != 5 {
		t.Fatalf("expected 5 notifications, got %d", len(notifier.events))
	}
	if notifier.events[len(notifier.events)-1] != "completed" {
		t.Errorf("last status = %q, want completed", notifier.events[len(notifier.events)-1])
	}
}

func TestRunNotifiesFailure(t *testing.T) {
	guide := testGuide(1)
	notifier := &recordingNotifier{}
	orch := New(&fakeEvaluator{errFor: "q1"}, &fakeFeedback{}, qa.New(qa.DefaultConfig()),
		WithNotifier(notifier))

	if _, err := orch.Run(context.Background(), "job-1", "g", guide, fullSheet(guide)); err == nil {
		t.Fatal("expected error")
	}

	last := notifier.events[len(notifier.events)-1]
	if last != "failed" {
		t.Errorf("last status = %q, want failed", last)
	}
}

func TestRunReviewPriority(t *testing.T) {
	// 20% on every question with quality "good" contradicts the score,
	// so the audit flags it and the report demands review.
	guide := testGuide(2)
	orch := New(&fakeEvaluator{fraction: 0.2}, &fakeFeedback{}, qa.New(qa.DefaultConfig()))

	report, err := orch.Run(context.Background(), "", "g", guide, fullSheet(guide))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !report.RequiresReview {
		t.Error("contradictory evaluations should require review")
	}
	if report.ReviewPriority == model.PriorityLow {
		t.Errorf("ReviewPriority = %q, want medium or high", report.ReviewPriority)
	}
}
