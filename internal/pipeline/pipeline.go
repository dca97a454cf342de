// Package pipeline sequences the marking stages for one submission:
// evaluate every answered question, aggregate scores, generate feedback,
// audit consistency, assemble the report. Stages run strictly in order;
// only the per-question evaluation fan-out inside the first stage is
// concurrent.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/marker/internal/agent"
	"github.com/pavelanni/marker/internal/model"
	"github.com/pavelanni/marker/internal/qa"
	"github.com/pavelanni/marker/internal/score"
)

// Stage names attached to failures for observability. Scoring and
// auditing are pure local computations that cannot fail, so only the
// backend-facing stages carry names.
const (
	StageEvaluating = "evaluating"
	StageFeedback   = "feedback"
)

// StageError wraps a failure with the pipeline stage it occurred in. A
// stage failure is fatal to the run; no partial report is produced.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Notifier receives advisory progress events at stage boundaries. Dropped
// notifications never affect the run.
type Notifier interface {
	Notify(jobID string, step int, message, status string)
}

// Orchestrator runs the marking pipeline. The guide handed to Run is
// already analyzed; rubrics are never re-derived per submission, so
// question IDs stay stable across runs.
type Orchestrator struct {
	evaluator     agent.AnswerEvaluator
	feedback      agent.FeedbackGenerator
	auditor       *qa.Engine
	notifier      Notifier
	maxConcurrent int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier attaches a progress notifier.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithMaxConcurrent bounds the evaluation fan-out. Size it to the
// capability backend's concurrency limit.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

func New(evaluator agent.AnswerEvaluator, feedback agent.FeedbackGenerator, auditor *qa.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		evaluator:     evaluator,
		feedback:      feedback,
		auditor:       auditor,
		maxConcurrent: 3,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run marks one answer sheet against an analyzed guide. Questions the
// student did not answer contribute no evaluation and no marks; they are
// not a failure of the run.
func (o *Orchestrator) Run(ctx context.Context, jobID, guideID string, guide *model.MarkingGuide, sheet *model.AnswerSheet) (*model.EvaluationReport, error) {
	start := time.Now()
	slog.Info("marking started",
		"student", sheet.StudentID, "assessment", guide.Title, "questions", len(guide.Questions))

	o.notify(jobID, 1, fmt.Sprintf("Evaluating %d answers...", len(guide.Questions)), "processing")
	evals, err := o.evaluateAnswers(ctx, guide, sheet)
	if err != nil {
		o.fail(jobID, err)
		return nil, &StageError{Stage: StageEvaluating, Err: err}
	}

	o.notify(jobID, 2, "Calculating scores...", "processing")
	scores := score.Aggregate(evals)

	o.notify(jobID, 3, "Generating feedback...", "processing")
	feedback, err := o.feedback.GenerateFeedback(ctx, evals, scores)
	if err != nil {
		o.fail(jobID, err)
		return nil, &StageError{Stage: StageFeedback, Err: err}
	}

	o.notify(jobID, 4, "Auditing consistency...", "processing")
	audit := o.auditor.Review(evals)

	report := o.assembleReport(guideID, guide, sheet, evals, scores, feedback, audit)
	report.ProcessingTime = time.Since(start)

	slog.Info("marking completed",
		"student", sheet.StudentID,
		"score", fmt.Sprintf("%.4g/%.4g", scores.TotalMarks, scores.MaxMarks),
		"grade", scores.Grade,
		"requires_review", report.RequiresReview,
		"elapsed", report.ProcessingTime)

	o.notify(jobID, 5, "Report ready", "completed")
	return report, nil
}

// evaluateAnswers fans out one evaluation per answered question through a
// bounded worker group, then restores guide order. Results are keyed by
// question ID, so completion order does not matter.
func (o *Orchestrator) evaluateAnswers(ctx context.Context, guide *model.MarkingGuide, sheet *model.AnswerSheet) ([]model.Evaluation, error) {
	results := make([]*model.Evaluation, len(guide.Questions))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)

	for i := range guide.Questions {
		q := &guide.Questions[i]
		answer := sheet.Answer(q.ID)
		if answer == nil {
			slog.Warn("no answer found for question", "question", q.ID, "student", sheet.StudentID)
			continue
		}

		idx := i
		text := answer.Text
		g.Go(func() error {
			eval, err := o.evaluator.EvaluateAnswer(ctx, q, text)
			if err != nil {
				return err
			}
			results[idx] = eval
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	evals := make([]model.Evaluation, 0, len(results))
	for _, e := range results {
		if e != nil {
			evals = append(evals, *e)
		}
	}
	return evals, nil
}

func (o *Orchestrator) assembleReport(
	guideID string,
	guide *model.MarkingGuide,
	sheet *model.AnswerSheet,
	evals []model.Evaluation,
	scores *model.ScoreSheet,
	feedback *model.FeedbackReport,
	audit *model.AuditResult,
) *model.EvaluationReport {
	priority := model.PriorityLow
	switch {
	case audit.ConfidenceTier == model.ConfidenceLow:
		priority = model.PriorityHigh
	case audit.ConfidenceTier == model.ConfidenceMedium || len(audit.Flags) > 0:
		priority = model.PriorityMedium
	}

	return &model.EvaluationReport{
		StudentID:       sheet.StudentID,
		StudentName:     sheet.StudentName,
		GuideID:         guideID,
		AssessmentTitle: guide.Title,
		ScoreSheet:      *scores,
		Evaluations:     evals,
		Feedback:        *feedback,
		Audit:           *audit,
		RequiresReview:  audit.RequiresReview,
		ReviewPriority:  priority,
		MarkedBy:        "AI Marker",
		MarkedAt:        time.Now().UTC(),
	}
}

func (o *Orchestrator) notify(jobID string, step int, message, status string) {
	if o.notifier == nil || jobID == "" {
		return
	}
	o.notifier.Notify(jobID, step, message, status)
}

func (o *Orchestrator) fail(jobID string, err error) {
	if o.notifier == nil || jobID == "" {
		return
	}
	o.notifier.Notify(jobID, 0, "Error: "+err.Error(), "failed")
}
