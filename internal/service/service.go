// Package service wires the store, ingestion, analysis, and pipeline into
// the marking operations the transports expose. One Service instance is
// constructed at process start and injected where needed; there are no
// package-level singletons.
package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/marker/internal/agent"
	"github.com/pavelanni/marker/internal/document"
	"github.com/pavelanni/marker/internal/llm"
	"github.com/pavelanni/marker/internal/model"
	"github.com/pavelanni/marker/internal/pipeline"
	"github.com/pavelanni/marker/internal/progress"
	"github.com/pavelanni/marker/internal/store"
)

// Service carries out guide uploads and marking runs.
type Service struct {
	store     *store.Store
	extractor document.Extractor
	analyzer  agent.QuestionAnalyzer
	orch      *pipeline.Orchestrator
	tracker   *progress.Tracker
	meter     *llm.Meter

	mu      sync.RWMutex
	guides  map[string]*model.MarkingGuide
	reports map[string]*model.EvaluationReport
}

// Option configures a Service.
type Option func(*Service)

// WithUsageMeter attaches the backend usage meter so cumulative token
// consumption can be reported.
func WithUsageMeter(m *llm.Meter) Option {
	return func(s *Service) { s.meter = m }
}

// New builds a Service and warms the in-memory indexes from the store.
func New(st *store.Store, ex document.Extractor, an agent.QuestionAnalyzer, orch *pipeline.Orchestrator, tr *progress.Tracker, opts ...Option) (*Service, error) {
	guides, reports, err := st.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load storage: %w", err)
	}
	s := &Service{
		store:     st,
		extractor: ex,
		analyzer:  an,
		orch:      orch,
		tracker:   tr,
		guides:    guides,
		reports:   reports,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Usage reports cumulative backend token consumption. The second return
// is false when no meter is attached.
func (s *Service) Usage() (llm.Usage, bool) {
	if s.meter == nil {
		return llm.Usage{}, false
	}
	return s.meter.Totals(), true
}

// Tracker exposes the progress tracker for transports that stream it.
func (s *Service) Tracker() *progress.Tracker { return s.tracker }

func newID(prefix string) string {
	u := uuid.New()
	return prefix + "_" + hex.EncodeToString(u[:])[:8]
}

// UploadGuide analyzes and stores a marking guide document. Byte-identical
// re-uploads return the existing guide with zero analysis calls; the
// returned bool reports whether the result came from cache.
func (s *Service) UploadGuide(ctx context.Context, data []byte, filename, jobID string) (string, *model.MarkingGuide, bool, error) {
	if cachedID, hit, err := s.store.CheckGuideCache(data); err != nil {
		return "", nil, false, uploadFailed("guide cache lookup failed", err)
	} else if hit {
		if g := s.guide(cachedID); g != nil {
			s.completeJob(jobID, "Served from cache: "+cachedID)
			return cachedID, g, true, nil
		}
	}

	extracted, err := s.extractor.Extract(ctx, data, filename)
	if err != nil {
		s.failJob(jobID, err)
		return "", nil, false, invalidInput("could not extract guide document", err)
	}
	doc, err := document.ParseGuide(extracted.Text)
	if err != nil {
		s.failJob(jobID, err)
		return "", nil, false, invalidInput("malformed guide document", err)
	}

	questions := make([]model.AnalyzedQuestion, 0, len(doc.Questions))
	for i, raw := range doc.Questions {
		s.notify(jobID, i+1, fmt.Sprintf("Analyzing question %d of %d...", i+1, len(doc.Questions)))
		q, err := s.analyzer.AnalyzeQuestion(ctx, raw)
		if err != nil {
			s.failJob(jobID, err)
			return "", nil, false, uploadFailed("question analysis failed", err)
		}
		questions = append(questions, *q)
	}

	guide := &model.MarkingGuide{
		Title:      doc.Title,
		Subject:    doc.Subject,
		Grade:      doc.Grade,
		Questions:  questions,
		SourceFile: filename,
		CreatedAt:  time.Now().UTC(),
	}
	if doc.TotalMarks > 0 {
		guide.TotalMarks = doc.TotalMarks
	} else {
		for _, q := range questions {
			guide.TotalMarks += q.MaxMarks
		}
	}
	if !guide.ValidateTotalMarks() {
		slog.Warn("declared total marks differ from question sum",
			"declared", guide.TotalMarks, "guide", doc.Title)
	}

	id, err := s.store.SaveGuide(newID("guide"), guide, data)
	if err != nil {
		s.failJob(jobID, err)
		return "", nil, false, uploadFailed("could not persist guide", err)
	}

	s.mu.Lock()
	s.guides[id] = guide
	s.mu.Unlock()

	s.completeJob(jobID, "Guide ready")
	s.logUsage()
	slog.Info("marking guide created", "guide", id, "questions", len(questions), "total_marks", guide.TotalMarks)
	return id, guide, false, nil
}

// MarkAnswerSheet marks one student's answer document against a stored
// guide. An identical (guide, student, bytes) triple returns the existing
// report with zero evaluation calls.
func (s *Service) MarkAnswerSheet(ctx context.Context, guideID, studentID string, data []byte, jobID string) (string, *model.EvaluationReport, bool, error) {
	if guideID == "" {
		return "", nil, false, invalidInput("missing guide id", nil)
	}
	if studentID == "" {
		return "", nil, false, invalidInput("missing student id", nil)
	}

	guide := s.guide(guideID)
	if guide == nil {
		return "", nil, false, notFound("marking guide", guideID)
	}

	if cachedID, hit, err := s.store.CheckAnswerCache(guideID, studentID, data); err != nil {
		return "", nil, false, processingFailed("answer cache lookup failed", err)
	} else if hit {
		if r := s.report(cachedID); r != nil {
			s.completeJob(jobID, "Served from cache: "+cachedID)
			return cachedID, r, true, nil
		}
	}

	extracted, err := s.extractor.Extract(ctx, data, "answer sheet")
	if err != nil {
		return "", nil, false, invalidInput("could not extract answer sheet", err)
	}
	doc, err := document.ParseAnswerSheet(extracted.Text)
	if err != nil {
		return "", nil, false, invalidInput("malformed answer sheet", err)
	}

	sheet := &model.AnswerSheet{
		StudentID:   studentID,
		StudentName: doc.StudentName,
		Answers:     doc.Answers,
		SubmittedAt: time.Now().UTC(),
	}

	report, err := s.orch.Run(ctx, jobID, guideID, guide, sheet)
	if err != nil {
		// The pipeline persists nothing on failure; the report is
		// all-or-nothing.
		return "", nil, false, processingFailed("marking run failed", err)
	}

	reportID := newID("report")
	if err := s.store.SaveReport(reportID, report, guideID); err != nil {
		return "", nil, false, processingFailed("could not persist report", err)
	}
	reportID, err = s.store.RegisterAnswerSheet(guideID, studentID, data, reportID)
	if err != nil {
		return "", nil, false, processingFailed("could not register answer sheet", err)
	}

	s.mu.Lock()
	s.reports[reportID] = report
	s.mu.Unlock()

	s.logUsage()
	return reportID, report, false, nil
}

// GetGuide returns a stored guide.
func (s *Service) GetGuide(id string) (*model.MarkingGuide, error) {
	if g := s.guide(id); g != nil {
		return g, nil
	}
	return nil, notFound("marking guide", id)
}

// GetReport returns a stored report.
func (s *Service) GetReport(id string) (*model.EvaluationReport, error) {
	if r := s.report(id); r != nil {
		return r, nil
	}
	return nil, notFound("report", id)
}

// ListGuides returns summaries of all stored guides.
func (s *Service) ListGuides() ([]store.GuideSummary, error) {
	return s.store.ListGuides()
}

// ListReports returns summaries of all stored reports.
func (s *Service) ListReports() ([]store.ReportSummary, error) {
	return s.store.ListReports()
}

func (s *Service) guide(id string) *model.MarkingGuide {
	s.mu.RLock()
	g, ok := s.guides[id]
	s.mu.RUnlock()
	if ok {
		return g
	}
	// Read-through for entries written by a previous process.
	g, err := s.store.GetGuide(id)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	s.guides[id] = g
	s.mu.Unlock()
	return g
}

func (s *Service) report(id string) *model.EvaluationReport {
	s.mu.RLock()
	r, ok := s.reports[id]
	s.mu.RUnlock()
	if ok {
		return r
	}
	r, err := s.store.GetReport(id)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	s.reports[id] = r
	s.mu.Unlock()
	return r
}

func (s *Service) notify(jobID string, step int, message string) {
	if s.tracker == nil || jobID == "" {
		return
	}
	s.tracker.Notify(jobID, step, message, "processing")
}

func (s *Service) completeJob(jobID, message string) {
	if s.tracker == nil || jobID == "" {
		return
	}
	s.tracker.Complete(jobID, message)
}

func (s *Service) logUsage() {
	if s.meter == nil {
		return
	}
	u := s.meter.Totals()
	slog.Debug("cumulative backend usage",
		"calls", u.Calls, "prompt_tokens", u.PromptTokens, "output_tokens", u.OutputTokens)
}

func (s *Service) failJob(jobID string, err error) {
	if s.tracker == nil || jobID == "" {
		return
	}
	s.tracker.Fail(jobID, err)
}
