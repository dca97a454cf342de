package service

import (
	"context"
	"errors"
	"testing"

	"github.com/pavelanni/marker/internal/agent"
	"github.com/pavelanni/marker/internal/document"
	"github.com/pavelanni/marker/internal/llm"
	"github.com/pavelanni/marker/internal/pipeline"
	"github.com/pavelanni/marker/internal/progress"
	"github.com/pavelanni/marker/internal/qa"
	"github.com/pavelanni/marker/internal/store"
)

const guideDoc = `{
	"title": "Biology Quiz",
	"subject": "biology",
	"questions": [
		{"question_number": "1", "question_text": "What does the mitochondria do?", "max_marks": 5},
		{"question_number": "2", "question_text": "Describe osmosis.", "max_marks": 5}
	]
}`

const answerDoc = `{
	"student_name": "Sam",
	"answers": [
		{"question_id": "q1", "answer_text": "It is the powerhouse of the cell."},
		{"question_id": "q2", "answer_text": "Water moves across a membrane."}
	]
}`

func newTestService(t *testing.T) (*Service, *llm.Meter) {
	t.Helper()

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	client := llm.NewMeter(llm.NewMockClient())
	tracker := progress.NewTracker()
	orch := pipeline.New(
		agent.NewEvaluator(client),
		agent.NewFeedback(client),
		qa.New(qa.DefaultConfig()),
		pipeline.WithNotifier(tracker),
	)

	svc, err := New(st, document.PlainText{}, agent.NewAnalyzer(client), orch, tracker, WithUsageMeter(client))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc, client
}

func TestUploadGuide(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id, guide, cached, err := svc.UploadGuide(ctx, []byte(guideDoc), "quiz.json", "")
	if err != nil {
		t.Fatalf("UploadGuide: %v", err)
	}
	if cached {
		t.Error("first upload must not be cached")
	}
	if guide.Title != "Biology Quiz" {
		t.Errorf("Title = %q", guide.Title)
	}
	if len(guide.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(guide.Questions))
	}
	if guide.Questions[0].ID != "q1" {
		t.Errorf("question ID = %q, want q1", guide.Questions[0].ID)
	}
	if guide.TotalMarks != 10 {
		t.Errorf("TotalMarks = %.1f, want 10", guide.TotalMarks)
	}

	got, err := svc.GetGuide(id)
	if err != nil {
		t.Fatalf("GetGuide: %v", err)
	}
	if got.Title != guide.Title {
		t.Errorf("stored guide title = %q", got.Title)
	}
}

func TestUploadGuideIdempotent(t *testing.T) {
	svc, meter := newTestService(t)
	ctx := context.Background()

	first, _, _, err := svc.UploadGuide(ctx, []byte(guideDoc), "quiz.json", "")
	if err != nil {
		t.Fatalf("UploadGuide: %v", err)
	}
	calls := meter.Totals().Calls

	second, _, cached, err := svc.UploadGuide(ctx, []byte(guideDoc), "quiz.json", "")
	if err != nil {
		t.Fatalf("second UploadGuide: %v", err)
	}
	if !cached {
		t.Error("byte-identical re-upload should be served from cache")
	}
	if second != first {
		t.Errorf("re-upload minted new ID %q, want %q", second, first)
	}
	if got := meter.Totals().Calls; got != calls {
		t.Errorf("cached re-upload made %d backend calls, want 0", got-calls)
	}
}

func TestUploadGuideRejectsMalformed(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, _, err := svc.UploadGuide(context.Background(), []byte("not a guide"), "bad.txt", "")
	if err == nil {
		t.Fatal("expected error")
	}
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if svcErr.Code != CodeInvalidInput {
		t.Errorf("Code = %q, want %q", svcErr.Code, CodeInvalidInput)
	}
}

func TestMarkAnswerSheet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	guideID, _, _, err := svc.UploadGuide(ctx, []byte(guideDoc), "quiz.json", "")
	if err != nil {
		t.Fatalf("UploadGuide: %v", err)
	}

	reportID, report, cached, err := svc.MarkAnswerSheet(ctx, guideID, "s1", []byte(answerDoc), "")
	if err != nil {
		t.Fatalf("MarkAnswerSheet: %v", err)
	}
	if cached {
		t.Error("first marking must not be cached")
	}
	if report.StudentID != "s1" || report.StudentName != "Sam" {
		t.Errorf("report identity = %q/%q", report.StudentID, report.StudentName)
	}
	if report.GuideID != guideID {
		t.Errorf("GuideID = %q, want %q", report.GuideID, guideID)
	}
	// The mock evaluator awards 3 of 5 on every question.
	if report.ScoreSheet.TotalMarks != 6 || report.ScoreSheet.MaxMarks != 10 {
		t.Errorf("score = %.1f/%.1f, want 6/10", report.ScoreSheet.TotalMarks, report.ScoreSheet.MaxMarks)
	}
	if report.ScoreSheet.Grade != "C+" {
		t.Errorf("Grade = %q, want C+", report.ScoreSheet.Grade)
	}
	if report.MarkedBy != "AI Marker" {
		t.Errorf("MarkedBy = %q", report.MarkedBy)
	}

	got, err := svc.GetReport(reportID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.StudentID != "s1" {
		t.Errorf("stored report student = %q", got.StudentID)
	}
}

func TestMarkAnswerSheetIdempotent(t *testing.T) {
	svc, meter := newTestService(t)
	ctx := context.Background()

	guideID, _, _, err := svc.UploadGuide(ctx, []byte(guideDoc), "quiz.json", "")
	if err != nil {
		t.Fatalf("UploadGuide: %v", err)
	}

	first, _, _, err := svc.MarkAnswerSheet(ctx, guideID, "s1", []byte(answerDoc), "")
	if err != nil {
		t.Fatalf("MarkAnswerSheet: %v", err)
	}
	calls := meter.Totals().Calls

	second, _, cached, err := svc.MarkAnswerSheet(ctx, guideID, "s1", []byte(answerDoc), "")
	if err != nil {
		t.Fatalf("second MarkAnswerSheet: %v", err)
	}
	if !cached {
		t.Error("identical re-mark should be served from cache")
	}
	if second != first {
		t.Errorf("re-mark minted new report %q, want %q", second, first)
	}
	if got := meter.Totals().Calls; got != calls {
		t.Errorf("cached re-mark made %d backend calls, want 0", got-calls)
	}

	// A different student is a different cache key.
	other, _, cached, err := svc.MarkAnswerSheet(ctx, guideID, "s2", []byte(answerDoc), "")
	if err != nil {
		t.Fatalf("MarkAnswerSheet for s2: %v", err)
	}
	if cached {
		t.Error("different student must not hit the cache")
	}
	if other == first {
		t.Error("different student must get a distinct report")
	}
}

func TestCacheHitCompletesJob(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	guideID, _, _, err := svc.UploadGuide(ctx, []byte(guideDoc), "quiz.json", "")
	if err != nil {
		t.Fatalf("UploadGuide: %v", err)
	}
	if _, _, _, err := svc.MarkAnswerSheet(ctx, guideID, "s1", []byte(answerDoc), ""); err != nil {
		t.Fatalf("MarkAnswerSheet: %v", err)
	}

	// A job attached to a cache-served mark must still reach a terminal
	// state, or its event stream would hang forever.
	svc.Tracker().Create("job-mark", 5)
	_, _, cached, err := svc.MarkAnswerSheet(ctx, guideID, "s1", []byte(answerDoc), "job-mark")
	if err != nil {
		t.Fatalf("cached MarkAnswerSheet: %v", err)
	}
	if !cached {
		t.Fatal("expected cache hit")
	}
	ev, ok := svc.Tracker().Status("job-mark")
	if !ok || ev.Status != "completed" {
		t.Errorf("job status = %q, want completed", ev.Status)
	}

	// Same for a cache-served guide upload.
	svc.Tracker().Create("job-upload", 0)
	if _, _, cached, err = svc.UploadGuide(ctx, []byte(guideDoc), "quiz.json", "job-upload"); err != nil || !cached {
		t.Fatalf("cached UploadGuide: cached=%t err=%v", cached, err)
	}
	ev, ok = svc.Tracker().Status("job-upload")
	if !ok || ev.Status != "completed" {
		t.Errorf("upload job status = %q, want completed", ev.Status)
	}
}

func TestMarkAnswerSheetValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	guideID, _, _, err := svc.UploadGuide(ctx, []byte(guideDoc), "quiz.json", "")
	if err != nil {
		t.Fatalf("UploadGuide: %v", err)
	}

	tests := []struct {
		name      string
		guideID   string
		studentID string
		data      string
		wantCode  string
	}{
		{"missing guide id", "", "s1", answerDoc, CodeInvalidInput},
		{"missing student id", guideID, "", answerDoc, CodeInvalidInput},
		{"unknown guide", "guide_missing0", "s1", answerDoc, CodeNotFound},
		{"malformed answers", guideID, "s1", "not json", CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := svc.MarkAnswerSheet(ctx, tt.guideID, tt.studentID, []byte(tt.data), "")
			var svcErr *Error
			if !errors.As(err, &svcErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if svcErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", svcErr.Code, tt.wantCode)
			}
		})
	}
}

func TestListOperations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	guideID, _, _, err := svc.UploadGuide(ctx, []byte(guideDoc), "quiz.json", "")
	if err != nil {
		t.Fatalf("UploadGuide: %v", err)
	}
	if _, _, _, err := svc.MarkAnswerSheet(ctx, guideID, "s1", []byte(answerDoc), ""); err != nil {
		t.Fatalf("MarkAnswerSheet: %v", err)
	}

	guides, err := svc.ListGuides()
	if err != nil {
		t.Fatalf("ListGuides: %v", err)
	}
	if len(guides) != 1 {
		t.Errorf("expected 1 guide, got %d", len(guides))
	}

	reports, err := svc.ListReports()
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(reports) != 1 {
		t.Errorf("expected 1 report, got %d", len(reports))
	}
	if reports[0].GuideID != guideID {
		t.Errorf("report guide = %q, want %q", reports[0].GuideID, guideID)
	}

	if _, err := svc.GetGuide("guide_missing0"); err == nil {
		t.Error("unknown guide should error")
	}
	if _, err := svc.GetReport("report_missing"); err == nil {
		t.Error("unknown report should error")
	}
}
