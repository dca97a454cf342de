// Package store persists marking guides and evaluation reports in sqlite,
// keyed by content hash so byte-identical uploads short-circuit the
// pipeline. Entries are append-only; the one in-place write is repairing
// a cache row whose payload was lost or corrupted.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/marker/internal/model"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the database at dbPath. Use ":memory:" in
// tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS guides (
		id TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		total_marks REAL NOT NULL,
		num_questions INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		blob TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		guide_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		total_marks REAL NOT NULL,
		max_marks REAL NOT NULL,
		percentage REAL NOT NULL,
		grade TEXT NOT NULL,
		passed INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		blob TEXT NOT NULL,
		FOREIGN KEY (guide_id) REFERENCES guides(id)
	);

	CREATE TABLE IF NOT EXISTS answer_cache (
		cache_key TEXT PRIMARY KEY,
		report_id TEXT NOT NULL,
		FOREIGN KEY (report_id) REFERENCES reports(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ComputeHash returns the SHA-256 hex digest of the document bytes. The
// hash is the sole identity key, so it must be collision-resistant.
func ComputeHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func answerCacheKey(guideID, studentID, answerHash string) string {
	return guideID + ":" + studentID + ":" + answerHash
}

// GuideSummary is the denormalized metadata row for one guide.
type GuideSummary struct {
	ID           string    `json:"id"`
	ContentHash  string    `json:"content_hash"`
	Title        string    `json:"title"`
	Subject      string    `json:"subject,omitempty"`
	TotalMarks   float64   `json:"total_marks"`
	NumQuestions int       `json:"num_questions"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReportSummary is the denormalized metadata row for one report.
type ReportSummary struct {
	ID         string    `json:"id"`
	GuideID    string    `json:"guide_id"`
	StudentID  string    `json:"student_id"`
	TotalMarks float64   `json:"total_marks"`
	MaxMarks   float64   `json:"max_marks"`
	Percentage float64   `json:"percentage"`
	Grade      string    `json:"grade"`
	Passed     bool      `json:"passed"`
	CreatedAt  time.Time `json:"created_at"`
}

// CheckGuideCache returns the guide ID previously registered for these
// document bytes. A hit whose blob no longer decodes is reported as a
// miss, never as an error.
func (s *Store) CheckGuideCache(data []byte) (string, bool, error) {
	hash := ComputeHash(data)

	var id, blob string
	err := s.db.QueryRow(`SELECT id, blob FROM guides WHERE content_hash = ?`, hash).Scan(&id, &blob)
	if err == sql.ErrNoRows {
		slog.Debug("guide cache miss", "hash", hash[:8])
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var g model.MarkingGuide
	if err := json.Unmarshal([]byte(blob), &g); err != nil {
		slog.Warn("guide cache entry corrupt, treating as miss", "guide", id, "error", err)
		return "", false, nil
	}

	slog.Info("guide cache hit", "hash", hash[:8], "guide", id)
	return id, true, nil
}

// SaveGuide persists a guide and registers its content hash. Concurrent
// identical uploads are serialized by the unique hash index: on conflict
// the already-registered ID is returned, so two runs never mint distinct
// identifiers for the same bytes.
func (s *Store) SaveGuide(id string, guide *model.MarkingGuide, source []byte) (string, error) {
	blob, err := json.Marshal(guide)
	if err != nil {
		return "", fmt.Errorf("marshal guide: %w", err)
	}
	hash := ComputeHash(source)

	res, err := s.db.Exec(
		`INSERT INTO guides (id, content_hash, title, subject, total_marks, num_questions, created_at, blob)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(content_hash) DO NOTHING`,
		id, hash, guide.Title, guide.Subject, guide.TotalMarks, len(guide.Questions), time.Now().UTC(), string(blob),
	)
	if err != nil {
		return "", fmt.Errorf("save guide %s: %w", id, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		var existing, existingBlob string
		if err := s.db.QueryRow(`SELECT id, blob FROM guides WHERE content_hash = ?`, hash).Scan(&existing, &existingBlob); err != nil {
			return "", fmt.Errorf("resolve guide conflict: %w", err)
		}
		var g model.MarkingGuide
		if err := json.Unmarshal([]byte(existingBlob), &g); err != nil {
			// The stored blob no longer decodes. Replace it with the fresh
			// analysis; the ID stays stable so references keep resolving.
			slog.Warn("repairing corrupt guide entry", "guide", existing, "error", err)
			if _, err := s.db.Exec(
				`UPDATE guides SET title = ?, subject = ?, total_marks = ?, num_questions = ?, blob = ? WHERE id = ?`,
				guide.Title, guide.Subject, guide.TotalMarks, len(guide.Questions), string(blob), existing,
			); err != nil {
				return "", fmt.Errorf("repair guide %s: %w", existing, err)
			}
			return existing, nil
		}
		slog.Info("guide already registered for hash", "hash", hash[:8], "guide", existing)
		return existing, nil
	}

	slog.Info("saved marking guide", "guide", id, "hash", hash[:8], "questions", len(guide.Questions))
	return id, nil
}

// GetGuide loads one guide by ID.
func (s *Store) GetGuide(id string) (*model.MarkingGuide, error) {
	var blob string
	err := s.db.QueryRow(`SELECT blob FROM guides WHERE id = ?`, id).Scan(&blob)
	if err != nil {
		return nil, err
	}
	var g model.MarkingGuide
	if err := json.Unmarshal([]byte(blob), &g); err != nil {
		return nil, fmt.Errorf("decode guide %s: %w", id, err)
	}
	return &g, nil
}

// ListGuides returns summary rows for all stored guides, newest first.
func (s *Store) ListGuides() ([]GuideSummary, error) {
	rows, err := s.db.Query(
		`SELECT id, content_hash, title, subject, total_marks, num_questions, created_at
		 FROM guides ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guides []GuideSummary
	for rows.Next() {
		var g GuideSummary
		if err := rows.Scan(&g.ID, &g.ContentHash, &g.Title, &g.Subject, &g.TotalMarks, &g.NumQuestions, &g.CreatedAt); err != nil {
			return nil, err
		}
		guides = append(guides, g)
	}
	return guides, rows.Err()
}

// CheckAnswerCache returns the report ID for a previously marked
// (guide, student, answer-bytes) triple. A dangling entry whose report
// blob is missing or corrupt is a miss.
func (s *Store) CheckAnswerCache(guideID, studentID string, data []byte) (string, bool, error) {
	key := answerCacheKey(guideID, studentID, ComputeHash(data))

	var reportID string
	err := s.db.QueryRow(`SELECT report_id FROM answer_cache WHERE cache_key = ?`, key).Scan(&reportID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if _, err := s.GetReport(reportID); err != nil {
		slog.Warn("answer cache entry dangling, treating as miss", "report", reportID, "error", err)
		return "", false, nil
	}

	slog.Info("answer cache hit", "student", studentID, "guide", guideID, "report", reportID)
	return reportID, true, nil
}

// SaveReport persists a report blob with its summary fields. Called
// before RegisterAnswerSheet so a crash between the two leaves no cache
// entry pointing at a missing report.
func (s *Store) SaveReport(id string, report *model.EvaluationReport, guideID string) error {
	blob, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO reports (id, guide_id, student_id, total_marks, max_marks, percentage, grade, passed, created_at, blob)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, guideID, report.StudentID,
		report.ScoreSheet.TotalMarks, report.ScoreSheet.MaxMarks, report.ScoreSheet.Percentage,
		report.ScoreSheet.Grade, report.ScoreSheet.Passed,
		time.Now().UTC(), string(blob),
	)
	if err != nil {
		return fmt.Errorf("save report %s: %w", id, err)
	}

	slog.Info("saved report", "report", id, "guide", guideID, "student", report.StudentID)
	return nil
}

// RegisterAnswerSheet records that these answer bytes have been marked.
// On a concurrent duplicate the first registration wins and its report ID
// is returned, unless that report no longer resolves; then the entry is
// repaired to point at the freshly saved report.
func (s *Store) RegisterAnswerSheet(guideID, studentID string, data []byte, reportID string) (string, error) {
	key := answerCacheKey(guideID, studentID, ComputeHash(data))

	res, err := s.db.Exec(
		`INSERT INTO answer_cache (cache_key, report_id) VALUES (?, ?)
		 ON CONFLICT(cache_key) DO NOTHING`,
		key, reportID,
	)
	if err != nil {
		return "", fmt.Errorf("register answer sheet: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		var existing string
		if err := s.db.QueryRow(`SELECT report_id FROM answer_cache WHERE cache_key = ?`, key).Scan(&existing); err != nil {
			return "", fmt.Errorf("resolve answer cache conflict: %w", err)
		}
		if _, err := s.GetReport(existing); err == nil {
			return existing, nil
		}
		// The registered report is gone or unreadable. Point the entry at
		// the report just saved so the key resolves again.
		slog.Warn("repairing dangling answer cache entry", "old", existing, "new", reportID)
		if _, err := s.db.Exec(`UPDATE answer_cache SET report_id = ? WHERE cache_key = ?`, reportID, key); err != nil {
			return "", fmt.Errorf("repair answer cache entry: %w", err)
		}
		return reportID, nil
	}

	return reportID, nil
}

// GetReport loads one report by ID.
func (s *Store) GetReport(id string) (*model.EvaluationReport, error) {
	var blob string
	err := s.db.QueryRow(`SELECT blob FROM reports WHERE id = ?`, id).Scan(&blob)
	if err != nil {
		return nil, err
	}
	var r model.EvaluationReport
	if err := json.Unmarshal([]byte(blob), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &r, nil
}

// ListReports returns summary rows for all stored reports, newest first.
func (s *Store) ListReports() ([]ReportSummary, error) {
	rows, err := s.db.Query(
		`SELECT id, guide_id, student_id, total_marks, max_marks, percentage, grade, passed, created_at
		 FROM reports ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []ReportSummary
	for rows.Next() {
		var r ReportSummary
		if err := rows.Scan(&r.ID, &r.GuideID, &r.StudentID, &r.TotalMarks, &r.MaxMarks, &r.Percentage, &r.Grade, &r.Passed, &r.CreatedAt); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// LoadAll eagerly loads every stored guide and report, for warming the
// in-memory indexes at startup. Corrupt blobs are skipped with a warning.
func (s *Store) LoadAll() (map[string]*model.MarkingGuide, map[string]*model.EvaluationReport, error) {
	guides := make(map[string]*model.MarkingGuide)
	reports := make(map[string]*model.EvaluationReport)

	guideRows, err := s.ListGuides()
	if err != nil {
		return nil, nil, fmt.Errorf("list guides: %w", err)
	}
	for _, row := range guideRows {
		g, err := s.GetGuide(row.ID)
		if err != nil {
			slog.Warn("skipping unreadable guide", "guide", row.ID, "error", err)
			continue
		}
		guides[row.ID] = g
	}

	reportRows, err := s.ListReports()
	if err != nil {
		return nil, nil, fmt.Errorf("list reports: %w", err)
	}
	for _, row := range reportRows {
		r, err := s.GetReport(row.ID)
		if err != nil {
			slog.Warn("skipping unreadable report", "report", row.ID, "error", err)
			continue
		}
		reports[row.ID] = r
	}

	slog.Info("loaded persistent storage", "guides", len(guides), "reports", len(reports))
	return guides, reports, nil
}
