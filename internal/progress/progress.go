// Package progress tracks long-running marking jobs and streams advisory
// updates to subscribers. Updates are best-effort: a slow or absent
// subscriber never blocks a run.
package progress

import (
	"sync"
	"time"
)

// Event is one progress update for a job.
type Event struct {
	JobID       string    `json:"job_id"`
	Step        int       `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
	Message     string    `json:"message"`
	Status      string    `json:"status"` // initializing, processing, completed, failed
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	Error       string    `json:"error,omitempty"`
}

// Tracker keeps the latest state per job and fans events out to
// subscribers.
type Tracker struct {
	mu     sync.Mutex
	jobs   map[string]Event
	queues map[string][]chan Event
}

func NewTracker() *Tracker {
	return &Tracker{
		jobs:   make(map[string]Event),
		queues: make(map[string][]chan Event),
	}
}

// Create registers a new job.
func (t *Tracker) Create(jobID string, totalSteps int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[jobID] = Event{
		JobID:      jobID,
		TotalSteps: totalSteps,
		Message:    "Initializing...",
		Status:     "initializing",
		StartedAt:  time.Now().UTC(),
	}
}

// Notify implements pipeline.Notifier.
func (t *Tracker) Notify(jobID string, step int, message, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ev, ok := t.jobs[jobID]
	if !ok {
		return
	}
	if step > 0 {
		ev.Step = step
	}
	ev.Message = message
	ev.Status = status
	if status == "completed" || status == "failed" {
		ev.CompletedAt = time.Now().UTC()
	}
	if status == "failed" {
		ev.Error = message
	}
	t.jobs[jobID] = ev
	t.broadcastLocked(jobID, ev)
	if status == "completed" || status == "failed" {
		t.closeSubscribersLocked(jobID)
	}
}

// Complete marks the job finished.
func (t *Tracker) Complete(jobID, message string) {
	t.Notify(jobID, 0, message, "completed")
}

// Fail marks the job failed.
func (t *Tracker) Fail(jobID string, err error) {
	t.Notify(jobID, 0, "Error: "+err.Error(), "failed")
}

// Status returns the latest event for a job.
func (t *Tracker) Status(jobID string) (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ev, ok := t.jobs[jobID]
	return ev, ok
}

// Subscribe returns a channel of events for a job, starting with its
// current state. The channel closes when the job completes or fails.
func (t *Tracker) Subscribe(jobID string) (<-chan Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ev, ok := t.jobs[jobID]
	if !ok {
		return nil, false
	}

	ch := make(chan Event, 16)
	ch <- ev
	if ev.Status == "completed" || ev.Status == "failed" {
		close(ch)
		return ch, true
	}
	t.queues[jobID] = append(t.queues[jobID], ch)
	return ch, true
}

func (t *Tracker) broadcastLocked(jobID string, ev Event) {
	for _, ch := range t.queues[jobID] {
		select {
		case ch <- ev:
		default: // subscriber is slow; drop rather than stall the run
		}
	}
}

func (t *Tracker) closeSubscribersLocked(jobID string) {
	for _, ch := range t.queues[jobID] {
		close(ch)
	}
	delete(t.queues, jobID)
}
