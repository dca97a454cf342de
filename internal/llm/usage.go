package llm

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Usage is the cumulative backend consumption since process start.
type Usage struct {
	Calls        int64 `json:"calls"`
	PromptTokens int64 `json:"prompt_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Meter wraps a Client and accumulates token usage across calls. Safe for
// concurrent use; failed calls are not counted because the backend reports
// no usage for them.
type Meter struct {
	inner  Client
	calls  atomic.Int64
	prompt atomic.Int64
	output atomic.Int64
}

func NewMeter(inner Client) *Meter {
	return &Meter{inner: inner}
}

func (m *Meter) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := m.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	m.calls.Add(1)
	m.prompt.Add(int64(resp.PromptTokens))
	m.output.Add(int64(resp.OutputTokens))
	slog.Debug("backend call",
		"prompt_tokens", resp.PromptTokens, "output_tokens", resp.OutputTokens)
	return resp, nil
}

func (m *Meter) Ping(ctx context.Context) error { return m.inner.Ping(ctx) }

// Totals returns the usage accumulated so far.
func (m *Meter) Totals() Usage {
	return Usage{
		Calls:        m.calls.Load(),
		PromptTokens: m.prompt.Load(),
		OutputTokens: m.output.Load(),
	}
}
