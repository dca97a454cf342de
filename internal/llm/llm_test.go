package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"plain JSON", `{"name": "x", "count": 2}`, false},
		{"json fence", "```json\n{\"name\": \"x\", \"count\": 2}\n```", false},
		{"bare fence", "```\n{\"name\": \"x\", \"count\": 2}\n```", false},
		{"leading whitespace", "\n\n  {\"name\": \"x\", \"count\": 2}", false},
		{"unknown field", `{"name": "x", "count": 2, "extra": true}`, true},
		{"truncated", `{"name": "x", "cou`, true},
		{"not JSON", `The answer is B.`, true},
		{"empty", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			err := Decode(tt.raw, &p)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Fatalf("expected *ParseError, got %T", err)
				}
				if parseErr.Raw != tt.raw {
					t.Error("ParseError should carry the raw response")
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if p.Name != "x" || p.Count != 2 {
				t.Errorf("decoded %+v", p)
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  {\"a\":1}  ", "{\"a\":1}"},
	}
	for _, tt := range tests {
		if got := stripCodeFences(tt.in); got != tt.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"openai", false},
		{"ollama", false},
		{"together", false},
		{"anthropic", false},
		{"mock", false},
		{"", true},
		{"bedrock", true},
	}
	for _, tt := range tests {
		_, err := New(Config{Provider: tt.provider, Model: "m", APIKey: "k"})
		if (err != nil) != tt.wantErr {
			t.Errorf("New(provider=%q) error = %v, wantErr %t", tt.provider, err, tt.wantErr)
		}
	}
}

func TestMockClientRouting(t *testing.T) {
	m := NewMockClient()
	ctx := context.Background()

	tests := []struct {
		name     string
		prompt   string
		contains string
	}{
		{"analysis", "<question_to_analyze>Q1</question_to_analyze>", `"question_type"`},
		{"evaluation", "<student_answer>hi</student_answer>", `"concepts_identified"`},
		{"overall feedback", "<performance_summary>...</performance_summary>", `"overall_feedback"`},
		{"question feedback", "<evaluation_summary>...</evaluation_summary>", `"improvement_areas"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := m.Complete(ctx, Request{Prompt: tt.prompt})
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if !strings.Contains(resp.Content, tt.contains) {
				t.Errorf("response should contain %s, got %q", tt.contains, resp.Content)
			}
		})
	}

	if _, err := m.Complete(ctx, Request{Prompt: "free-form"}); err == nil {
		t.Error("unrecognized prompt shape should error")
	}
}
