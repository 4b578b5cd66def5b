package nl2sql

import "context"

const (
	PurposeSQL     = "sql"
	PurposeInsight = "insight"
)

type Prompt struct {
	Purpose string `json:"purpose"`
	System  string `json:"system,omitempty"`
	User    string `json:"user"`
}

// Result carries the model text untouched. Fence stripping and statement
// extraction happen in the guard.
type Result struct {
	Raw      string `json:"raw"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (Result, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, prompt Prompt) (Result, error)
}
