package summarize

import (
	"context"
	"encoding/json"
	"time"
)

// CandidateSummary is the structured shape we want from the model. The exact
// field semantics are a collaborator contract with the prompt; the pipeline
// only stores and forwards it.
type CandidateSummary struct {
	Role           string           `json:"role"`
	Summary        string           `json:"summary"`
	Skills         []string         `json:"skills,omitempty"`
	Experience     *ExperienceStats `json:"experience,omitempty"`
	Strengths      []string         `json:"strengths,omitempty"`
	Education      []string         `json:"education,omitempty"`
	Certifications []string         `json:"certifications,omitempty"`
	Contact        *ContactDetails  `json:"contact,omitempty"`
	Score          int              `json:"score"`         // 1..10
	Justification  string           `json:"justification"` // one line
}

type ExperienceStats struct {
	TotalYears  float64 `json:"total_years,omitempty"`
	Companies   int     `json:"companies,omitempty"`
	LatestTitle string  `json:"latest_title,omitempty"`
}

type ContactDetails struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
}

// Result wraps the summary with model and usage metadata; this is what the
// pipeline serializes into the stored summary artifact.
type Result struct {
	Summary          CandidateSummary `json:"summary"`
	Raw              json.RawMessage  `json:"-"`
	Model            string           `json:"model"`
	PromptTokens     int64            `json:"prompt_tokens,omitempty"`
	CompletionTokens int64            `json:"completion_tokens,omitempty"`
	TotalTokens      int64            `json:"total_tokens,omitempty"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// Summarizer is the interface the pipeline depends on.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (Result, error)
}
