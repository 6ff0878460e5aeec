// Package llm composes the free-form assistant prose attached to edit
// proposals. The fixed conversational copy lives in the orchestrator;
// this package only writes the text that varies with content, either
// through an OpenAI-compatible endpoint or a deterministic template
// when none is configured.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Composer turns a proposal into a short user-facing explanation.
type Composer interface {
	ExplainProposal(ctx context.Context, req ExplainRequest) (string, error)
}

// ExplainRequest carries the proposal facts an explanation is built
// from. No embeddings or raw media ever leave the daemon through this.
type ExplainRequest struct {
	UserIntent         string
	NarrativeStructure string
	CandidateCount     int
	TotalDurationSec   float64
	Summaries          []string
}

// NewComposer picks the provider: an OpenAI-compatible endpoint when an
// API key is configured, the deterministic template otherwise.
func NewComposer(apiKey, baseURL, model string, logger *slog.Logger) Composer {
	if apiKey == "" {
		return &TemplateComposer{}
	}
	return NewOpenAIComposer(apiKey, baseURL, model, logger)
}

// TemplateComposer builds the explanation from a fixed template. It is
// the unconfigured default and the fallback when the provider errors.
type TemplateComposer struct{}

func (TemplateComposer) ExplainProposal(_ context.Context, req ExplainRequest) (string, error) {
	structure := req.NarrativeStructure
	if structure == "" {
		structure = "hook_body_outro"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Planned a %s cut from %d moments covering %.0f seconds of footage.",
		strings.ReplaceAll(structure, "_", "-"), req.CandidateCount, req.TotalDurationSec)
	if len(req.Summaries) > 0 {
		highlights := req.Summaries
		if len(highlights) > 3 {
			highlights = highlights[:3]
		}
		fmt.Fprintf(&sb, " Highlights: %s.", strings.Join(highlights, "; "))
	}
	return sb.String(), nil
}
