package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/tidwall/gjson"
)

const composeTimeout = 30 * time.Second

// OpenAIComposer asks an OpenAI-compatible chat endpoint for the
// explanation, constrained to a JSON object reply. Callers fall back to
// the template on error, so a flaky endpoint degrades, never blocks.
type OpenAIComposer struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAIComposer(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIComposer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIComposer{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

func (c *OpenAIComposer) ExplainProposal(ctx context.Context, req ExplainRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, composeTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a video editing assistant. Describe the proposed edit in at most two friendly sentences. Output JSON only."),
			openai.UserMessage(buildPrompt(req)),
		},
		Model:       c.model,
		Temperature: openai.Float(0.3),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	explanation := strings.TrimSpace(gjson.Get(content, "explanation").String())
	if explanation == "" {
		return "", fmt.Errorf("chat reply missing explanation field: %s", clip(content, 200))
	}

	c.logger.Debug("proposal explanation composed",
		"model", c.model,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return explanation, nil
}

func buildPrompt(req ExplainRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The user asked for: %q.\n", req.UserIntent)
	fmt.Fprintf(&sb, "Narrative structure: %s. Candidate moments: %d, total footage: %.0f seconds.\n",
		req.NarrativeStructure, req.CandidateCount, req.TotalDurationSec)
	if len(req.Summaries) > 0 {
		sb.WriteString("Top moments:\n")
		for _, s := range req.Summaries {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
	}
	sb.WriteString(`Reply with JSON: {"explanation": "<the explanation, no timestamps or ids>"}`)
	return sb.String()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
