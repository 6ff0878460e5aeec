// Package analysis is the client for the local Analysis Service, the
// sidecar that hosts the transcription, vision, embedding, and
// reasoning models. The daemon never loads models itself; everything
// model-shaped goes through this boundary.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const DefaultBaseURL = "http://127.0.0.1:8001"

// ServiceError represents a non-2xx reply from the Analysis Service.
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("analysis service returned HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors
// (4xx) are considered permanent.
func (e *ServiceError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Service is the model surface the pipeline and orchestrator consume.
// Transcribe and AnalyzeVision return the service's JSON untouched;
// enrichment parses it later from the stored per-asset row.
type Service interface {
	Transcribe(ctx context.Context, mediaPath string) (json.RawMessage, error)
	AnalyzeVision(ctx context.Context, mediaPath string) (json.RawMessage, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedVision(ctx context.Context, mediaPath string, startSec, endSec float64) ([]float32, error)
	Reason(ctx context.Context, req ReasonRequest) (json.RawMessage, error)
	GeneratePlan(ctx context.Context, req GeneratePlanRequest) (json.RawMessage, error)
}

// ReasonRequest carries candidate segment metadata (no vectors) plus
// optional style and timeline context to the narrative reasoner.
type ReasonRequest struct {
	Segments        []SegmentSummary `json:"segments"`
	StyleProfile    json.RawMessage  `json:"style_profile,omitempty"`
	TimelineContext json.RawMessage  `json:"timeline_context,omitempty"`
}

type SegmentSummary struct {
	SegmentID   int64   `json:"segment_id"`
	SummaryText string  `json:"summary_text,omitempty"`
	CaptureTime string  `json:"capture_time,omitempty"`
	DurationSec float64 `json:"duration_sec"`
}

type GeneratePlanRequest struct {
	NarrativeStructure string          `json:"narrative_structure"`
	Beats              json.RawMessage `json:"beats"`
	Constraints        json.RawMessage `json:"constraints"`
	StyleProfileID     int64           `json:"style_profile_id,omitempty"`
}

// HTTPClient talks to the Analysis Service over localhost HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL string, logger *slog.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		logger: logger,
	}
}

func (c *HTTPClient) Transcribe(ctx context.Context, mediaPath string) (json.RawMessage, error) {
	return c.postJSON(ctx, "/transcribe", map[string]any{"mediaPath": mediaPath})
}

func (c *HTTPClient) AnalyzeVision(ctx context.Context, mediaPath string) (json.RawMessage, error) {
	return c.postJSON(ctx, "/vision/analyze", map[string]any{"mediaPath": mediaPath})
}

func (c *HTTPClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	raw, err := c.postJSON(ctx, "/embeddings/text", map[string]any{"text": text})
	if err != nil {
		return nil, err
	}
	return decodeEmbedding(raw)
}

func (c *HTTPClient) EmbedVision(ctx context.Context, mediaPath string, startSec, endSec float64) ([]float32, error) {
	raw, err := c.postJSON(ctx, "/embeddings/vision", map[string]any{
		"media_path": mediaPath,
		"start_time": startSec,
		"end_time":   endSec,
	})
	if err != nil {
		return nil, err
	}
	return decodeEmbedding(raw)
}

func (c *HTTPClient) Reason(ctx context.Context, req ReasonRequest) (json.RawMessage, error) {
	return c.postJSON(ctx, "/orchestrator/reason", req)
}

func (c *HTTPClient) GeneratePlan(ctx context.Context, req GeneratePlanRequest) (json.RawMessage, error) {
	return c.postJSON(ctx, "/orchestrator/generate_plan", req)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis service request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read analysis response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	c.logger.Debug("analysis service call",
		"path", path,
		"status", resp.StatusCode,
		"body_bytes", len(respBody),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return json.RawMessage(respBody), nil
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

func decodeEmbedding(raw json.RawMessage) ([]float32, error) {
	var er embeddingResponse
	if err := json.Unmarshal(raw, &er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(er.Embedding) == 0 {
		return nil, fmt.Errorf("embedding response missing vector")
	}
	return er.Embedding, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
