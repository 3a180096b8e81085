package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/inkpad-ai/researchd/internal/metrics"
	"github.com/inkpad-ai/researchd/internal/models"
)

// HTTPClient talks JSON over HTTP to the search and synthesis services.
// Status codes map onto the error taxonomy: 429 -> RateLimitError,
// 402 -> QuotaExceededError, transport errors and 5xx -> NetworkError.
type HTTPClient struct {
	searchURL    string
	synthesisURL string
	client       *http.Client
	logger       *zap.Logger
}

// NewHTTPClient creates a client for the given service base URLs.
func NewHTTPClient(searchURL, synthesisURL string, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		searchURL:    searchURL,
		synthesisURL: synthesisURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

type searchRequest struct {
	Queries []string            `json:"queries"`
	Kind    models.WorkflowKind `json:"kind"`
}

type searchResponse struct {
	Sources []models.RawSource `json:"sources"`
}

type generateRequest struct {
	Kind    models.WorkflowKind `json:"kind"`
	Sources []models.Source     `json:"sources"`
	Purpose string              `json:"purpose"`
}

type generateResponse struct {
	Content string `json:"content"`
}

// Search implements SearchCollaborator.
func (c *HTTPClient) Search(ctx context.Context, queries []string, kind models.WorkflowKind) ([]models.RawSource, error) {
	var resp searchResponse
	if err := c.post(ctx, "search", c.searchURL, searchRequest{Queries: queries, Kind: kind}, &resp); err != nil {
		return nil, err
	}
	return resp.Sources, nil
}

// Generate implements SynthesisCollaborator.
func (c *HTTPClient) Generate(ctx context.Context, kind models.WorkflowKind, sources []models.Source, purpose string) (string, error) {
	var resp generateResponse
	req := generateRequest{Kind: kind, Sources: sources, Purpose: purpose}
	if err := c.post(ctx, "synthesis", c.synthesisURL, req, &resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *HTTPClient) post(ctx context.Context, op, url string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Context cancellation surfaces as-is so the executor can tell a
		// timeout/cancel apart from a backend fault.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.CollaboratorCalls.WithLabelValues(op, "network_error").Inc()
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.CollaboratorCalls.WithLabelValues(op, "rate_limited").Inc()
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode == http.StatusPaymentRequired:
		metrics.CollaboratorCalls.WithLabelValues(op, "quota_exceeded").Inc()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &QuotaExceededError{Detail: string(detail)}
	default:
		metrics.CollaboratorCalls.WithLabelValues(op, "error").Inc()
		c.logger.Warn("Collaborator returned unexpected status",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
		)
		return &NetworkError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.CollaboratorCalls.WithLabelValues(op, "decode_error").Inc()
		return &NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	metrics.CollaboratorCalls.WithLabelValues(op, "ok").Inc()
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
