// Package openai implements the outbound client for the completion
// endpoint (the /v1/responses API) and the extraction of assistant reply
// text from its response envelope.
//
// The client is deliberately minimal: one blocking round-trip, no retry,
// no circuit breaking, and no request timeout beyond what the caller's
// context imposes. A slow upstream blocks only the request that called it.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultBaseURL is the production endpoint of the completions API.
const DefaultBaseURL = "https://api.openai.com"

// ErrMissingAPIKey is returned at call time when no API key is configured.
// A missing key must surface as an outbound-call failure, never as a
// startup crash.
var ErrMissingAPIKey = errors.New("openai: API key is not configured")

// StatusError captures a non-2xx upstream response. The whole request is
// treated as failed; the body is carried for logging only.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("openai: upstream status %d: %s", e.StatusCode, e.Body)
}

// completionRequest is the request shape for the responses endpoint.
type completionRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Store bool   `json:"store"`
}

// upstreamCalls counts outbound completion calls by outcome status code
// ("error" when the round-trip itself failed).
var upstreamCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "completion_requests_total",
		Help: "Total number of outbound completion API calls.",
	},
	[]string{"status"},
)

func init() {
	prometheus.MustRegister(upstreamCalls)
}

// Client talks to the completion endpoint.
type Client struct {
	// HTTPClient performs the round-trips. Defaults to http.DefaultClient,
	// which has no timeout: cancellation comes from ctx, if at all.
	HTTPClient *http.Client

	// BaseURL is the scheme+host of the API. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is the bearer token. Checked at call time.
	APIKey string

	// Model is the model identifier sent with every request.
	Model string
}

// NewClient constructs a Client for the given base URL, key, and model.
// An empty baseURL selects the production endpoint.
func NewClient(baseURL, apiKey, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		HTTPClient: http.DefaultClient,
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      model,
	}
}

// CreateResponse posts input to the responses endpoint and returns the raw
// JSON body unprocessed; extraction happens separately (ExtractReply).
// Non-2xx statuses are returned as *StatusError.
func (c *Client) CreateResponse(ctx context.Context, input string) (string, error) {
	if c.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	payload, err := json.Marshal(completionRequest{
		Model: c.Model,
		Input: input,
		Store: true,
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/v1/responses", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		upstreamCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("openai: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		upstreamCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("openai: read response: %w", err)
	}
	upstreamCalls.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return string(body), nil
}
