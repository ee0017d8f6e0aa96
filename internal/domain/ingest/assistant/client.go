// Package assistant calls the external normalization assistant used when
// automatic template matching cannot resolve a file's headers.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// RequestTimeout bounds a single mapping call.
	RequestTimeout = 60 * time.Second

	// maxSampleRows limits how much file content is sent for context.
	maxSampleRows = 20
)

// ErrNotConfigured is returned when no assistant endpoint is set.
var ErrNotConfigured = errors.New("assistant endpoint not configured")

// mapRequest is the payload sent to the assistant endpoint.
type mapRequest struct {
	Schema     string     `json:"schema"`
	Headers    []string   `json:"headers"`
	SampleRows [][]string `json:"sample_rows,omitempty"`
}

// mapResponse is the assistant's proposed header mapping.
type mapResponse struct {
	Mapping map[string]string `json:"mapping"`
	Error   string            `json:"error,omitempty"`
}

// Client talks to the assistant over HTTP.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

func NewClient(endpoint, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: RequestTimeout,
		},
		logger: logger,
	}
}

// Configured reports whether an endpoint is set. Callers should skip the
// assisted workflow entirely when it returns false.
func (c *Client) Configured() bool {
	return c != nil && c.endpoint != ""
}

// MapHeaders asks the assistant to map file headers onto schema columns.
// The returned map uses original header text as keys and canonical column
// names as values. Headers the assistant cannot place are absent.
func (c *Client) MapHeaders(ctx context.Context, schemaName string, headers []string, sampleRows [][]string) (map[string]string, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	if len(sampleRows) > maxSampleRows {
		sampleRows = sampleRows[:maxSampleRows]
	}

	payload, err := json.Marshal(mapRequest{
		Schema:     schemaName,
		Headers:    headers,
		SampleRows: sampleRows,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mapping request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create mapping request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call assistant: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read assistant response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("assistant returned non-OK status",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)))
		return nil, fmt.Errorf("assistant returned status %d", resp.StatusCode)
	}

	var mapped mapResponse
	if err := json.Unmarshal(body, &mapped); err != nil {
		return nil, fmt.Errorf("failed to parse assistant response: %w", err)
	}
	if mapped.Error != "" {
		return nil, fmt.Errorf("assistant error: %s", mapped.Error)
	}
	if len(mapped.Mapping) == 0 {
		return nil, errors.New("assistant returned an empty mapping")
	}

	return mapped.Mapping, nil
}
