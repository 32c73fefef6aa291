package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// JobRecord is the opaque structured job posting returned by the extraction
// service. The pipeline embeds it whole in the estimation prompt and never
// validates it beyond existence.
type JobRecord = json.RawMessage

// Client calls the web-content-extraction service: one POST per page URL,
// returning a structured record matching the fixed job-posting schema.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an API token was injected.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type extractRequest struct {
	URL    string         `json:"url"`
	Schema map[string]any `json:"schema"`
}

type extractResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Extract asks the extraction service to turn a job posting page into a
// structured record.
func (c *Client) Extract(ctx context.Context, pageURL string) (JobRecord, error) {
	body, err := json.Marshal(extractRequest{URL: pageURL, Schema: jobSchema})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading extraction response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var parsed extractResponse
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != "" {
			return nil, fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, parsed.Error)
		}
		return nil, fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed extractResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding extraction response: %w", err)
	}
	if !parsed.Success {
		if parsed.Error != "" {
			return nil, fmt.Errorf("extraction did not succeed: %s", parsed.Error)
		}
		return nil, fmt.Errorf("extraction did not succeed")
	}
	if len(parsed.Data) == 0 || string(parsed.Data) == "null" {
		return nil, fmt.Errorf("extraction returned no data")
	}
	return JobRecord(parsed.Data), nil
}
