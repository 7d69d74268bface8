package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// errorBody mirrors the API error envelope.
type errorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// rankingsResponse mirrors GET /api/v1/rankings.
type rankingsResponse struct {
	University string                        `json:"university"`
	UpdatedAt  *time.Time                    `json:"updated_at"`
	Rankings   map[string]map[string]*string `json:"rankings"`
}

// runResponse mirrors POST /api/v1/runs.
type runResponse struct {
	ID         string   `json:"id"`
	Status     string   `json:"status"`
	Publishers []string `json:"publishers"`
}

// runStatusResponse mirrors GET /api/v1/runs/current.
type runStatusResponse struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Publishers []string   `json:"publishers"`
	Completed  int        `json:"completed"`
	Total      int        `json:"total"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Error      string     `json:"error"`
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	poll    time.Duration
}

func newClient(baseURL, apiKey string) *client {
	return &client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		poll:    5 * time.Second,
	}
}

// do sends a request and decodes a 2xx body into out. Non-2xx responses
// become errors carrying the API error code.
func (c *client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error != nil {
			return fmt.Errorf("[%s] %s", eb.Error.Code, eb.Error.Message)
		}
		return fmt.Errorf("API returned %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *client) rankings(ctx context.Context, publisher string) (*rankingsResponse, error) {
	path := "/api/v1/rankings"
	if publisher != "" {
		path += "?publisher=" + url.QueryEscape(publisher)
	}
	var out rankingsResponse
	return &out, c.do(ctx, http.MethodGet, path, nil, &out)
}

func (c *client) startRun(ctx context.Context, publishers []string) (*runResponse, error) {
	var out runResponse
	payload := map[string]any{"publishers": publishers}
	return &out, c.do(ctx, http.MethodPost, "/api/v1/runs", payload, &out)
}

func (c *client) currentRun(ctx context.Context) (*runStatusResponse, error) {
	var out runStatusResponse
	return &out, c.do(ctx, http.MethodGet, "/api/v1/runs/current", nil, &out)
}

// waitRun polls the current run until it is no longer running.
func (c *client) waitRun(ctx context.Context) (*runStatusResponse, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		st, err := c.currentRun(ctx)
		if err != nil {
			return nil, err
		}
		if st.Status != "running" {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
