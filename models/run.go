package models

import "time"

// RunRequest is the payload for POST /api/v1/runs.
type RunRequest struct {
	// Publishers restricts the refresh to the listed publishers.
	// Empty means every enabled publisher.
	Publishers []string `json:"publishers,omitempty" binding:"omitempty,max=10,dive,required"`
}

// RunResponse is the immediate response for POST /api/v1/runs.
type RunResponse struct {
	ID         string   `json:"id"`
	Status     string   `json:"status"`
	Publishers []string `json:"publishers"`
}

// RunStatusResponse is the response for GET /api/v1/runs/current.
type RunStatusResponse struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Publishers []string   `json:"publishers"`
	Completed  int        `json:"completed"`
	Total      int        `json:"total"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// RunJob tracks an in-progress or finished refresh.
type RunJob struct {
	ID         string
	Status     string // "running", "completed", "failed"
	Publishers []string
	Completed  int
	StartedAt  time.Time
	FinishedAt *time.Time
	Error      string
}

// RankingsResponse is the response for GET /api/v1/rankings.
type RankingsResponse struct {
	Success    bool               `json:"success"`
	University string             `json:"university"`
	UpdatedAt  *time.Time         `json:"updated_at,omitempty"`
	Rankings   map[string]RankMap `json:"rankings,omitempty"`
	Error      *ErrorDetail       `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string   `json:"status"`
	Uptime     string   `json:"uptime"`
	Version    string   `json:"version"`
	Publishers []string `json:"publishers"`
	Running    bool     `json:"running"`
}

// ErrorResponse wraps an ErrorDetail for endpoints without a richer body.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
