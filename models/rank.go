package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// RankMap maps a YearKey to the rank a publisher reported for that edition.
// A nil value means "no value known"; the key is still present so the map
// keeps a stable schema across runs.
type RankMap map[string]*string

// Rank returns a pointer to a copy of s, for building RankMap literals.
func Rank(s string) *string {
	return &s
}

// NewRankMap returns a map holding every given year with a null value.
func NewRankMap(years []string) RankMap {
	m := make(RankMap, len(years))
	for _, y := range years {
		m[y] = nil
	}
	return m
}

// Get returns the value for year, or nil when the year is absent.
func (m RankMap) Get(year string) *string {
	if m == nil {
		return nil
	}
	return m[year]
}

// Years returns the map's keys in sorted order.
func (m RankMap) Years() []string {
	years := make([]string, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Strings(years)
	return years
}

// Clone returns a deep copy of m.
func (m RankMap) Clone() RankMap {
	if m == nil {
		return nil
	}
	out := make(RankMap, len(m))
	for y, v := range m {
		if v != nil {
			out[y] = Rank(*v)
		} else {
			out[y] = nil
		}
	}
	return out
}

// UnmarshalJSON accepts strings, integers (older records stored Leiden
// ranks as JSON numbers) and nulls.
func (m *RankMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(RankMap, len(raw))
	for year, msg := range raw {
		msg = bytes.TrimSpace(msg)
		switch {
		case len(msg) == 0 || bytes.Equal(msg, []byte("null")):
			out[year] = nil
		case msg[0] == '"':
			var s string
			if err := json.Unmarshal(msg, &s); err != nil {
				return fmt.Errorf("rank for %s: %w", year, err)
			}
			if s = strings.TrimSpace(s); s == "" {
				out[year] = nil
			} else {
				out[year] = Rank(s)
			}
		default:
			var n json.Number
			if err := json.Unmarshal(msg, &n); err != nil {
				return fmt.Errorf("rank for %s: %w", year, err)
			}
			out[year] = Rank(n.String())
		}
	}
	*m = out
	return nil
}

// Status is the terminal state of one (publisher, year) task.
type Status string

const (
	StatusFound       Status = "found"
	StatusNotFound    Status = "not_found"
	StatusMismatch    Status = "mismatch"
	StatusExhausted   Status = "exhausted"
	StatusConfigError Status = "config_error"
	StatusFailed      Status = "failed"
	StatusLayoutDrift Status = "layout_drift"
)

// Extraction is what a source adapter produced for one year.
// Rank is empty unless Status is StatusFound.
type Extraction struct {
	Rank        string
	Status      Status
	Reason      string
	Fingerprint uint64
	Attempts    int
}

// Found reports whether the extraction carries a rank.
func (e Extraction) Found() bool {
	return e.Status == StatusFound && e.Rank != ""
}

// NotFound builds a clean NotFound extraction with a reason.
func NotFound(reason string) Extraction {
	return Extraction{Status: StatusNotFound, Reason: reason}
}

// Outcome is one task result as seen by the observability sink.
type Outcome struct {
	Publisher   string `json:"publisher"`
	Year        string `json:"year"`
	Status      Status `json:"status"`
	Rank        string `json:"rank,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Attempts    int    `json:"attempts"`
	Fingerprint uint64 `json:"fingerprint,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}
