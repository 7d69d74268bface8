package models

import "strings"

// Step is one browser interaction performed after the readiness signal and
// before the markup snapshot.
type Step struct {
	// Type is one of "select", "click", "input", "wait", "narrowed",
	// "stable", "execute_js".
	Type string `json:"type"`

	// Selector targets the element for select/click/input/wait, and the
	// rows for "narrowed".
	Selector string `json:"selector,omitempty"`

	// Value is the option value for "select", the text for "input" and the
	// filter term for "narrowed".
	Value string `json:"value,omitempty"`

	// Submit presses Enter after an "input" step.
	Submit bool `json:"submit,omitempty"`

	// Code is the JavaScript function for "execute_js".
	Code string `json:"code,omitempty"`

	// Optional steps are logged and skipped on failure, e.g. selecting a
	// metric that some editions already show by default.
	Optional bool `json:"optional,omitempty"`
}

// Narrowed reports whether a client-side filter on Value has been applied
// to a table whose data rows have the given texts: every row mentions the
// term. No rows at all means the filter matched nothing, which is also a
// settled state. Placeholder rows ("No matching records") must be left out
// by the caller.
func (s Step) Narrowed(rowTexts []string) bool {
	term := strings.ToLower(strings.TrimSpace(s.Value))
	for _, text := range rowTexts {
		if !strings.Contains(strings.ToLower(text), term) {
			return false
		}
	}
	return true
}
