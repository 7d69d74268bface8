package models

import "time"

// Record is the consolidated document persisted between runs.
type Record struct {
	University string             `json:"university"`
	UpdatedAt  *time.Time         `json:"updated_at,omitempty"`
	Rankings   map[string]RankMap `json:"rankings"`

	// Layouts holds the hex SimHash of each located ranking table,
	// keyed by publisher then year.
	Layouts map[string]map[string]string `json:"layouts,omitempty"`
}

// NewRecord returns an empty record for the given institution.
func NewRecord(university string) *Record {
	return &Record{
		University: university,
		Rankings:   make(map[string]RankMap),
		Layouts:    make(map[string]map[string]string),
	}
}

// Baseline returns the stored map for publisher. Absent publishers yield
// an empty map, never an error.
func (r *Record) Baseline(publisher string) RankMap {
	if r == nil || r.Rankings == nil {
		return RankMap{}
	}
	if m, ok := r.Rankings[publisher]; ok && m != nil {
		return m
	}
	return RankMap{}
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{
		University: r.University,
		Rankings:   make(map[string]RankMap, len(r.Rankings)),
		Layouts:    make(map[string]map[string]string, len(r.Layouts)),
	}
	if r.UpdatedAt != nil {
		t := *r.UpdatedAt
		out.UpdatedAt = &t
	}
	for p, m := range r.Rankings {
		out.Rankings[p] = m.Clone()
	}
	for p, fps := range r.Layouts {
		cp := make(map[string]string, len(fps))
		for y, fp := range fps {
			cp[y] = fp
		}
		out.Layouts[p] = cp
	}
	return out
}
