package source

import (
	"github.com/unirank/unirank/config"
	"github.com/unirank/unirank/matcher"
	"github.com/unirank/unirank/models"
)

// Constructor builds a publisher profile for a search term.
type Constructor func(search string) Profile

var constructors = map[string]Constructor{
	"leiden":   Leiden,
	"scimago":  Scimago,
	"times":    Times,
	"shanghai": Shanghai,
	"isc":      ISC,
}

// Names returns the known publishers in their canonical order.
func Names() []string {
	out := make([]string, len(config.DefaultPublishers))
	copy(out, config.DefaultPublishers)
	return out
}

// ProfileFor returns the profile of a known publisher.
func ProfileFor(name, search string) (Profile, error) {
	ctor, ok := constructors[name]
	if !ok {
		return Profile{}, models.NewConfigError("unknown publisher %q", name)
	}
	return ctor(search), nil
}

// Build creates an adapter for every enabled publisher, in configuration order.
func Build(cfg *config.Config, r Renderers) ([]Adapter, error) {
	id, err := matcher.FromConfig(cfg.Institution)
	if err != nil {
		return nil, err
	}

	adapters := make([]Adapter, 0, len(cfg.Publishers.Enabled))
	for _, name := range cfg.Publishers.Enabled {
		p, err := ProfileFor(name, cfg.Institution.SearchTerm)
		if err != nil {
			return nil, err
		}
		a, err := NewTableAdapter(p, r, id, cfg.Scraper)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}
