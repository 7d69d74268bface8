// Package matcher decides whether a ranking-table row names the target
// institution. Matching is case-insensitive substring containment against
// an alias set. Closest scores near misses with Jaro-Winkler, but only for
// diagnostics; it never turns a row into a match.
package matcher

import (
	"strings"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/unirank/unirank/config"
	"github.com/unirank/unirank/models"
)

// Identity is the canonical name of the institution plus the aliases it
// may appear under. The zero value matches nothing.
type Identity struct {
	Name    string
	aliases []string
	exclude []string
}

// NewIdentity normalizes and de-duplicates the alias set. The canonical
// name always comes first. Blank aliases are dropped; an identity without
// a usable name is a CONFIG_ERROR.
func NewIdentity(name string, aliases []string, exclude []string) (Identity, error) {
	canonical := Normalize(name)
	if canonical == "" {
		return Identity{}, models.NewConfigError("institution identity has no canonical name")
	}

	id := Identity{Name: strings.TrimSpace(name)}
	seen := make(map[string]struct{}, len(aliases)+1)
	for _, a := range append([]string{name}, aliases...) {
		n := Normalize(a)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		id.aliases = append(id.aliases, n)
	}
	for _, e := range exclude {
		if n := Normalize(e); n != "" {
			id.exclude = append(id.exclude, n)
		}
	}
	return id, nil
}

// FromConfig builds the identity described by cfg.
func FromConfig(cfg config.InstitutionConfig) (Identity, error) {
	return NewIdentity(cfg.Name, cfg.Aliases, cfg.Exclude)
}

// Aliases returns the normalized alias set in match order.
func (id Identity) Aliases() []string {
	out := make([]string, len(id.aliases))
	copy(out, id.aliases)
	return out
}

// Matches reports whether any fragment contains any alias and no fragment
// contains an exclusion keyword.
func (id Identity) Matches(fragments ...string) bool {
	if len(id.aliases) == 0 {
		return false
	}
	normalized := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if n := Normalize(f); n != "" {
			normalized = append(normalized, n)
		}
	}

	for _, f := range normalized {
		if id.excluded(f) {
			return false
		}
	}
	for _, f := range normalized {
		for _, a := range id.aliases {
			if strings.Contains(f, a) {
				return true
			}
		}
	}
	return false
}

// Closest returns the fragment most similar to any alias and its
// Jaro-Winkler similarity in [0, 1]. Fragments carrying an exclusion
// keyword are ignored.
func (id Identity) Closest(fragments ...string) (string, float64) {
	var best string
	var score float64
	for _, f := range fragments {
		n := Normalize(f)
		if n == "" || id.excluded(n) {
			continue
		}
		for _, a := range id.aliases {
			if sim := matchr.JaroWinkler(n, a, false); sim > score {
				best, score = strings.TrimSpace(f), sim
			}
		}
	}
	return best, score
}

func (id Identity) excluded(normalized string) bool {
	for _, e := range id.exclude {
		if strings.Contains(normalized, e) {
			return true
		}
	}
	return false
}

// Matches is the function form of Identity.Matches.
func Matches(fragments []string, id Identity) bool {
	return id.Matches(fragments...)
}

// Arabic code points that Persian pages use interchangeably with the
// Persian ones, plus ZWNJ and NBSP which split words inconsistently.
var persian = strings.NewReplacer(
	"\u064a", "\u06cc", // ي → ی
	"\u0649", "\u06cc", // ى → ی
	"\u0643", "\u06a9", // ك → ک
	"\u200c", " ",
	"\u00a0", " ",
)

// Normalize folds case, applies NFKC, unifies Arabic/Persian letter forms
// and collapses whitespace runs to single spaces.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = persian.Replace(s)
	// Casers are stateful; one per call keeps Normalize goroutine-safe.
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
