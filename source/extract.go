package source

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/unirank/unirank/matcher"
	"github.com/unirank/unirank/models"
	"github.com/unirank/unirank/simhash"
)

// RowRule says where the rank and the identity text live in a table.
type RowRule struct {
	// Table selects the ranking table(s); every match is scanned in order.
	Table string

	// Row selects rows inside a table. Default "tr".
	Row string

	// MinCells skips header and filler rows with fewer <td> cells.
	MinCells int

	// RankCell is the index of the rank cell.
	RankCell int

	// RankClass, if set, must be one of the rank cell's classes.
	RankClass string

	// IdentityCells are the cells whose text names the institution.
	IdentityCells []int

	// IdentityClass, if set, must be a class of the first identity cell.
	IdentityClass string

	// IdentitySelector narrows identity text to a descendant, e.g. ".univ-name".
	// The whole cell text is always used as well.
	IdentitySelector string

	// IdentityAttrs are attributes read from the identity cells and their
	// descendants (tooltips carry unabbreviated names).
	IdentityAttrs []string

	// IntegerOnly rejects ranges, ties and open-ended ranks.
	IntegerOnly bool
}

// nearMissScore is the similarity above which an unmatched row is named
// in the NotFound reason.
const nearMissScore = 0.9

var (
	rankPattern    = regexp.MustCompile(`^=?\d+(?:\.\d+)?(?:-\d+|\+)?$`)
	integerPattern = regexp.MustCompile(`^\d+$`)
	rankReplacer   = strings.NewReplacer(
		"–", "-", "—", "-", "−", "-",
		"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
		"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
		"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
		"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	)
)

// NormalizeRank collapses whitespace, unifies dashes and Persian digits and
// drops spaces around a range separator: " 601 – 800 " becomes "601-800".
func NormalizeRank(s string) string {
	s = rankReplacer.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(strings.ReplaceAll(s, " -", "-"), "- ", "-")
}

// ValidRank reports whether s looks like a published rank.
func ValidRank(s string, integerOnly bool) bool {
	if integerOnly {
		return integerPattern.MatchString(s)
	}
	return rankPattern.MatchString(s)
}

// Extract scans a rendered listing for the first row naming the institution.
// An absent table or an unlisted institution is a clean NotFound; a matched
// row whose rank cell is unusable is NotFound with status mismatch.
func Extract(rawHTML string, rule RowRule, id matcher.Identity) (models.Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return models.Extraction{}, models.NewScrapeError(models.ErrCodeExtraction, "parse listing", err)
	}

	tables := doc.Find(rule.Table)
	if tables.Length() == 0 {
		return models.NotFound("table not present"), nil
	}

	var fingerprint uint64
	if outer, err := goquery.OuterHtml(tables.First()); err == nil {
		fingerprint = simhash.FingerprintLayout(outer)
	}

	rowSel := rule.Row
	if rowSel == "" {
		rowSel = "tr"
	}

	ext := models.NotFound("institution not listed")
	var nearMiss string
	var nearScore float64
	tables.Find(rowSel).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < rule.MinCells || cells.Length() <= rule.RankCell {
			return true
		}
		rankCell := cells.Eq(rule.RankCell)
		if rule.RankClass != "" && !rankCell.HasClass(rule.RankClass) {
			return true
		}
		fragments := identityFragments(cells, rule)
		if !id.Matches(fragments...) {
			if f, score := id.Closest(fragments...); score > nearScore {
				nearMiss, nearScore = f, score
			}
			return true
		}

		// First match wins, even when its rank is unusable.
		rank := NormalizeRank(rankCell.Text())
		switch {
		case rank == "":
			ext = models.Extraction{Status: models.StatusMismatch, Reason: "matched row has an empty rank cell"}
		case !ValidRank(rank, rule.IntegerOnly):
			ext = models.Extraction{Status: models.StatusMismatch, Reason: fmt.Sprintf("rank cell %q is not a rank", rank)}
		default:
			ext = models.Extraction{Status: models.StatusFound, Rank: rank}
		}
		return false
	})

	if ext.Status == models.StatusNotFound && nearScore >= nearMissScore {
		ext.Reason = fmt.Sprintf("institution not listed; closest row %q (%.2f)", nearMiss, nearScore)
	}
	ext.Fingerprint = fingerprint
	return ext, nil
}

// identityFragments collects the visible text and attribute values that may
// name the institution. Nil when a required identity class is missing.
func identityFragments(cells *goquery.Selection, rule RowRule) []string {
	var fragments []string
	for i, idx := range rule.IdentityCells {
		if idx >= cells.Length() {
			continue
		}
		cell := cells.Eq(idx)
		if i == 0 && rule.IdentityClass != "" && !cell.HasClass(rule.IdentityClass) {
			return nil
		}
		fragments = append(fragments, cell.Text())
		if rule.IdentitySelector != "" {
			cell.Find(rule.IdentitySelector).Each(func(_ int, s *goquery.Selection) {
				fragments = append(fragments, s.Text())
			})
		}
		for _, attr := range rule.IdentityAttrs {
			if v, ok := cell.Attr(attr); ok {
				fragments = append(fragments, v)
			}
			cell.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
				fragments = append(fragments, s.AttrOr(attr, ""))
			})
		}
	}
	return fragments
}
