package source

import (
	"strconv"

	"github.com/unirank/unirank/models"
)

// Leiden is the CWTS Leiden Ranking. The listing is rendered client-side
// into one or more paged tables; the PP(top 10%) indicator is the default
// on most editions, so selecting it is optional.
func Leiden(string) Profile {
	return Profile{
		Name:          "leiden",
		Editions:      yearRange(2013, 2024),
		URL:           "https://www.leidenranking.com/ranking/{id}",
		ReadySelector: "table.pagedtable.ranking",
		Steps: []models.Step{
			{Type: "select", Selector: "#indicator_select", Value: "PP(top 10%)", Optional: true},
			{Type: "stable"},
		},
		Rule: RowRule{
			Table:         "table.pagedtable.ranking",
			MinCells:      5,
			RankCell:      0,
			RankClass:     "rank",
			IdentityCells: []int{1},
			IdentityClass: "university",
			IdentityAttrs: []string{"data-tooltip"},
			IntegerOnly:   true,
		},
	}
}

// yearRange returns editions whose YearKey and identifier are both the
// calendar year, first..last inclusive.
func yearRange(first, last int) []Edition {
	editions := make([]Edition, 0, last-first+1)
	for y := first; y <= last; y++ {
		s := strconv.Itoa(y)
		editions = append(editions, Edition{Year: s, ID: s})
	}
	return editions
}
