package source

import (
	"net/url"
	"strings"

	"github.com/unirank/unirank/models"
)

// Times is the Times Higher Education World University Rankings. The hash
// fragment makes the client-side table filter to Iran and the search term,
// so the target row is on the first page. An edition that does not list
// the institution draws a single placeholder row, which still settles the
// wait and ends in a clean NotFound.
func Times(search string) Profile {
	name := url.PathEscape(strings.ToLower(strings.TrimSpace(search)))
	return Profile{
		Name:          "times",
		Editions:      yearRange(2013, 2025),
		URL:           "https://www.timeshighereducation.com/world-university-rankings/{id}/world-ranking#!/length/25/locations/IRN/name/" + name + "/sort_by/rank/sort_order/asc/cols/scores",
		ReadySelector: "#datatable-1",
		Steps: []models.Step{
			{Type: "wait", Selector: "#datatable-1 tbody tr"},
			{Type: "narrowed", Selector: "#datatable-1 tbody tr", Value: search},
		},
		Rule: RowRule{
			Table:         "table#datatable-1",
			MinCells:      2,
			RankCell:      0,
			RankClass:     "rank",
			IdentityCells: []int{1},
		},
	}
}
