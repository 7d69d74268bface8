package source

import "github.com/unirank/unirank/models"

// Shanghai is the Academic Ranking of World Universities. The list is
// paged client-side; typing the search term into the table filter brings
// the target row onto the first page. The first page is already rendered
// when the search runs, so the snapshot waits until every row names the
// term rather than for rows to exist.
func Shanghai(search string) Profile {
	return Profile{
		Name:          "shanghai",
		Editions:      yearRange(2017, 2024),
		URL:           "https://www.shanghairanking.com/rankings/arwu/{id}",
		ReadySelector: ".rk-table tbody tr",
		Steps: []models.Step{
			{Type: "input", Selector: ".search-input input", Value: search, Submit: true},
			{Type: "narrowed", Selector: ".rk-table tbody tr", Value: search},
		},
		Rule: RowRule{
			Table:            ".rk-table",
			MinCells:         2,
			RankCell:         0,
			IdentityCells:    []int{1},
			IdentitySelector: ".univ-name",
		},
	}
}
