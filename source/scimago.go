package source

// Scimago is the SCImago Institutions Rankings, higher-education sector
// filtered to Iran. The table is server-rendered, so the HTTP engine
// usually wins the race.
func Scimago(string) Profile {
	return Profile{
		Name:          "scimago",
		Editions:      yearRange(2019, 2024),
		URL:           "https://www.scimagoir.com/rankings.php?sector=Higher+educ.&country=IRN&year={id}",
		ReadySelector: "table#rankingtable, table.ranking-table",
		Static:        true,
		Rule: RowRule{
			Table:         "table#rankingtable, table.ranking-table",
			MinCells:      3,
			RankCell:      0,
			IdentityCells: []int{1, 2},
			IdentityAttrs: []string{"title"},
		},
	}
}
