package source

// iscEditions maps Persian academic years to the Gregorian year ISC uses
// as the edition parameter.
var iscEditions = []Edition{
	{Year: "1393-1394", ID: "2014"},
	{Year: "1394-1395", ID: "2015"},
	{Year: "1395-1396", ID: "2016"},
	{Year: "1396-1397", ID: "2017"},
	{Year: "1397-1398", ID: "2018"},
	{Year: "1398-1399", ID: "2019"},
	{Year: "1399-1400", ID: "2020"},
	{Year: "1400-1401", ID: "2021"},
	{Year: "1401-1402", ID: "2022"},
	{Year: "1402-1403", ID: "2023"},
}

// ISC is the Islamic World Science Citation Center national university
// ranking. Rows carry the English and the Persian name in separate cells.
func ISC(string) Profile {
	editions := make([]Edition, len(iscEditions))
	copy(editions, iscEditions)
	return Profile{
		Name:          "isc",
		Editions:      editions,
		URL:           "https://ur.isc.ac/Default.aspx?Lan=en&Type=0&RankingType=1&year={id}",
		ReadySelector: "table.rgMasterTable",
		Rule: RowRule{
			Table:         "table.rgMasterTable",
			Row:           "tbody > tr",
			MinCells:      3,
			RankCell:      0,
			IdentityCells: []int{1, 2},
			IdentityAttrs: []string{"title"},
		},
	}
}
