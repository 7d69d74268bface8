// Package merge folds a fresh scrape into the previously persisted state.
package merge

import "github.com/unirank/unirank/models"

// Merge returns, for every year in the union of both maps, the fresh value
// when it is non-null and the baseline value otherwise. A known rank is
// never replaced by null. Neither input is modified.
func Merge(baseline, fresh models.RankMap) models.RankMap {
	out := make(models.RankMap, len(baseline)+len(fresh))
	for year, v := range baseline {
		out[year] = copyRank(v)
	}
	for year, v := range fresh {
		if v != nil {
			out[year] = copyRank(v)
		} else if _, ok := out[year]; !ok {
			out[year] = nil
		}
	}
	return out
}

// Changed lists the years whose value differs between before and after,
// in sorted order.
func Changed(before, after models.RankMap) []string {
	var years []string
	for _, year := range after.Years() {
		a, b := after[year], before.Get(year)
		switch {
		case a == nil && b == nil:
		case a == nil || b == nil || *a != *b:
			years = append(years, year)
		}
	}
	return years
}

func copyRank(v *string) *string {
	if v == nil {
		return nil
	}
	return models.Rank(*v)
}
