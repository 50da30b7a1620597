package store

import (
	"sort"

	"github.com/oicur0t/watchlogs/pkg/models"
)

// sortNewest stable-sorts logs by descending date
func sortNewest(logs []*models.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Date.After(logs[j].Date)
	})
}

// mergeNewest merges two newest-first sequences. On equal dates the fresh
// entries go first.
func mergeNewest(fresh, existing []*models.Log) []*models.Log {
	out := make([]*models.Log, 0, len(fresh)+len(existing))
	i, j := 0, 0
	for i < len(fresh) && j < len(existing) {
		if existing[j].Date.After(fresh[i].Date) {
			out = append(out, existing[j])
			j++
		} else {
			out = append(out, fresh[i])
			i++
		}
	}
	out = append(out, fresh[i:]...)
	return append(out, existing[j:]...)
}
