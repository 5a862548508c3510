// Package stats contains statistics calculations and reporting.
package stats

import (
	"sort"

	"github.com/verte-zerg/ember/internal/model"
)

// TopZones returns the n zones with the most deaths. n <= 0 keeps all.
func TopZones(zones []model.ZoneDeaths, n int) []model.ZoneDeaths {
	if len(zones) == 0 {
		return nil
	}
	items := make([]model.ZoneDeaths, len(zones))
	copy(items, zones)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].ZoneID < items[j].ZoneID
		}
		return items[i].Count > items[j].Count
	})
	if n <= 0 || n > len(items) {
		return items
	}
	return items[:n]
}
