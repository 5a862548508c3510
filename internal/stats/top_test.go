package stats

import (
	"testing"

	"github.com/verte-zerg/ember/internal/model"
)

func TestTopZones(t *testing.T) {
	zones := []model.ZoneDeaths{
		{ZoneID: 300100, ZoneName: "High Wall of Lothric", Count: 3},
		{ZoneID: 310201, ZoneName: "Abyss Watchers", Count: 9},
		{ZoneID: 300001, ZoneName: "Cemetery of Ash", Count: 3},
	}
	top := TopZones(zones, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 zones, got %d", len(top))
	}
	if top[0].ZoneID != 310201 || top[1].ZoneID != 300001 {
		t.Fatalf("unexpected order: %+v", top)
	}
	if zones[0].ZoneID != 300100 {
		t.Fatalf("input must not be reordered")
	}
	if all := TopZones(zones, 0); len(all) != 3 {
		t.Fatalf("expected all zones, got %d", len(all))
	}
}
