package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/redispatch/curtailcast/internal/models"
)

// MemorySource serves events held in memory, e.g. read from a CSV export.
type MemorySource struct {
	events []models.CurtailmentEvent
}

func NewMemorySource(events []models.CurtailmentEvent) *MemorySource {
	return &MemorySource{events: events}
}

// ListEvents returns the facility's events overlapping [start, end].
func (s *MemorySource) ListEvents(_ context.Context, facilityID string, start, end time.Time) ([]models.CurtailmentEvent, error) {
	var out []models.CurtailmentEvent
	for _, e := range s.events {
		if e.FacilityID != facilityID || e.End.Before(start) || e.Start.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ListFacilities returns the distinct facility ids in sorted order.
func (s *MemorySource) ListFacilities(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range s.events {
		if !seen[e.FacilityID] {
			seen[e.FacilityID] = true
			ids = append(ids, e.FacilityID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
