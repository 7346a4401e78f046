// Package aggregator distributes curtailment events onto a uniform time grid
// in proportion to their temporal overlap with each slot.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/redispatch/curtailcast/internal/models"
	"github.com/redispatch/curtailcast/internal/timeline"
)

// Accumulator holds per-slot energy for one grid. Accumulators built on the
// same grid can be merged in any order.
type Accumulator struct {
	origin time.Time
	step   time.Duration
	energy []float64
}

// NewAccumulator allocates an accumulator for the given grid. The grid must
// be non-empty, contiguous and use a single slot width.
func NewAccumulator(slots []timeline.TimeSlot) (*Accumulator, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: empty timeline", models.ErrConfiguration)
	}
	step := slots[0].Duration
	if step <= 0 {
		return nil, fmt.Errorf("%w: non-positive slot width %s", models.ErrConfiguration, step)
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Duration != step || !slots[i].Start.Equal(slots[i-1].Start.Add(step)) {
			return nil, fmt.Errorf("%w: timeline is not contiguous at slot %d", models.ErrConfiguration, i)
		}
	}
	return &Accumulator{
		origin: slots[0].Start,
		step:   step,
		energy: make([]float64, len(slots)),
	}, nil
}

// Add spreads one event over the slots it overlaps. Events outside the grid
// contribute nothing.
func (a *Accumulator) Add(e models.CurtailmentEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	a.spread(e, a.indexOf(e.Start))
	return nil
}

// Merge adds the energy of b into a.
func (a *Accumulator) Merge(b *Accumulator) error {
	if !a.origin.Equal(b.origin) || a.step != b.step || len(a.energy) != len(b.energy) {
		return fmt.Errorf("%w: cannot merge accumulators built on different grids", models.ErrConfiguration)
	}
	for i, v := range b.energy {
		a.energy[i] += v
	}
	return nil
}

// Energy returns a copy of the per-slot energy.
func (a *Accumulator) Energy() []float64 {
	out := make([]float64, len(a.energy))
	copy(out, a.energy)
	return out
}

func (a *Accumulator) slotStart(i int) time.Time {
	return a.origin.Add(time.Duration(i) * a.step)
}

// indexOf returns the slot containing t, clamped to the grid start.
func (a *Accumulator) indexOf(t time.Time) int {
	if !t.After(a.origin) {
		return 0
	}
	return int(t.Sub(a.origin) / a.step)
}

// spread walks slots from index from until the slot start passes the event end.
func (a *Accumulator) spread(e models.CurtailmentEvent, from int) {
	power := e.CurtailmentPower()
	for i := from; i < len(a.energy); i++ {
		slotStart := a.slotStart(i)
		if slotStart.After(e.End) {
			break
		}
		slotEnd := slotStart.Add(a.step)

		lo := slotStart
		if e.Start.After(lo) {
			lo = e.Start
		}
		hi := slotEnd
		if e.End.Before(hi) {
			hi = e.End
		}
		overlap := hi.Sub(lo)
		if overlap <= 0 {
			continue
		}
		a.energy[i] += power * overlap.Hours()
	}
}

// sweep accumulates events that are already sorted by start time. The cursor
// only moves forward because event starts are non-decreasing.
func (a *Accumulator) sweep(ctx context.Context, events []models.CurtailmentEvent) error {
	cursor := 0
	for i, e := range events {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for cursor < len(a.energy) && !a.slotStart(cursor).Add(a.step).After(e.Start) {
			cursor++
		}
		if cursor == len(a.energy) {
			return nil
		}
		a.spread(e, cursor)
	}
	return nil
}

// cancelCheckInterval is how many events a sweep handles between context checks.
const cancelCheckInterval = 256

// Aggregate reconstructs the curtailment series for events on the timeline.
func Aggregate(events []models.CurtailmentEvent, slots []timeline.TimeSlot) (models.ReconstructedSeries, error) {
	return AggregateParallel(context.Background(), events, slots, 1)
}

// AggregateParallel splits the sorted events into contiguous partitions,
// accumulates each partition independently and merges the results.
func AggregateParallel(
	ctx context.Context,
	events []models.CurtailmentEvent,
	slots []timeline.TimeSlot,
	workers int,
) (models.ReconstructedSeries, error) {
	freq, err := frequencyOf(slots)
	if err != nil {
		return models.ReconstructedSeries{}, err
	}
	sorted, err := sortedEvents(events)
	if err != nil {
		return models.ReconstructedSeries{}, err
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(sorted) {
		workers = len(sorted)
	}

	total, err := NewAccumulator(slots)
	if err != nil {
		return models.ReconstructedSeries{}, err
	}

	if workers <= 1 {
		if err := total.sweep(ctx, sorted); err != nil {
			return models.ReconstructedSeries{}, err
		}
		return buildSeries(total.energy, slots, freq)
	}

	parts := make([]*Accumulator, workers)
	chunk := (len(sorted) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(sorted) {
			hi = len(sorted)
		}
		if lo >= hi {
			continue
		}
		w := w
		g.Go(func() error {
			acc, err := NewAccumulator(slots)
			if err != nil {
				return err
			}
			if err := acc.sweep(gctx, sorted[lo:hi]); err != nil {
				return err
			}
			parts[w] = acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.ReconstructedSeries{}, err
	}
	for _, p := range parts {
		if p == nil {
			continue
		}
		if err := total.Merge(p); err != nil {
			return models.ReconstructedSeries{}, err
		}
	}
	return buildSeries(total.energy, slots, freq)
}

// FilterFacility keeps only the events of one facility.
func FilterFacility(events []models.CurtailmentEvent, facilityID string) []models.CurtailmentEvent {
	out := make([]models.CurtailmentEvent, 0, len(events))
	for _, e := range events {
		if e.FacilityID == facilityID {
			out = append(out, e)
		}
	}
	return out
}

func sortedEvents(events []models.CurtailmentEvent) ([]models.CurtailmentEvent, error) {
	sorted := make([]models.CurtailmentEvent, len(events))
	copy(sorted, events)
	for _, e := range sorted {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})
	return sorted, nil
}

func frequencyOf(slots []timeline.TimeSlot) (timeline.Frequency, error) {
	if len(slots) == 0 {
		return "", fmt.Errorf("%w: empty timeline", models.ErrConfiguration)
	}
	switch slots[0].Duration {
	case time.Hour:
		return timeline.Hour, nil
	case time.Minute:
		return timeline.Minute, nil
	case 24 * time.Hour:
		return timeline.Day, nil
	}
	return "", fmt.Errorf("%w: unsupported slot width %s", models.ErrConfiguration, slots[0].Duration)
}

func buildSeries(energy []float64, slots []timeline.TimeSlot, freq timeline.Frequency) (models.ReconstructedSeries, error) {
	factor, err := freq.UnitFactor()
	if err != nil {
		return models.ReconstructedSeries{}, err
	}

	points := make([]models.SeriesPoint, len(slots))
	cumulative := 0.0
	for i, slot := range slots {
		cumulative += energy[i]
		points[i] = models.SeriesPoint{
			Time:             slot.Start,
			Power:            energy[i] * factor,
			Energy:           energy[i],
			CumulativeEnergy: cumulative,
		}
	}
	return models.ReconstructedSeries{Frequency: string(freq), Points: points}, nil
}
