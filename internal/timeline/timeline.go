// Package timeline builds the uniform UTC grid that curtailment events are
// distributed onto.
package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/redispatch/curtailcast/internal/models"
)

// Frequency is the width of one grid slot.
type Frequency string

const (
	Hour   Frequency = "hour"
	Minute Frequency = "minute"
	Day    Frequency = "day"
)

var frequencyAliases = map[string]Frequency{
	"hour":   Hour,
	"h":      Hour,
	"1h":     Hour,
	"minute": Minute,
	"t":      Minute,
	"min":    Minute,
	"1m":     Minute,
	"day":    Day,
	"d":      Day,
	"1d":     Day,
}

// ParseFrequency accepts the canonical names plus the short aliases used by
// pandas offsets ("H", "T", "D") and query windows ("1h", "1m", "1d").
func ParseFrequency(s string) (Frequency, error) {
	if f, ok := frequencyAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown frequency %q", models.ErrConfiguration, s)
}

// Step returns the slot width.
func (f Frequency) Step() (time.Duration, error) {
	switch f {
	case Hour:
		return time.Hour, nil
	case Minute:
		return time.Minute, nil
	case Day:
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: unknown frequency %q", models.ErrConfiguration, string(f))
}

// UnitFactor converts the energy of one slot (in hour units) back into power.
func (f Frequency) UnitFactor() (float64, error) {
	switch f {
	case Hour:
		return 1, nil
	case Minute:
		return 60, nil
	case Day:
		return 1.0 / 24, nil
	}
	return 0, fmt.Errorf("%w: unknown frequency %q", models.ErrConfiguration, string(f))
}

// TimeSlot is one grid point covering [Start, Start+Duration).
type TimeSlot struct {
	Start    time.Time
	Duration time.Duration
}

// End returns the exclusive end of the slot.
func (s TimeSlot) End() time.Time {
	return s.Start.Add(s.Duration)
}

// Build returns every slot from start through the slot covering end, which
// gives floor((end-start)/step)+1 slots. An end that is not on a slot boundary
// falls inside the last slot rather than starting a new one.
func Build(start, end time.Time, freq Frequency) ([]TimeSlot, error) {
	step, err := freq.Step()
	if err != nil {
		return nil, err
	}
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: missing horizon bound", models.ErrConfiguration)
	}
	start, end = start.UTC(), end.UTC()
	if end.Before(start) {
		return nil, fmt.Errorf("%w: horizon end %s before start %s",
			models.ErrConfiguration, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	total := int(end.Sub(start)/step) + 1
	slots := make([]TimeSlot, total)
	for i := range slots {
		slots[i] = TimeSlot{Start: start.Add(time.Duration(i) * step), Duration: step}
	}
	return slots, nil
}

// ForYear builds the grid for one calendar year in UTC, from January 1st
// 00:00 up to the last slot that starts before the year ends.
func ForYear(year int, freq Frequency) ([]TimeSlot, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC).Add(-time.Second)
	return Build(start, end, freq)
}

// Times returns the slot start times.
func Times(slots []TimeSlot) []time.Time {
	out := make([]time.Time, len(slots))
	for i, s := range slots {
		out[i] = s.Start
	}
	return out
}
