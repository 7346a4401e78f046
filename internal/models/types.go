package models

import (
	"fmt"
	"time"
)

// CurtailmentEvent is a single redispatch order for one facility.
type CurtailmentEvent struct {
	ID           string    `json:"id"`
	FacilityID   string    `json:"facility_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	NominalPower float64   `json:"nominal_power"`
	LevelPct     int       `json:"level_pct"`
}

// CurtailmentPower is the share of nominal power taken off the grid while
// the event is active. A level of 30 means 30% output is still permitted.
func (e CurtailmentEvent) CurtailmentPower() float64 {
	return float64(100-e.LevelPct) * e.NominalPower / 100
}

// Duration returns End - Start.
func (e CurtailmentEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Validate reports malformed events as ErrDataIntegrity.
func (e CurtailmentEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: event without id", ErrDataIntegrity)
	}
	if e.End.Before(e.Start) {
		return fmt.Errorf("%w: event %s ends before it starts (%s < %s)",
			ErrDataIntegrity, e.ID, e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
	}
	if e.NominalPower < 0 {
		return fmt.Errorf("%w: event %s has negative nominal power %v", ErrDataIntegrity, e.ID, e.NominalPower)
	}
	if e.LevelPct < 0 || e.LevelPct > 100 {
		return fmt.Errorf("%w: event %s has curtailment level %d outside 0..100", ErrDataIntegrity, e.ID, e.LevelPct)
	}
	return nil
}

// SeriesPoint is one slot of a reconstructed series.
type SeriesPoint struct {
	Time             time.Time `json:"timestamp"`
	Power            float64   `json:"power"`
	Energy           float64   `json:"energy"`
	CumulativeEnergy float64   `json:"cumulative_energy"`
}

// ReconstructedSeries is the uniform curtailment series for one facility.
type ReconstructedSeries struct {
	FacilityID string        `json:"facility_id,omitempty"`
	Frequency  string        `json:"frequency"`
	Points     []SeriesPoint `json:"points"`
}

// Len returns the number of slots.
func (s ReconstructedSeries) Len() int { return len(s.Points) }

// Powers returns the power column.
func (s ReconstructedSeries) Powers() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Power
	}
	return out
}

// Times returns the timestamp column.
func (s ReconstructedSeries) Times() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Time
	}
	return out
}

// Prediction is a single forecast value.
type Prediction struct {
	Time  time.Time `json:"timestamp"`
	Value float64   `json:"predicted_value"`
}

// PredictionSeries holds walk-forward predictions for a held-out range.
type PredictionSeries struct {
	FacilityID string       `json:"facility_id,omitempty"`
	Strategy   string       `json:"strategy"`
	Points     []Prediction `json:"points"`
}

// Values returns the predicted values in order.
func (p PredictionSeries) Values() []float64 {
	out := make([]float64, len(p.Points))
	for i, pt := range p.Points {
		out[i] = pt.Value
	}
	return out
}
