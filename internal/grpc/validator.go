package server

import (
	"fmt"
	"time"

	"github.com/redispatch/curtailcast/internal/forecast"
	"github.com/redispatch/curtailcast/internal/timeline"
)

const maxTimeRange = 2 * 366 * 24 * time.Hour

type RequestValidator struct{}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{}
}

// Validate checks the horizon and frequency of a request.
func (v *RequestValidator) Validate(facilityID string, start, end time.Time, frequency string) (timeline.Frequency, error) {
	if facilityID == "" {
		return "", fmt.Errorf("missing facility id")
	}

	// Validate timestamps are present
	if start.IsZero() || end.IsZero() || start.Equal(time.Unix(0, 0)) || end.Equal(time.Unix(0, 0)) {
		return "", fmt.Errorf("missing timestamp")
	}

	if start.After(end) {
		return "", fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > maxTimeRange {
		return "", fmt.Errorf("time range exceeds maximum allowed")
	}

	if frequency == "" {
		return "", fmt.Errorf("invalid frequency: ")
	}
	freq, err := timeline.ParseFrequency(frequency)
	if err != nil {
		return "", fmt.Errorf("invalid frequency: %s", frequency)
	}
	return freq, nil
}

// ValidateStrategies resolves strategy names. An empty list selects all.
func (v *RequestValidator) ValidateStrategies(names []string) ([]forecast.Strategy, error) {
	if len(names) == 0 {
		return forecast.Strategies(), nil
	}
	out := make([]forecast.Strategy, 0, len(names))
	for _, name := range names {
		s, err := forecast.ParseStrategy(name)
		if err != nil {
			return nil, fmt.Errorf("invalid strategy: %s", name)
		}
		out = append(out, s)
	}
	return out, nil
}

// ValidateEvaluationStart requires the held-out range to begin inside the horizon.
func (v *RequestValidator) ValidateEvaluationStart(start, end, evaluationStart time.Time) error {
	if evaluationStart.IsZero() {
		return fmt.Errorf("missing evaluation start")
	}
	if !evaluationStart.After(start) || evaluationStart.After(end) {
		return fmt.Errorf("evaluation start must be after start and not after end")
	}
	return nil
}
