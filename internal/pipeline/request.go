package pipeline

import (
	"fmt"
	"time"

	"github.com/redispatch/curtailcast/internal/config"
	"github.com/redispatch/curtailcast/internal/forecast"
	"github.com/redispatch/curtailcast/internal/models"
	"github.com/redispatch/curtailcast/internal/timeline"
)

// RequestFromConfig builds a full-year run for facilityID from the forecast
// section of the configuration.
func RequestFromConfig(cfg config.ForecastConfig, facilityID string) (RunRequest, error) {
	freq, err := timeline.ParseFrequency(cfg.Frequency)
	if err != nil {
		return RunRequest{}, err
	}
	evalStart, err := cfg.EvaluationStartTime()
	if err != nil {
		return RunRequest{}, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}

	strategies := make([]forecast.Strategy, 0, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		s, err := forecast.ParseStrategy(name)
		if err != nil {
			return RunRequest{}, err
		}
		strategies = append(strategies, s)
	}

	params := ParamsFromConfig(cfg)
	if err := params.Validate(); err != nil {
		return RunRequest{}, err
	}

	start := time.Date(cfg.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return RunRequest{
		ReconstructRequest: ReconstructRequest{
			FacilityID: facilityID,
			Frequency:  freq,
			Start:      start,
			End:        start.AddDate(1, 0, 0).Add(-time.Second),
		},
		EvaluationStart: evalStart,
		Strategies:      strategies,
		Params:          params,
	}, nil
}

// ParamsFromConfig maps the configured model parameters onto forecast.Params.
func ParamsFromConfig(cfg config.ForecastConfig) forecast.Params {
	return forecast.Params{
		Alpha:          cfg.Alpha,
		Beta:           cfg.Beta,
		Lag:            cfg.Lag,
		LeadTime:       cfg.LeadTime,
		Quantile:       cfg.Quantile,
		QuantileMethod: cfg.QuantileMethod,
		Samples:        cfg.Samples,
		Seed:           cfg.Seed,
		Workers:        cfg.Workers,
	}
}
