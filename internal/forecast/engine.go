// Package forecast implements causal walk-forward forecasting of a
// reconstructed curtailment series.
//
// For each target time only observations strictly before it are visible to
// the model: the history is passed as a capacity-limited prefix slice, so a
// strategy cannot reach later values even by reslicing. Croston variants are
// refit from scratch on every prefix.
package forecast

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/redispatch/curtailcast/internal/models"
	"github.com/redispatch/curtailcast/internal/timeline"
)

// predictFunc predicts the value at absolute series index from its history.
type predictFunc func(history []float64, index int) (float64, error)

// Forecast produces one prediction per slot of target, which must be the
// tail of the series timeline.
func Forecast(
	ctx context.Context,
	series models.ReconstructedSeries,
	strategy Strategy,
	params Params,
	target []timeline.TimeSlot,
) (models.PredictionSeries, error) {
	if err := params.Validate(); err != nil {
		return models.PredictionSeries{}, err
	}
	offset, err := suffixOffset(series, target)
	if err != nil {
		return models.PredictionSeries{}, err
	}
	predict, err := predictorFor(strategy, params)
	if err != nil {
		return models.PredictionSeries{}, err
	}

	values := series.Powers()
	points := make([]models.Prediction, len(target))

	step := func(i int) error {
		index := offset + i
		history := values[:index:index]
		v, err := predict(history, index)
		if err != nil {
			return fmt.Errorf("%s forecast at %s: %w", strategy, target[i].Start.Format(time.RFC3339), err)
		}
		points[i] = models.Prediction{Time: target[i].Start, Value: v}
		return nil
	}

	if params.Workers <= 1 {
		for i := range target {
			if err := ctx.Err(); err != nil {
				return models.PredictionSeries{}, err
			}
			if err := step(i); err != nil {
				return models.PredictionSeries{}, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(params.Workers)
		for i := range target {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return step(i)
			})
		}
		if err := g.Wait(); err != nil {
			return models.PredictionSeries{}, err
		}
	}

	return models.PredictionSeries{
		FacilityID: series.FacilityID,
		Strategy:   string(strategy),
		Points:     points,
	}, nil
}

func predictorFor(strategy Strategy, params Params) (predictFunc, error) {
	switch strategy {
	case Naive:
		return func(history []float64, _ int) (float64, error) {
			return NaivePredict(history, params.Lag)
		}, nil
	case CrostonStandard, CrostonTSB:
		method := MethodStandard
		if strategy == CrostonTSB {
			method = MethodTSB
		}
		return func(history []float64, _ int) (float64, error) {
			state, err := FitCroston(history, method, params.Alpha, params.Beta)
			if err != nil {
				return 0, err
			}
			f, err := state.Forecast(1)
			if err != nil {
				return 0, err
			}
			return f[0], nil
		}, nil
	case MarkovQuantile:
		seed := rand.Uint64()
		if params.Seed != nil {
			seed = *params.Seed
		}
		return func(history []float64, index int) (float64, error) {
			// One independent stream per target index keeps results
			// identical for any worker count.
			rng := rand.New(rand.NewPCG(seed, uint64(index)))
			return MarkovForecast(history, params, rng)
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown strategy %q", models.ErrConfiguration, string(strategy))
}

// suffixOffset returns the series index of the first target slot.
func suffixOffset(series models.ReconstructedSeries, target []timeline.TimeSlot) (int, error) {
	if len(target) == 0 {
		return 0, fmt.Errorf("%w: empty target range", models.ErrConfiguration)
	}
	offset := len(series.Points) - len(target)
	if offset < 0 {
		return 0, fmt.Errorf("%w: target range has %d slots but series only %d",
			models.ErrDataIntegrity, len(target), len(series.Points))
	}
	for i, slot := range target {
		if !series.Points[offset+i].Time.Equal(slot.Start) {
			return 0, fmt.Errorf("%w: target slot %s is not aligned with the series tail",
				models.ErrDataIntegrity, slot.Start.Format(time.RFC3339))
		}
	}
	return offset, nil
}

// TargetRangeFrom returns the slots of series at or after start.
func TargetRangeFrom(series models.ReconstructedSeries, start time.Time) ([]timeline.TimeSlot, error) {
	freq, err := timeline.ParseFrequency(series.Frequency)
	if err != nil {
		return nil, err
	}
	step, err := freq.Step()
	if err != nil {
		return nil, err
	}

	var slots []timeline.TimeSlot
	for _, p := range series.Points {
		if p.Time.Before(start) {
			continue
		}
		slots = append(slots, timeline.TimeSlot{Start: p.Time, Duration: step})
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: no slot at or after %s", models.ErrConfiguration, start.Format(time.RFC3339))
	}
	return slots, nil
}
