// Package evaluation scores walk-forward predictions against the
// reconstructed series.
package evaluation

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/redispatch/curtailcast/internal/models"
)

// Metrics summarizes point-forecast accuracy over the compared entries.
type Metrics struct {
	MAE   float64 `json:"mae"`
	RMSE  float64 `json:"rmse"`
	Count int     `json:"count"`
}

// MeanAbsoluteError compares index-aligned values. NaN entries in actual are
// missing observations and are skipped.
func MeanAbsoluteError(actual, predicted []float64) (float64, error) {
	m, err := compare(actual, predicted)
	if err != nil {
		return 0, err
	}
	return m.MAE, nil
}

// Evaluate aligns predictions with the series by timestamp. Every prediction
// must fall on a series slot; slots whose power is NaN are missing values and
// are skipped.
func Evaluate(series models.ReconstructedSeries, predictions models.PredictionSeries) (Metrics, error) {
	index := make(map[int64]float64, len(series.Points))
	for _, p := range series.Points {
		index[p.Time.UnixNano()] = p.Power
	}

	actual := make([]float64, len(predictions.Points))
	predicted := make([]float64, len(predictions.Points))
	for i, p := range predictions.Points {
		if i > 0 && !p.Time.After(predictions.Points[i-1].Time) {
			return Metrics{}, fmt.Errorf("%w: prediction timestamps not strictly increasing at %s",
				models.ErrDataIntegrity, p.Time.Format(time.RFC3339))
		}
		v, ok := index[p.Time.UnixNano()]
		if !ok {
			return Metrics{}, fmt.Errorf("%w: prediction at %s has no slot in the series",
				models.ErrDataIntegrity, p.Time.Format(time.RFC3339))
		}
		actual[i] = v
		predicted[i] = p.Value
	}
	return compare(actual, predicted)
}

func compare(actual, predicted []float64) (Metrics, error) {
	if len(actual) != len(predicted) {
		return Metrics{}, fmt.Errorf("%w: %d actual values vs %d predictions",
			models.ErrDataIntegrity, len(actual), len(predicted))
	}

	absErr := make([]float64, 0, len(actual))
	sqErr := make([]float64, 0, len(actual))
	for i, a := range actual {
		if math.IsNaN(a) {
			continue
		}
		if math.IsNaN(predicted[i]) {
			return Metrics{}, fmt.Errorf("%w: missing prediction at index %d", models.ErrDataIntegrity, i)
		}
		d := a - predicted[i]
		absErr = append(absErr, math.Abs(d))
		sqErr = append(sqErr, d*d)
	}
	if len(absErr) == 0 {
		return Metrics{}, fmt.Errorf("%w: no actual values to compare against", models.ErrInsufficientData)
	}

	return Metrics{
		MAE:   stat.Mean(absErr, nil),
		RMSE:  math.Sqrt(stat.Mean(sqErr, nil)),
		Count: len(absErr),
	}, nil
}
