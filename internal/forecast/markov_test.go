package forecast

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redispatch/curtailcast/internal/models"
)

func TestEstimateTransitionsRowsSumToOne(t *testing.T) {
	history := []float64{0, 3, 3, 0, 0, 0, 7, 0, 2, 2, 2, 0}

	m, err := EstimateTransitions(history)
	require.NoError(t, err)

	for from := 0; from < 2; from++ {
		assert.InDelta(t, 1.0, m[from][0]+m[from][1], 1e-9)
	}

	// out of 0: 0->1 three times, 0->0 twice
	assert.InDelta(t, 0.6, m[0][1], 1e-12)
	// out of 1: 1->1 three times, 1->0 three times
	assert.InDelta(t, 0.5, m[1][0], 1e-12)
}

func TestEstimateTransitionsMissingRow(t *testing.T) {
	_, err := EstimateTransitions([]float64{0, 0, 0, 0})
	assert.True(t, errors.Is(err, models.ErrInsufficientData))

	// state 1 only appears last, so no transition leaves it
	_, err = EstimateTransitions([]float64{0, 0, 0, 4})
	assert.True(t, errors.Is(err, models.ErrInsufficientData))

	_, err = EstimateTransitions([]float64{4})
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
}

func TestMarkovForecastAlwaysDemand(t *testing.T) {
	history := []float64{0, 5, 5, 5, 5}
	params := DefaultParams()
	params.LeadTime = 3

	v, err := MarkovForecast(history, params, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)
}

func TestMarkovForecastNeverDemand(t *testing.T) {
	history := []float64{7, 0, 0, 0, 0}

	v, err := MarkovForecast(history, DefaultParams(), rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestMarkovForecastSamplesFromHistory(t *testing.T) {
	history := []float64{0, 2, 0, 4, 4, 0, 8, 0, 0, 2, 4, 0}
	params := DefaultParams()
	params.Quantile = 1

	v, err := MarkovForecast(history, params, rand.New(rand.NewPCG(42, 0)))
	require.NoError(t, err)
	assert.Contains(t, []float64{0, 2, 4, 8}, v)
}

func TestMarkovForecastDeterministicWithSeed(t *testing.T) {
	history := []float64{0, 2, 0, 4, 4, 0, 8, 0, 0, 2, 4, 0, 1, 0, 0, 6}
	params := DefaultParams()
	params.Samples = 50
	params.Quantile = 0.6

	a, err := MarkovForecast(history, params, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	b, err := MarkovForecast(history, params, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMarkovForecastNeedsRandomSource(t *testing.T) {
	_, err := MarkovForecast([]float64{0, 1, 0, 1}, DefaultParams(), nil)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestQuantileSorted(t *testing.T) {
	x := []float64{1, 2, 3, 4}

	v, err := quantileSorted(x, 0.75, QuantileLinear)
	require.NoError(t, err)
	assert.InDelta(t, 3.25, v, 1e-12)

	v, err = quantileSorted(x, 0, QuantileLinear)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = quantileSorted(x, 1, QuantileLinear)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	v, err = quantileSorted(x, 0.75, QuantileEmpirical)
	require.NoError(t, err)
	assert.Contains(t, x, v)

	_, err = quantileSorted(nil, 0.5, QuantileLinear)
	assert.True(t, errors.Is(err, models.ErrInsufficientData))

	_, err = quantileSorted(x, 0.5, "nearest")
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}
