package forecast

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redispatch/curtailcast/internal/models"
)

func TestFitCrostonStandard(t *testing.T) {
	d := []float64{0, 5, 0, 0, 3}

	state, err := FitCroston(d, MethodStandard, 0.5, 0.5)
	require.NoError(t, err)
	require.True(t, state.Fitted())
	assert.Equal(t, MethodStandard, state.Method())

	a, p, f := state.Level(), state.Periodicity(), state.Estimates()
	require.Len(t, f, len(d)+1)

	assert.InDelta(t, 5.0, a[0], 1e-12)
	assert.InDelta(t, 2.0, p[0], 1e-12)
	assert.InDelta(t, 2.5, f[0], 1e-12)

	// zero demand carries the state forward
	assert.InDelta(t, 2.5, f[1], 1e-12)
	// demand after one period
	assert.InDelta(t, 5.0, a[2], 1e-12)
	assert.InDelta(t, 2.0, p[2], 1e-12)
	// demand after three periods
	assert.InDelta(t, 4.0, a[5], 1e-12)
	assert.InDelta(t, 2.5, p[5], 1e-12)
	assert.InDelta(t, 1.6, f[5], 1e-12)

	out, err := state.Forecast(3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.6, 1.6, 1.6}, roundAll(out))
}

func TestFitCrostonTSB(t *testing.T) {
	d := []float64{0, 5, 0, 0, 3}

	state, err := FitCroston(d, MethodTSB, 0.5, 0.5)
	require.NoError(t, err)

	p, f := state.Periodicity(), state.Estimates()
	assert.InDelta(t, 0.5, p[0], 1e-12)
	assert.InDelta(t, 2.5, f[0], 1e-12)
	assert.InDelta(t, 0.25, p[1], 1e-12)
	assert.InDelta(t, 1.25, f[1], 1e-12)
	assert.InDelta(t, 0.625, p[2], 1e-12)
	assert.InDelta(t, 3.125, f[2], 1e-12)
	assert.InDelta(t, 0.578125, p[5], 1e-12)
	assert.InDelta(t, 2.3125, f[5], 1e-12)

	out, err := state.Forecast(1)
	require.NoError(t, err)
	assert.InDelta(t, 2.3125, out[0], 1e-12)
}

func TestFitCrostonIsPure(t *testing.T) {
	d := []float64{1, 0, 2, 0, 0, 4}

	first, err := FitCroston(d, MethodStandard, 0.3, 0.2)
	require.NoError(t, err)
	second, err := FitCroston(d, MethodStandard, 0.3, 0.2)
	require.NoError(t, err)
	assert.Equal(t, first.Estimates(), second.Estimates())

	estimates := first.Estimates()
	estimates[0] = 999
	assert.NotEqual(t, 999.0, first.Estimates()[0])
}

func TestFitCrostonZeroHistory(t *testing.T) {
	for _, method := range []CrostonMethod{MethodStandard, MethodTSB} {
		t.Run(string(method), func(t *testing.T) {
			_, err := FitCroston([]float64{0, 0, 0, -1}, method, 0.3, 0.2)
			assert.True(t, errors.Is(err, models.ErrInsufficientData))

			_, err = FitCroston(nil, method, 0.3, 0.2)
			assert.True(t, errors.Is(err, models.ErrInsufficientData))
		})
	}
}

func TestFitCrostonConfiguration(t *testing.T) {
	_, err := FitCroston([]float64{1}, CrostonMethod("sba"), 0.3, 0.2)
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	_, err = FitCroston([]float64{1}, MethodStandard, 0, 0.2)
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	_, err = FitCroston([]float64{1}, MethodTSB, 0.3, 1.5)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestCrostonForecastBeforeFit(t *testing.T) {
	var state CrostonState
	assert.False(t, state.Fitted())

	_, err := state.Forecast(1)
	assert.True(t, errors.Is(err, models.ErrNotFitted))
}

func TestCrostonForecastSteps(t *testing.T) {
	state, err := FitCroston([]float64{3}, MethodStandard, 0.3, 0.2)
	require.NoError(t, err)

	_, err = state.Forecast(0)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func roundAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(int64(x*1e9+0.5)) / 1e9
	}
	return out
}
