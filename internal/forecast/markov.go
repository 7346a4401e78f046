package forecast

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/redispatch/curtailcast/internal/models"
)

// TransitionMatrix holds P(next | current) for the binary demand states
// 0 (no demand) and 1 (demand).
type TransitionMatrix [2][2]float64

// EstimateTransitions counts transitions between consecutive binarized
// observations and normalizes each row.
func EstimateTransitions(history []float64) (TransitionMatrix, error) {
	var m TransitionMatrix
	if len(history) < 2 {
		return m, fmt.Errorf("%w: transition estimation needs at least 2 observations, have %d",
			models.ErrInsufficientData, len(history))
	}

	var counts [2][2]float64
	prev := demandState(history[0])
	for _, v := range history[1:] {
		cur := demandState(v)
		counts[prev][cur]++
		prev = cur
	}

	for from := 0; from < 2; from++ {
		total := counts[from][0] + counts[from][1]
		if total == 0 {
			return m, fmt.Errorf("%w: no observed transition out of state %d", models.ErrInsufficientData, from)
		}
		m[from][0] = counts[from][0] / total
		m[from][1] = counts[from][1] / total
	}
	return m, nil
}

func demandState(v float64) int {
	if v > 0 {
		return 1
	}
	return 0
}

// MarkovForecast simulates params.Samples trajectories of params.LeadTime
// steps starting from the last observed demand state and returns the
// params.Quantile of the magnitudes at the final step. rng must not be
// shared with concurrent callers.
func MarkovForecast(history []float64, params Params, rng *rand.Rand) (float64, error) {
	if rng == nil {
		return 0, fmt.Errorf("%w: markov forecast needs a random source", models.ErrConfiguration)
	}
	if params.LeadTime < 1 || params.Samples < 1 {
		return 0, fmt.Errorf("%w: lead_time and n_samples must be positive", models.ErrConfiguration)
	}

	m, err := EstimateTransitions(history)
	if err != nil {
		return 0, err
	}

	positives := make([]float64, 0, len(history))
	for _, v := range history {
		if v > 0 {
			positives = append(positives, v)
		}
	}
	if len(positives) == 0 {
		return 0, fmt.Errorf("%w: no positive observation to sample magnitudes from", models.ErrInsufficientData)
	}

	initial := demandState(history[len(history)-1])
	finals := make([]float64, params.Samples)
	for s := range finals {
		state := initial
		magnitude := 0.0
		for step := 0; step < params.LeadTime; step++ {
			state = int(distuv.Bernoulli{P: m[state][1], Src: rng}.Rand())
			if state == 1 {
				magnitude = positives[rng.IntN(len(positives))]
			} else {
				magnitude = 0
			}
		}
		finals[s] = magnitude
	}

	sort.Float64s(finals)
	return quantileSorted(finals, params.Quantile, params.QuantileMethod)
}

// quantileSorted expects sorted input. The linear method interpolates between
// order statistics at (n-1)*q; the empirical method takes the inverse of the
// empirical CDF.
func quantileSorted(x []float64, q float64, method string) (float64, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("%w: quantile of empty sample", models.ErrInsufficientData)
	}
	if q < 0 || q > 1 {
		return 0, fmt.Errorf("%w: quantile must be in [0, 1], got %v", models.ErrConfiguration, q)
	}

	switch method {
	case QuantileEmpirical:
		return stat.Quantile(q, stat.Empirical, x, nil), nil
	case QuantileLinear, "":
		h := float64(len(x)-1) * q
		lo := math.Floor(h)
		i := int(lo)
		if i >= len(x)-1 {
			return x[len(x)-1], nil
		}
		return x[i] + (h-lo)*(x[i+1]-x[i]), nil
	}
	return 0, fmt.Errorf("%w: unknown quantile method %q", models.ErrConfiguration, method)
}
