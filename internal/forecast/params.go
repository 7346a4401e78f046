package forecast

import (
	"fmt"
	"strings"

	"github.com/redispatch/curtailcast/internal/models"
)

// Strategy selects the forecasting model used at each walk-forward step.
type Strategy string

const (
	Naive           Strategy = "naive"
	CrostonStandard Strategy = "croston"
	CrostonTSB      Strategy = "tsb"
	MarkovQuantile  Strategy = "wss"
)

var strategyAliases = map[string]Strategy{
	"naive":           Naive,
	"croston":         CrostonStandard,
	"crostonstandard": CrostonStandard,
	"standard":        CrostonStandard,
	"tsb":             CrostonTSB,
	"crostontsb":      CrostonTSB,
	"wss":             MarkovQuantile,
	"markov":          MarkovQuantile,
	"markovquantile":  MarkovQuantile,
}

// ParseStrategy resolves a strategy name case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	if st, ok := strategyAliases[key]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown strategy %q", models.ErrConfiguration, s)
}

// Strategies lists every supported strategy.
func Strategies() []Strategy {
	return []Strategy{Naive, CrostonStandard, CrostonTSB, MarkovQuantile}
}

// Quantile estimation methods for the Monte-Carlo forecaster.
const (
	QuantileLinear    = "linear"
	QuantileEmpirical = "empirical"
)

// Params configures every strategy. Fields that a strategy does not use are ignored.
type Params struct {
	Alpha          float64 `json:"alpha"`
	Beta           float64 `json:"beta"`
	Lag            int     `json:"lag"`
	LeadTime       int     `json:"lead_time"`
	Quantile       float64 `json:"quantile"`
	QuantileMethod string  `json:"quantile_method"`
	Samples        int     `json:"n_samples"`
	Seed           *uint64 `json:"seed,omitempty"`
	Workers        int     `json:"workers"`
}

// DefaultParams returns the smoothing and sampling constants used by the
// reference curtailment study.
func DefaultParams() Params {
	return Params{
		Alpha:          0.3,
		Beta:           0.2,
		Lag:            1,
		LeadTime:       1,
		Quantile:       0.75,
		QuantileMethod: QuantileLinear,
		Samples:        1000,
		Workers:        1,
	}
}

// WithSeed returns a copy of p with a fixed random seed.
func (p Params) WithSeed(seed uint64) Params {
	p.Seed = &seed
	return p
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.Alpha <= 0 || p.Alpha > 1 {
		return fmt.Errorf("%w: alpha must be in (0, 1], got %v", models.ErrConfiguration, p.Alpha)
	}
	if p.Beta <= 0 || p.Beta > 1 {
		return fmt.Errorf("%w: beta must be in (0, 1], got %v", models.ErrConfiguration, p.Beta)
	}
	if p.Lag < 1 {
		return fmt.Errorf("%w: lag must be at least 1, got %d", models.ErrConfiguration, p.Lag)
	}
	if p.LeadTime < 1 {
		return fmt.Errorf("%w: lead_time must be at least 1, got %d", models.ErrConfiguration, p.LeadTime)
	}
	if p.Quantile < 0 || p.Quantile > 1 {
		return fmt.Errorf("%w: quantile must be in [0, 1], got %v", models.ErrConfiguration, p.Quantile)
	}
	if p.QuantileMethod != QuantileLinear && p.QuantileMethod != QuantileEmpirical {
		return fmt.Errorf("%w: unknown quantile method %q", models.ErrConfiguration, p.QuantileMethod)
	}
	if p.Samples < 1 {
		return fmt.Errorf("%w: n_samples must be at least 1, got %d", models.ErrConfiguration, p.Samples)
	}
	if p.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", models.ErrConfiguration, p.Workers)
	}
	return nil
}
