package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records pipeline outcomes.
type Metrics struct {
	Runs     *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	MAE      *prometheus.GaugeVec
}

// NewMetrics creates and registers the pipeline collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curtailcast_forecast_runs_total",
			Help: "Walk-forward forecast runs by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curtailcast_forecast_duration_seconds",
			Help:    "Duration of one walk-forward forecast run.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"strategy"}),
		MAE: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curtailcast_forecast_mae",
			Help: "Mean absolute error of the latest run per facility and strategy.",
		}, []string{"facility_id", "strategy"}),
	}
	for _, c := range []prometheus.Collector{m.Runs, m.Duration, m.MAE} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
