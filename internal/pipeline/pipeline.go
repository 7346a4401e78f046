// Package pipeline runs reconstruction, walk-forward forecasting and
// evaluation for one facility at a time.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/redispatch/curtailcast/internal/aggregator"
	"github.com/redispatch/curtailcast/internal/evaluation"
	"github.com/redispatch/curtailcast/internal/forecast"
	"github.com/redispatch/curtailcast/internal/models"
	"github.com/redispatch/curtailcast/internal/timeline"
)

// EventSource supplies curtailment events.
type EventSource interface {
	ListEvents(ctx context.Context, facilityID string, start, end time.Time) ([]models.CurtailmentEvent, error)
}

// SeriesStore persists reconstructed series and predictions.
type SeriesStore interface {
	SaveSeries(ctx context.Context, series models.ReconstructedSeries) error
	SavePredictions(ctx context.Context, predictions models.PredictionSeries) error
}

// Publisher announces finished forecast runs.
type Publisher interface {
	Publish(ctx context.Context, predictions models.PredictionSeries, metrics evaluation.Metrics) error
}

// SeriesPipeline wires the core packages to storage and messaging.
type SeriesPipeline struct {
	source     EventSource
	store      SeriesStore
	publisher  Publisher
	metrics    *Metrics
	logger     *logrus.Logger
	aggWorkers int
}

// Option configures a SeriesPipeline.
type Option func(*SeriesPipeline)

// WithStore persists every reconstructed series and prediction series.
func WithStore(store SeriesStore) Option {
	return func(p *SeriesPipeline) { p.store = store }
}

// WithPublisher publishes every successful forecast run.
func WithPublisher(pub Publisher) Option {
	return func(p *SeriesPipeline) { p.publisher = pub }
}

// WithMetrics records run outcomes.
func WithMetrics(m *Metrics) Option {
	return func(p *SeriesPipeline) { p.metrics = m }
}

// WithAggregationWorkers splits event accumulation across n goroutines.
func WithAggregationWorkers(n int) Option {
	return func(p *SeriesPipeline) { p.aggWorkers = n }
}

func NewSeriesPipeline(source EventSource, logger *logrus.Logger, opts ...Option) *SeriesPipeline {
	if logger == nil {
		logger = logrus.New()
	}
	p := &SeriesPipeline{source: source, logger: logger, aggWorkers: 1}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ReconstructRequest selects a facility and horizon.
type ReconstructRequest struct {
	FacilityID string
	Frequency  timeline.Frequency
	Start      time.Time
	End        time.Time
}

// RunRequest adds the held-out range and strategies to a reconstruction.
type RunRequest struct {
	ReconstructRequest
	EvaluationStart time.Time
	Strategies      []forecast.Strategy
	Params          forecast.Params
}

// RunResult is the outcome of one strategy. Err is set when the strategy
// failed; other strategies of the same run are unaffected.
type RunResult struct {
	Strategy    forecast.Strategy
	Predictions models.PredictionSeries
	Metrics     evaluation.Metrics
	Err         error
}

// Reconstruct loads the facility's events and aggregates them onto the grid.
func (p *SeriesPipeline) Reconstruct(ctx context.Context, req ReconstructRequest) (models.ReconstructedSeries, error) {
	if req.FacilityID == "" {
		return models.ReconstructedSeries{}, fmt.Errorf("%w: missing facility id", models.ErrConfiguration)
	}
	slots, err := timeline.Build(req.Start, req.End, req.Frequency)
	if err != nil {
		return models.ReconstructedSeries{}, err
	}
	gridEnd := slots[len(slots)-1].End()

	events, err := p.source.ListEvents(ctx, req.FacilityID, slots[0].Start, gridEnd)
	if err != nil {
		return models.ReconstructedSeries{}, fmt.Errorf("failed to load events: %w", err)
	}
	events = aggregator.FilterFacility(events, req.FacilityID)

	series, err := aggregator.AggregateParallel(ctx, events, slots, p.aggWorkers)
	if err != nil {
		return models.ReconstructedSeries{}, err
	}
	series.FacilityID = req.FacilityID

	p.logger.WithFields(logrus.Fields{
		"facility_id": req.FacilityID,
		"frequency":   req.Frequency,
		"events":      len(events),
		"slots":       len(slots),
		"energy":      lastCumulative(series),
	}).Info("Reconstructed curtailment series")

	if p.store != nil {
		if err := p.store.SaveSeries(ctx, series); err != nil {
			return models.ReconstructedSeries{}, fmt.Errorf("failed to save series: %w", err)
		}
	}
	return series, nil
}

// Run reconstructs the series and forecasts the held-out range with every
// requested strategy.
func (p *SeriesPipeline) Run(ctx context.Context, req RunRequest) (models.ReconstructedSeries, []RunResult, error) {
	if len(req.Strategies) == 0 {
		return models.ReconstructedSeries{}, nil, fmt.Errorf("%w: no strategy requested", models.ErrConfiguration)
	}
	if err := req.Params.Validate(); err != nil {
		return models.ReconstructedSeries{}, nil, err
	}

	series, err := p.Reconstruct(ctx, req.ReconstructRequest)
	if err != nil {
		return models.ReconstructedSeries{}, nil, err
	}
	target, err := forecast.TargetRangeFrom(series, req.EvaluationStart)
	if err != nil {
		return series, nil, err
	}

	results := make([]RunResult, 0, len(req.Strategies))
	for _, strategy := range req.Strategies {
		results = append(results, p.runStrategy(ctx, series, strategy, req.Params, target))
	}
	return series, results, nil
}

func (p *SeriesPipeline) runStrategy(
	ctx context.Context,
	series models.ReconstructedSeries,
	strategy forecast.Strategy,
	params forecast.Params,
	target []timeline.TimeSlot,
) RunResult {
	log := p.logger.WithFields(logrus.Fields{
		"facility_id": series.FacilityID,
		"strategy":    strategy,
		"targets":     len(target),
	})
	started := time.Now()
	result := RunResult{Strategy: strategy}

	result.Predictions, result.Err = forecast.Forecast(ctx, series, strategy, params, target)
	if result.Err == nil {
		result.Metrics, result.Err = evaluation.Evaluate(series, result.Predictions)
	}
	if result.Err == nil && p.store != nil {
		if err := p.store.SavePredictions(ctx, result.Predictions); err != nil {
			result.Err = fmt.Errorf("failed to save predictions: %w", err)
		}
	}
	if result.Err == nil && p.publisher != nil {
		if err := p.publisher.Publish(ctx, result.Predictions, result.Metrics); err != nil {
			result.Err = fmt.Errorf("failed to publish predictions: %w", err)
		}
	}

	p.observe(series.FacilityID, strategy, started, result)
	if result.Err != nil {
		log.WithError(result.Err).Error("Forecast run failed")
		return result
	}
	log.WithFields(logrus.Fields{
		"mae":      result.Metrics.MAE,
		"rmse":     result.Metrics.RMSE,
		"duration": time.Since(started),
	}).Info("Forecast run finished")
	return result
}

func (p *SeriesPipeline) observe(facilityID string, strategy forecast.Strategy, started time.Time, result RunResult) {
	if p.metrics == nil {
		return
	}
	outcome := "success"
	if result.Err != nil {
		outcome = "error"
	}
	p.metrics.Runs.WithLabelValues(string(strategy), outcome).Inc()
	p.metrics.Duration.WithLabelValues(string(strategy)).Observe(time.Since(started).Seconds())
	if result.Err == nil {
		p.metrics.MAE.WithLabelValues(facilityID, string(strategy)).Set(result.Metrics.MAE)
	}
}

func lastCumulative(series models.ReconstructedSeries) float64 {
	if len(series.Points) == 0 {
		return 0
	}
	return series.Points[len(series.Points)-1].CumulativeEnergy
}
