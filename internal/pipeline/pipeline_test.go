package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/redispatch/curtailcast/internal/config"
	"github.com/redispatch/curtailcast/internal/database/mocks"
	"github.com/redispatch/curtailcast/internal/evaluation"
	"github.com/redispatch/curtailcast/internal/forecast"
	"github.com/redispatch/curtailcast/internal/models"
	"github.com/redispatch/curtailcast/internal/timeline"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, predictions models.PredictionSeries, metrics evaluation.Metrics) error {
	return m.Called(ctx, predictions, metrics).Error(0)
}

var day = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

func at(h int) time.Time { return day.Add(time.Duration(h) * time.Hour) }

func sampleEvents() []models.CurtailmentEvent {
	return []models.CurtailmentEvent{
		{ID: "a", FacilityID: "F1", Start: at(0), End: at(2), NominalPower: 100, LevelPct: 30},
		{ID: "b", FacilityID: "F1", Start: at(3), End: at(4), NominalPower: 100, LevelPct: 30},
		{ID: "c", FacilityID: "F2", Start: at(0), End: at(5), NominalPower: 1000, LevelPct: 0},
	}
}

func request() ReconstructRequest {
	return ReconstructRequest{FacilityID: "F1", Frequency: timeline.Hour, Start: at(0), End: at(5)}
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestReconstruct(t *testing.T) {
	repo := new(mocks.MockCurtailmentRepository)
	repo.On("ListEvents", mock.Anything, "F1", at(0), at(6)).Return(sampleEvents(), nil)
	repo.On("SaveSeries", mock.Anything, mock.AnythingOfType("models.ReconstructedSeries")).Return(nil)

	p := NewSeriesPipeline(repo, quietLogger(), WithStore(repo), WithAggregationWorkers(2))
	series, err := p.Reconstruct(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, "F1", series.FacilityID)
	assert.Equal(t, "hour", series.Frequency)
	assert.Equal(t, []float64{70, 70, 0, 70, 0, 0}, series.Powers())
	assert.InDelta(t, 210, series.Points[5].CumulativeEnergy, 1e-9)
	repo.AssertExpectations(t)
}

func TestReconstructSourceError(t *testing.T) {
	repo := new(mocks.MockCurtailmentRepository)
	repo.On("ListEvents", mock.Anything, "F1", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	p := NewSeriesPipeline(repo, quietLogger(), WithStore(repo))
	_, err := p.Reconstruct(context.Background(), request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	repo.AssertNotCalled(t, "SaveSeries", mock.Anything, mock.Anything)
}

func TestReconstructValidation(t *testing.T) {
	repo := new(mocks.MockCurtailmentRepository)
	p := NewSeriesPipeline(repo, quietLogger())

	req := request()
	req.FacilityID = ""
	_, err := p.Reconstruct(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrConfiguration)

	req = request()
	req.End = at(-1)
	_, err = p.Reconstruct(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestRunScopesFailuresToStrategy(t *testing.T) {
	repo := new(mocks.MockCurtailmentRepository)
	repo.On("ListEvents", mock.Anything, "F1", mock.Anything, mock.Anything).Return(sampleEvents(), nil)
	repo.On("SaveSeries", mock.Anything, mock.Anything).Return(nil)
	repo.On("SavePredictions", mock.Anything, mock.MatchedBy(func(p models.PredictionSeries) bool {
		return p.Strategy == "naive"
	})).Return(nil).Once()

	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	p := NewSeriesPipeline(repo, quietLogger(), WithStore(repo), WithPublisher(pub), WithMetrics(metrics))
	series, results, err := p.Run(context.Background(), RunRequest{
		ReconstructRequest: request(),
		EvaluationStart:    at(3),
		Strategies:         []forecast.Strategy{forecast.Naive, forecast.MarkovQuantile},
		Params:             forecast.DefaultParams().WithSeed(7),
	})
	require.NoError(t, err)
	assert.Equal(t, 6, series.Len())
	require.Len(t, results, 2)

	naive := results[0]
	require.NoError(t, naive.Err)
	assert.Equal(t, []float64{0, 70, 0}, naive.Predictions.Values())
	assert.InDelta(t, 140.0/3, naive.Metrics.MAE, 1e-9)
	assert.Equal(t, 3, naive.Metrics.Count)

	// History [70 70 0] never leaves the zero state.
	wss := results[1]
	assert.ErrorIs(t, wss.Err, models.ErrInsufficientData)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("naive", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("wss", "error")))
	assert.InDelta(t, 140.0/3, testutil.ToFloat64(metrics.MAE.WithLabelValues("F1", "naive")), 1e-9)

	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestRunPublishFailure(t *testing.T) {
	repo := new(mocks.MockCurtailmentRepository)
	repo.On("ListEvents", mock.Anything, "F1", mock.Anything, mock.Anything).Return(sampleEvents(), nil)

	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	p := NewSeriesPipeline(repo, quietLogger(), WithPublisher(pub))
	_, results, err := p.Run(context.Background(), RunRequest{
		ReconstructRequest: request(),
		EvaluationStart:    at(3),
		Strategies:         []forecast.Strategy{forecast.Naive},
		Params:             forecast.DefaultParams(),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorContains(t, results[0].Err, "broker down")
}

func TestRunRejectsBadRequest(t *testing.T) {
	repo := new(mocks.MockCurtailmentRepository)
	p := NewSeriesPipeline(repo, quietLogger())

	_, _, err := p.Run(context.Background(), RunRequest{ReconstructRequest: request(), Params: forecast.DefaultParams()})
	assert.ErrorIs(t, err, models.ErrConfiguration)

	params := forecast.DefaultParams()
	params.Alpha = 0
	_, _, err = p.Run(context.Background(), RunRequest{
		ReconstructRequest: request(),
		Strategies:         forecast.Strategies(),
		Params:             params,
	})
	assert.ErrorIs(t, err, models.ErrConfiguration)
	repo.AssertNotCalled(t, "ListEvents", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunEvaluationStartAfterHorizon(t *testing.T) {
	repo := new(mocks.MockCurtailmentRepository)
	repo.On("ListEvents", mock.Anything, "F1", mock.Anything, mock.Anything).Return(sampleEvents(), nil)

	p := NewSeriesPipeline(repo, quietLogger())
	_, _, err := p.Run(context.Background(), RunRequest{
		ReconstructRequest: request(),
		EvaluationStart:    at(48),
		Strategies:         []forecast.Strategy{forecast.Naive},
		Params:             forecast.DefaultParams(),
	})
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestRequestFromConfig(t *testing.T) {
	seed := uint64(3)
	cfg := config.ForecastConfig{
		Frequency:       "H",
		Year:            2021,
		EvaluationStart: "2021-12-01",
		Strategies:      []string{"naive", "CrostonTSB"},
		Alpha:           0.3,
		Beta:            0.2,
		Lag:             24,
		LeadTime:        1,
		Quantile:        0.75,
		QuantileMethod:  "linear",
		Samples:         100,
		Seed:            &seed,
		Workers:         4,
	}

	req, err := RequestFromConfig(cfg, "F1")
	require.NoError(t, err)
	assert.Equal(t, timeline.Hour, req.Frequency)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), req.Start)
	assert.Equal(t, time.Date(2021, 12, 31, 23, 59, 59, 0, time.UTC), req.End)
	assert.Equal(t, time.Date(2021, 12, 1, 0, 0, 0, 0, time.UTC), req.EvaluationStart)
	assert.Equal(t, []forecast.Strategy{forecast.Naive, forecast.CrostonTSB}, req.Strategies)
	assert.Equal(t, 24, req.Params.Lag)
	require.NotNil(t, req.Params.Seed)
	assert.Equal(t, uint64(3), *req.Params.Seed)

	cfg.Strategies = []string{"arima"}
	_, err = RequestFromConfig(cfg, "F1")
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
