package server

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/redispatch/curtailcast/internal/forecast"
	middleware "github.com/redispatch/curtailcast/internal/grpc/middlewares"
	"github.com/redispatch/curtailcast/internal/models"
	"github.com/redispatch/curtailcast/internal/pipeline"
)

// ServerConfig holds configuration options for the gRPC server
type ServerConfig struct {
	CacheSize      int     // Size of the LRU cache
	RateLimit      float64 // Requests per second
	RateLimitBurst int     // Maximum burst size for rate limiting
	Defaults       forecast.Params
	Logger         *logrus.Logger
	Health         *HealthChecker // created when nil
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		CacheSize:      1000,
		RateLimit:      5.0, // 5 requests per second
		RateLimitBurst: 10,  // Burst of 10 requests
		Defaults:       forecast.DefaultParams(),
	}
}

// Pipeline is the part of pipeline.SeriesPipeline the service needs.
type Pipeline interface {
	Reconstruct(ctx context.Context, req pipeline.ReconstructRequest) (models.ReconstructedSeries, error)
	Run(ctx context.Context, req pipeline.RunRequest) (models.ReconstructedSeries, []pipeline.RunResult, error)
}

// ForecastService encapsulates business logic
type ForecastService struct {
	pipeline  Pipeline
	validator *RequestValidator
	defaults  forecast.Params
}

// NewForecastService creates a new service instance
func NewForecastService(p Pipeline, defaults forecast.Params) *ForecastService {
	return &ForecastService{
		pipeline:  p,
		validator: NewRequestValidator(),
		defaults:  defaults,
	}
}

// Reconstruct implements the gRPC service method
func (s *ForecastService) Reconstruct(ctx context.Context, req *ReconstructRequest) (*ReconstructResponse, error) {
	freq, err := s.validator.Validate(req.FacilityID, req.Start, req.End, req.Frequency)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	series, err := s.pipeline.Reconstruct(ctx, pipeline.ReconstructRequest{
		FacilityID: req.FacilityID,
		Frequency:  freq,
		Start:      req.Start.UTC(),
		End:        req.End.UTC(),
	})
	if err != nil {
		return nil, toStatus("reconstruction failed", err)
	}
	return &ReconstructResponse{Series: series}, nil
}

// Forecast implements the gRPC service method
func (s *ForecastService) Forecast(ctx context.Context, req *ForecastRequest) (*ForecastResponse, error) {
	freq, err := s.validator.Validate(req.FacilityID, req.Start, req.End, req.Frequency)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.validator.ValidateEvaluationStart(req.Start, req.End, req.EvaluationStart); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	strategies, err := s.validator.ValidateStrategies(req.Strategies)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	params := req.Params.Apply(s.defaults)
	if err := params.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	_, results, err := s.pipeline.Run(ctx, pipeline.RunRequest{
		ReconstructRequest: pipeline.ReconstructRequest{
			FacilityID: req.FacilityID,
			Frequency:  freq,
			Start:      req.Start.UTC(),
			End:        req.End.UTC(),
		},
		EvaluationStart: req.EvaluationStart.UTC(),
		Strategies:      strategies,
		Params:          params,
	})
	if err != nil {
		return nil, toStatus("forecast failed", err)
	}

	resp := &ForecastResponse{FacilityID: req.FacilityID, Results: make([]StrategyResult, 0, len(results))}
	for _, r := range results {
		out := StrategyResult{Strategy: string(r.Strategy)}
		if r.Err != nil {
			out.Error = r.Err.Error()
		} else {
			out.Predictions = r.Predictions.Points
			out.MAE = r.Metrics.MAE
			out.RMSE = r.Metrics.RMSE
			out.Count = r.Metrics.Count
		}
		resp.Results = append(resp.Results, out)
	}
	return resp, nil
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(msg string, err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, models.ErrConfiguration), errors.Is(err, models.ErrDataIntegrity):
		code = codes.InvalidArgument
	case errors.Is(err, models.ErrInsufficientData), errors.Is(err, models.ErrNotFitted):
		code = codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Errorf(code, "%s: %v", msg, err)
}

// SetupServer initializes the gRPC server with all middleware and registers
// its metrics on the default Prometheus registry.
func SetupServer(p Pipeline, config ServerConfig) (*grpc.Server, error) {
	return SetupServerWithRegistry(p, config, prometheus.DefaultRegisterer)
}

// SetupServerWithRegistry is SetupServer with an explicit metrics registry.
func SetupServerWithRegistry(p Pipeline, config ServerConfig, reg prometheus.Registerer) (*grpc.Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
	}

	cache, err := middleware.NewCache(config.CacheSize)
	if err != nil {
		return nil, err
	}

	metrics, err := middleware.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	// Create server with chained interceptors
	server := grpc.NewServer(
		grpc.UnaryInterceptor(
			chainUnaryInterceptors(
				middleware.ContextMiddleware, // Add request ID first
				middleware.NewRateLimitingInterceptor(config.RateLimit, config.RateLimitBurst), // Rate limit early
				middleware.NewLoggingInterceptor(logger),                                       // Log all requests (with request ID)
				metrics.Interceptor(),                                                          // Collect metrics
				cache.Interceptor(ReconstructMethod, ForecastMethod),                           // Cache last to avoid caching errors
			),
		),
	)

	defaults := config.Defaults
	if defaults == (forecast.Params{}) {
		defaults = forecast.DefaultParams()
	}
	RegisterForecastServer(server, NewForecastService(p, defaults))

	health := config.Health
	if health == nil {
		health = NewHealthChecker()
	}
	health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(server, health)

	return server, nil
}

// chainUnaryInterceptors creates a single interceptor from multiple interceptors
func chainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor := interceptors[i]
			chainedInterceptor := chain
			chain = func(currentCtx context.Context, currentReq interface{}) (interface{}, error) {
				return interceptor(currentCtx, currentReq, info, chainedInterceptor)
			}
		}
		return chain(ctx, req)
	}
}
