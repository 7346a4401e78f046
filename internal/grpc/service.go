package server

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/redispatch/curtailcast/internal/forecast"
	"github.com/redispatch/curtailcast/internal/models"
)

const (
	ServiceName       = "curtailcast.v1.ForecastService"
	ReconstructMethod = "/" + ServiceName + "/Reconstruct"
	ForecastMethod    = "/" + ServiceName + "/Forecast"
)

type ReconstructRequest struct {
	FacilityID string    `json:"facility_id"`
	Frequency  string    `json:"frequency"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

type ReconstructResponse struct {
	Series models.ReconstructedSeries `json:"series"`
}

type ForecastRequest struct {
	FacilityID      string          `json:"facility_id"`
	Frequency       string          `json:"frequency"`
	Start           time.Time       `json:"start"`
	End             time.Time       `json:"end"`
	EvaluationStart time.Time       `json:"evaluation_start"`
	Strategies      []string        `json:"strategies"`
	Params          *ParamsOverride `json:"params,omitempty"`
}

// ParamsOverride replaces the server defaults field by field. Unset fields
// keep their default.
type ParamsOverride struct {
	Alpha          *float64 `json:"alpha,omitempty"`
	Beta           *float64 `json:"beta,omitempty"`
	Lag            *int     `json:"lag,omitempty"`
	LeadTime       *int     `json:"lead_time,omitempty"`
	Quantile       *float64 `json:"quantile,omitempty"`
	QuantileMethod *string  `json:"quantile_method,omitempty"`
	Samples        *int     `json:"n_samples,omitempty"`
	Seed           *uint64  `json:"seed,omitempty"`
	Workers        *int     `json:"workers,omitempty"`
}

// Apply returns base with every set field replaced.
func (o *ParamsOverride) Apply(base forecast.Params) forecast.Params {
	if o == nil {
		return base
	}
	if o.Alpha != nil {
		base.Alpha = *o.Alpha
	}
	if o.Beta != nil {
		base.Beta = *o.Beta
	}
	if o.Lag != nil {
		base.Lag = *o.Lag
	}
	if o.LeadTime != nil {
		base.LeadTime = *o.LeadTime
	}
	if o.Quantile != nil {
		base.Quantile = *o.Quantile
	}
	if o.QuantileMethod != nil {
		base.QuantileMethod = *o.QuantileMethod
	}
	if o.Samples != nil {
		base.Samples = *o.Samples
	}
	if o.Seed != nil {
		seed := *o.Seed
		base.Seed = &seed
	}
	if o.Workers != nil {
		base.Workers = *o.Workers
	}
	return base
}

// StrategyResult carries either predictions and scores or an error message.
type StrategyResult struct {
	Strategy    string              `json:"strategy"`
	Predictions []models.Prediction `json:"predictions,omitempty"`
	MAE         float64             `json:"mae"`
	RMSE        float64             `json:"rmse"`
	Count       int                 `json:"count"`
	Error       string              `json:"error,omitempty"`
}

type ForecastResponse struct {
	FacilityID string           `json:"facility_id"`
	Results    []StrategyResult `json:"results"`
}

// ForecastServer is the server API for the forecast service.
type ForecastServer interface {
	Reconstruct(ctx context.Context, req *ReconstructRequest) (*ReconstructResponse, error)
	Forecast(ctx context.Context, req *ForecastRequest) (*ForecastResponse, error)
}

// ForecastServiceDesc describes the forecast service for grpc.Server.
var ForecastServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ForecastServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reconstruct", Handler: reconstructHandler},
		{MethodName: "Forecast", Handler: forecastHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterForecastServer(s grpc.ServiceRegistrar, srv ForecastServer) {
	s.RegisterService(&ForecastServiceDesc, srv)
}

func reconstructHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReconstructRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ForecastServer).Reconstruct(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReconstructMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ForecastServer).Reconstruct(ctx, req.(*ReconstructRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func forecastHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ForecastRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ForecastServer).Forecast(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ForecastMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ForecastServer).Forecast(ctx, req.(*ForecastRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ForecastClient calls the forecast service with the JSON codec.
type ForecastClient struct {
	cc grpc.ClientConnInterface
}

func NewForecastClient(cc grpc.ClientConnInterface) *ForecastClient {
	return &ForecastClient{cc: cc}
}

func (c *ForecastClient) Reconstruct(ctx context.Context, in *ReconstructRequest, opts ...grpc.CallOption) (*ReconstructResponse, error) {
	out := new(ReconstructResponse)
	if err := c.cc.Invoke(ctx, ReconstructMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ForecastClient) Forecast(ctx context.Context, in *ForecastRequest, opts ...grpc.CallOption) (*ForecastResponse, error) {
	out := new(ForecastResponse)
	if err := c.cc.Invoke(ctx, ForecastMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
}
