// Package curtailcast reconstructs curtailed power and energy series from
// redispatch events and forecasts them with intermittent-demand models.
//
// # Architecture
//
// The service is structured into several key packages:
//   - models: Events, series points, predictions and the error taxonomy
//   - timeline: Uniform UTC slot grids (minute, hour, day)
//   - aggregator: Overlap-weighted spreading of events onto a grid
//   - forecast: Causal walk-forward Naive, Croston, TSB and Markov forecasts
//   - evaluation: MAE and RMSE of predictions against the series
//   - pipeline: Reconstruction, forecasting and scoring per facility
//   - database: Postgres storage for events, series and predictions
//   - grpc: gRPC service, interceptors and health checking
//   - publish: Kafka announcements of finished runs
//   - export: CSV import and CSV, XLSX and PDF reports
//   - scheduler: Periodic refresh of every facility
//   - monitoring: Prometheus metrics and liveness over HTTP
//
// Key Features
//
//   - Reconstruction:
//     Every event contributes curtailment power times the overlap of its
//     interval with each slot, so energy is conserved across slot
//     boundaries. Partitions of the event set can be aggregated
//     concurrently and merged.
//
//   - Forecasting:
//     Each target slot is predicted from strictly earlier observations
//     only. Markov forecasts draw from one seeded stream per target slot,
//     so results do not depend on the number of workers.
//
// Example Usage
//
//	client := grpc.NewForecastClient(conn)
//	resp, err := client.Forecast(ctx, &grpc.ForecastRequest{
//	    FacilityID:      "E1234",
//	    Frequency:       "hour",
//	    Start:           start,
//	    End:             end,
//	    EvaluationStart: evalStart,
//	    Strategies:      []string{"croston", "wss"},
//	})
//
// For more information about specific packages, see their respective
// documentation.
package curtailcast
