package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/redispatch/curtailcast/internal/config"
	"github.com/redispatch/curtailcast/internal/database"
	"github.com/redispatch/curtailcast/internal/export"
	server "github.com/redispatch/curtailcast/internal/grpc"
	"github.com/redispatch/curtailcast/internal/logging"
	"github.com/redispatch/curtailcast/internal/monitoring"
	"github.com/redispatch/curtailcast/internal/pipeline"
	"github.com/redispatch/curtailcast/internal/publish"
	"github.com/redispatch/curtailcast/internal/scheduler"
)

// Command curtailcast reconstructs curtailment series from redispatch events
// and scores walk-forward forecasts of them.
//
// It runs either as a gRPC service backed by Postgres or, with -events-csv,
// as a one-shot run over a CSV export that writes reports to -out.
//
// Usage:
//
//	curtailcast [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
//	-port int
//	      gRPC server port, overrides server.port
//	-events-csv string
//	      run offline over this event file instead of serving
//	-facility string
//	      facility to run offline (default: every facility in the file)
//	-out string
//	      output directory for offline reports, overrides export.dir
func main() {
	flags := parseFlags()

	appConfig, err := config.Load(flags.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if flags.Port > 0 {
		appConfig.Server.Port = flags.Port
	}
	if flags.OutDir != "" {
		appConfig.Export.Dir = flags.OutDir
	}

	logger := logging.New(appConfig.Logging, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if flags.EventsCSV != "" {
		err = runOffline(ctx, appConfig, flags, logger)
	} else {
		err = runService(ctx, appConfig, logger)
	}
	if err != nil {
		logger.WithError(err).Fatal("curtailcast failed")
	}
}

type Flags struct {
	ConfigPath string
	Port       int
	EventsCSV  string
	Facility   string
	OutDir     string
}

func parseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "config.yaml", "Path to config file")
	flag.IntVar(&f.Port, "port", 0, "The gRPC server port (overrides server.port)")
	flag.StringVar(&f.EventsCSV, "events-csv", "", "Run offline over this curtailment event CSV")
	flag.StringVar(&f.Facility, "facility", "", "Facility to run offline (default: all in the file)")
	flag.StringVar(&f.OutDir, "out", "", "Output directory for offline reports (overrides export.dir)")

	flag.Parse()

	return f
}

// runOffline reads events from CSV and writes one report set per facility.
func runOffline(ctx context.Context, cfg *config.Config, flags *Flags, logger *logrus.Logger) error {
	file, err := os.Open(flags.EventsCSV)
	if err != nil {
		return err
	}
	events, err := export.ReadEventsCSV(file)
	file.Close()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", flags.EventsCSV, err)
	}

	source := pipeline.NewMemorySource(events)
	facilities := []string{flags.Facility}
	if flags.Facility == "" {
		if facilities, err = source.ListFacilities(ctx); err != nil {
			return err
		}
	}

	p := pipeline.NewSeriesPipeline(source, logger, pipeline.WithAggregationWorkers(cfg.Forecast.Workers))
	for _, id := range facilities {
		req, err := pipeline.RequestFromConfig(cfg.Forecast, id)
		if err != nil {
			return err
		}
		series, results, err := p.Run(ctx, req)
		if err != nil {
			logger.WithError(err).WithField("facility_id", id).Error("Facility run failed")
			continue
		}
		paths, err := export.WriteAll(cfg.Export.Dir, series, results, time.Now())
		if err != nil {
			return fmt.Errorf("failed to write reports for %s: %w", id, err)
		}
		logger.WithFields(logrus.Fields{
			"facility_id": id,
			"files":       paths,
		}).Info("Reports written")
	}
	return nil
}

func runService(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	repo, err := database.NewPostgresRepo(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}
	defer repo.Close()
	repo.SetMaxOpenConns(cfg.Database.MaxConnections)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pipelineMetrics, err := pipeline.NewMetrics(registry)
	if err != nil {
		return err
	}
	opts := []pipeline.Option{
		pipeline.WithStore(repo),
		pipeline.WithMetrics(pipelineMetrics),
		pipeline.WithAggregationWorkers(cfg.Forecast.Workers),
	}
	if cfg.Kafka.Enabled() {
		publisher := publish.NewKafkaPublisher(cfg.Kafka, logger)
		defer publisher.Close()
		opts = append(opts, pipeline.WithPublisher(publisher))
	}
	p := pipeline.NewSeriesPipeline(repo, logger, opts...)

	health := server.NewHealthChecker()
	srv, err := server.SetupServerWithRegistry(p, server.ServerConfig{
		CacheSize:      cfg.Server.CacheSize,
		RateLimit:      cfg.Server.RateLimit,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		Defaults:       pipeline.ParamsFromConfig(cfg.Forecast),
		Logger:         logger,
		Health:         health,
	}, registry)
	if err != nil {
		return fmt.Errorf("failed to setup server: %w", err)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	monitor := monitoring.NewServer(
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		monitoring.NewRouter(registry, repo.Ping),
		logger,
	)

	errChan := make(chan error, 2)
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting gRPC server")
		if err := srv.Serve(lis); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()
	go func() {
		if err := monitor.ListenAndServe(); err != nil {
			errChan <- fmt.Errorf("monitoring error: %w", err)
		}
	}()

	var sched *scheduler.Scheduler
	if cfg.Forecast.Schedule != "" {
		sched = scheduler.NewScheduler(ctx, repo, p, cfg.Forecast, logger)
		if err := sched.Start(cfg.Forecast.Schedule); err != nil {
			return fmt.Errorf("scheduler error: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
		err = nil
	case err = <-errChan:
	}

	shutdown(srv, monitor, sched, health, logger)
	return err
}

// shutdown stops the components in reverse start order.
func shutdown(srv *grpc.Server, monitor *monitoring.Server, sched *scheduler.Scheduler, health *server.HealthChecker, logger *logrus.Logger) {
	health.Shutdown()

	if sched != nil {
		<-sched.Stop().Done()
	}

	logger.Info("Gracefully stopping server...")
	srv.GracefulStop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := monitor.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.WithError(err).Warn("Monitoring server shutdown failed")
	}
	logger.Info("Server stopped")
}
