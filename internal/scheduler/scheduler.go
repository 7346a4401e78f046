// Package scheduler periodically refreshes reconstruction and forecasts for
// every known facility.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/redispatch/curtailcast/internal/config"
	"github.com/redispatch/curtailcast/internal/models"
	"github.com/redispatch/curtailcast/internal/pipeline"
)

// FacilityLister lists the facilities to refresh.
type FacilityLister interface {
	ListFacilities(ctx context.Context) ([]string, error)
}

// Runner executes one facility run.
type Runner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (models.ReconstructedSeries, []pipeline.RunResult, error)
}

type Scheduler struct {
	ctx     context.Context
	lister  FacilityLister
	runner  Runner
	cfg     config.ForecastConfig
	logger  *logrus.Logger
	cron    *cron.Cron
	timeout time.Duration
}

func NewScheduler(
	ctx context.Context,
	lister FacilityLister,
	runner Runner,
	cfg config.ForecastConfig,
	logger *logrus.Logger,
) *Scheduler {
	return &Scheduler{
		ctx:     ctx,
		lister:  lister,
		runner:  runner,
		cfg:     cfg,
		logger:  logger,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: 30 * time.Minute,
	}
}

// Start registers the refresh job under the cron expression expr and starts the cron loop.
func (s *Scheduler) Start(expr string) error {
	_, err := s.cron.AddFunc(expr, s.refresh)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("schedule", expr).Info("Scheduler started")
	return nil
}

// Stop stops the cron loop. The returned context is done once a running
// refresh has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled refresh failed")
	}
}

// RunOnce runs every facility once and returns how many runs failed. An
// error is returned only when the facility list cannot be loaded or the
// configuration is unusable; per-facility failures are logged.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	facilities, err := s.lister.ListFacilities(ctx)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, id := range facilities {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		req, err := pipeline.RequestFromConfig(s.cfg, id)
		if err != nil {
			return failed, err
		}

		log := s.logger.WithField("facility_id", id)
		_, results, err := s.runner.Run(ctx, req)
		if err != nil {
			failed++
			log.WithError(err).Error("Facility refresh failed")
			continue
		}
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"facilities": len(facilities),
		"failed":     failed,
	}).Info("Refresh finished")
	return failed, nil
}
