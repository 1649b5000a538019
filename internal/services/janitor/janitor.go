// Package janitor periodically removes expired connections from stores that
// cannot expire them natively.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/mcoot/snakesgame/internal/dependencies/clock"
	"github.com/mcoot/snakesgame/internal/storage"
)

// DefaultInterval is how often the reaper runs unless configured
const DefaultInterval = time.Minute

// Janitor schedules storage.Reaper sweeps
type Janitor struct {
	reaper    storage.Reaper
	clock     clock.Clock
	interval  time.Duration
	logger    *slog.Logger
	scheduler gocron.Scheduler
}

// New creates a Janitor. A non-positive interval uses DefaultInterval.
func New(reaper storage.Reaper, clock clock.Clock, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{
		reaper:   reaper,
		clock:    clock,
		interval: interval,
		logger:   logger.With(slog.String("component", "janitor")),
	}
}

// RunOnce performs a single sweep
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	reaped, err := j.reaper.ReapExpired(ctx, j.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("reap expired connections: %w", err)
	}
	if reaped > 0 {
		j.logger.Info("reaped expired connections", slog.Int("count", reaped))
	}
	return reaped, nil
}

// Start begins sweeping in the background, first sweep immediately
func (j *Janitor) Start() error {
	if j.scheduler != nil {
		return nil
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(j.sweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("schedule sweep: %w", err)
	}

	scheduler.Start()
	j.scheduler = scheduler
	j.logger.Info("janitor started", slog.Duration("interval", j.interval))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (j *Janitor) Stop() error {
	if j.scheduler == nil {
		return nil
	}
	err := j.scheduler.Shutdown()
	j.scheduler = nil
	return err
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("sweep failed", slog.String("error", err.Error()))
	}
}
