// Package scheduler runs the recurring background work: periodic
// catalog scrapes and the daily archive sync. Every run claims the
// same job slot an admin trigger would, so the two never overlap.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/carnavalix/carnavalplay/internal/jobs"
	"github.com/carnavalix/carnavalplay/internal/log"
)

const archiveSyncInterval = 24 * time.Hour

// Task is one schedulable unit of work.
type Task func(ctx context.Context) error

// Scheduler drives the recurring loops.
type Scheduler struct {
	coord *jobs.Coordinator

	scrapeInterval time.Duration
	scrape         Task

	archiveEnabled bool
	archiveSync    Task
}

// New builds a scheduler. A nil task disables its loop.
func New(coord *jobs.Coordinator, scrapeInterval time.Duration, scrape Task, archiveEnabled bool, archiveSync Task) *Scheduler {
	return &Scheduler{
		coord:          coord,
		scrapeInterval: scrapeInterval,
		scrape:         scrape,
		archiveEnabled: archiveEnabled,
		archiveSync:    archiveSync,
	}
}

// Start launches the loops. They stop when ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	if s.scrape != nil && s.scrapeInterval > 0 {
		go s.runLoop(ctx, jobs.FamilyScraper, s.scrapeInterval, s.scrape)
	}
	if s.archiveEnabled && s.archiveSync != nil {
		go s.runLoop(ctx, jobs.FamilyOdysee, archiveSyncInterval, s.archiveSync)
	}
}

// runLoop executes task every interval under the family's job slot.
// A slot held by a manual trigger just skips that round.
func (s *Scheduler) runLoop(ctx context.Context, family jobs.Family, interval time.Duration, task Task) {
	log.Info("scheduler loop started",
		zap.String("family", string(family)),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler loop stopped", zap.String("family", string(family)))
			return
		case <-ticker.C:
			s.runOnce(ctx, family, task)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, family jobs.Family, task Task) {
	run, err := s.coord.TryStart(ctx, family)
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		log.Debug("scheduled run skipped, job already running",
			zap.String("family", string(family)))
		return
	}
	if err != nil {
		log.Error("scheduled run could not start",
			zap.String("family", string(family)), zap.Error(err))
		return
	}
	defer run.Done()

	log.Info("scheduled run started",
		zap.String("family", string(family)), zap.String("run_id", run.ID))

	if err := task(run.Context()); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("scheduled run failed",
			zap.String("family", string(family)),
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
		return
	}
	log.Info("scheduled run finished",
		zap.String("family", string(family)), zap.String("run_id", run.ID))
}
