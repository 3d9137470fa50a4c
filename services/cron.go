package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"patient-qa-platform/internal/logger"
	"patient-qa-platform/internal/rag"
)

// CronService runs background maintenance: periodic index snapshots, a
// lightweight stats heartbeat, and (for the in-process flat backend) a
// refresh job that applies snapshots written by the queue worker.
type CronService struct {
	scheduler *gocron.Scheduler
	snapshots *SnapshotService
	system    *rag.System
	cronExpr  string
	refresh   bool
}

// NewCronService schedules maintenance. refresh enables the snapshot
// refresh job; it is pointless for the atlas backend, where every process
// queries the shared collection directly.
func NewCronService(snapshots *SnapshotService, system *rag.System, cronExpr string, refresh bool) *CronService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &CronService{
		scheduler: s,
		snapshots: snapshots,
		system:    system,
		cronExpr:  cronExpr,
		refresh:   refresh,
	}
}

func (c *CronService) Start() error {
	_, err := c.scheduler.Cron(c.cronExpr).Tag("index-snapshot").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		// Apply any newer snapshot first so this save never clobbers
		// chunks another process indexed since the last refresh.
		if c.refresh {
			if _, err := c.snapshots.RefreshIfNewer(ctx); err != nil {
				logger.Error("snapshot refresh failed", "error", err.Error())
				return
			}
		}
		if err := c.snapshots.Save(ctx); err != nil {
			logger.Error("scheduled snapshot failed", "error", err.Error())
		}
	})
	if err != nil {
		return err
	}

	if c.refresh {
		_, err = c.scheduler.Every(1 * time.Minute).Tag("index-refresh").Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			refreshed, err := c.snapshots.RefreshIfNewer(ctx)
			if err != nil {
				logger.Error("snapshot refresh failed", "error", err.Error())
				return
			}
			if refreshed {
				logger.Info("index refreshed", "chunks", c.system.Len())
			}
		})
		if err != nil {
			return err
		}
	}

	_, err = c.scheduler.Every(1 * time.Hour).Tag("index-stats").Do(func() {
		logger.Info("index heartbeat", "chunks", c.system.Len(), "model", c.system.ModelInfo())
	})
	if err != nil {
		return err
	}

	c.scheduler.StartAsync()
	logger.Info("maintenance scheduler started", "snapshot_cron", c.cronExpr)
	return nil
}

func (c *CronService) Stop() {
	c.scheduler.Stop()
}
