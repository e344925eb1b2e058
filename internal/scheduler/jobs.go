package scheduler

import (
	"context"
	"time"

	"github.com/storesync/storesync/internal/batch"
	"github.com/storesync/storesync/internal/queue"
	"github.com/storesync/storesync/internal/stats"

	"github.com/rs/zerolog"
)

// AutoSyncJob walks every enabled store and runs the batches that are due.
type AutoSyncJob struct {
	Name     string
	Log      zerolog.Logger
	BatchSvc batch.Service
}

func (j *AutoSyncJob) Run() {
	j.Log.Debug().Msg("auto sync sweep starting")

	if err := j.BatchSvc.RunAutoSync(context.Background()); err != nil {
		j.Log.Error().Err(err).Msg("auto sync sweep failed")
		return
	}

	j.Log.Debug().Msg("auto sync sweep finished")
}

// QueueCleanupJob removes completed queue items past the retention window.
type QueueCleanupJob struct {
	Name      string
	Log       zerolog.Logger
	QueueSvc  queue.Service
	Retention time.Duration
}

func (j *QueueCleanupJob) Run() {
	if j.Retention <= 0 {
		j.Log.Debug().Msg("queue retention disabled, skipping cleanup")
		return
	}

	removed, err := j.QueueSvc.CleanupCompleted(context.Background(), j.Retention)
	if err != nil {
		j.Log.Error().Err(err).Msg("queue cleanup failed")
		return
	}

	j.Log.Info().Int64("removed", removed).Msg("queue cleanup finished")
}

// LogPruneJob trims old sync log rows.
type LogPruneJob struct {
	Name      string
	Log       zerolog.Logger
	StatsSvc  stats.Service
	Retention time.Duration
}

func (j *LogPruneJob) Run() {
	if j.Retention <= 0 {
		j.Log.Debug().Msg("log retention disabled, skipping prune")
		return
	}

	removed, err := j.StatsSvc.PruneLogs(context.Background(), j.Retention)
	if err != nil {
		j.Log.Error().Err(err).Msg("log prune failed")
		return
	}

	j.Log.Info().Int64("removed", removed).Msg("log prune finished")
}
