package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/storesync/storesync/internal/batch"
	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/internal/queue"
	"github.com/storesync/storesync/internal/stats"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Service interface {
	Start()
	Stop()
	// AddJob adds a job that runs periodically at the given interval.
	AddJob(job cron.Job, interval time.Duration, identifier string) (int, error)
	// AddJobWithSpec adds a job using a cron spec string (e.g., "0 3 * * *").
	AddJobWithSpec(job cron.Job, spec string, identifier string) (int, error)
	RemoveJobByIdentifier(id string) error
	GetNextRun(id string) (time.Time, error)
}

type service struct {
	log      zerolog.Logger
	config   *domain.Config
	batchSvc batch.Service
	queueSvc queue.Service
	statsSvc stats.Service

	cron *cron.Cron
	jobs map[string]cron.EntryID
	m    sync.RWMutex
}

func NewService(log logger.Logger, config *domain.Config, batchSvc batch.Service, queueSvc queue.Service, statsSvc stats.Service) Service {
	return &service{
		log:      log.With().Str("module", "scheduler").Logger(),
		config:   config,
		batchSvc: batchSvc,
		queueSvc: queueSvc,
		statsSvc: statsSvc,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
		)),
		jobs: map[string]cron.EntryID{},
	}
}

func (s *service) Start() {
	s.log.Info().Msg("Starting scheduler service")

	s.cron.Start()

	go s.addAppJobs()
}

func (s *service) addAppJobs() {
	// small delay so the rest of the services finish wiring up
	time.Sleep(5 * time.Second)
	s.log.Info().Msg("Adding application-specific scheduled jobs")

	autoSync := &AutoSyncJob{
		Name:     "sync-auto",
		Log:      s.log.With().Str("job", "sync-auto").Logger(),
		BatchSvc: s.batchSvc,
	}

	syncSpec := s.config.Sync.AutoSyncSchedule
	if syncSpec == "" {
		syncSpec = "@every 1m"
	}
	if _, err := s.AddJobWithSpec(autoSync, syncSpec, "sync-auto"); err != nil {
		s.log.Error().Err(err).Msg("Failed to add 'sync-auto' job")
	}

	queueCleanup := &QueueCleanupJob{
		Name:      "queue-cleanup",
		Log:       s.log.With().Str("job", "queue-cleanup").Logger(),
		QueueSvc:  s.queueSvc,
		Retention: time.Duration(s.config.Sync.QueueRetentionDays) * 24 * time.Hour,
	}

	// daily, during the quiet hours
	if _, err := s.AddJobWithSpec(queueCleanup, "30 3 * * *", "queue-cleanup"); err != nil {
		s.log.Error().Err(err).Msg("Failed to add 'queue-cleanup' job")
	}

	logPrune := &LogPruneJob{
		Name:      "log-prune",
		Log:       s.log.With().Str("job", "log-prune").Logger(),
		StatsSvc:  s.statsSvc,
		Retention: time.Duration(s.config.Sync.LogRetentionDays) * 24 * time.Hour,
	}

	if _, err := s.AddJobWithSpec(logPrune, "0 4 * * *", "log-prune"); err != nil {
		s.log.Error().Err(err).Msg("Failed to add 'log-prune' job")
	}

	s.log.Info().Msg("Finished adding application-specific scheduled jobs")
}

func (s *service) Stop() {
	s.log.Info().Msg("Stopping scheduler service")
	s.cron.Stop()
}

func (s *service) AddJob(job cron.Job, interval time.Duration, identifier string) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if _, exists := s.jobs[identifier]; exists {
		s.log.Warn().Str("identifier", identifier).Msg("Job with this identifier already exists, skipping add.")
		return 0, fmt.Errorf("job with identifier '%s' already exists", identifier)
	}

	entryID, err := s.cron.AddJob(fmt.Sprintf("@every %s", interval.String()), cron.NewChain(
		cron.SkipIfStillRunning(cron.DefaultLogger)).Then(job))

	if err != nil {
		s.log.Error().Err(err).Str("identifier", identifier).Msg("Failed to add job with interval")
		return 0, fmt.Errorf("failed to add job '%s': %w", identifier, err)
	}

	s.log.Info().Str("identifier", identifier).Dur("interval", interval).Int("entryID", int(entryID)).Msg("Scheduled job added")
	s.jobs[identifier] = entryID
	return int(entryID), nil
}

// AddJobWithSpec adds a job using a cron specification string.
func (s *service) AddJobWithSpec(job cron.Job, spec string, identifier string) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if _, exists := s.jobs[identifier]; exists {
		s.log.Warn().Str("identifier", identifier).Msg("Job with this identifier already exists, skipping add.")
		return 0, fmt.Errorf("job with identifier '%s' already exists", identifier)
	}

	entryID, err := s.cron.AddJob(spec, cron.NewChain(
		cron.SkipIfStillRunning(cron.DefaultLogger)).Then(job))

	if err != nil {
		s.log.Error().Err(err).Str("identifier", identifier).Str("spec", spec).Msg("Failed to add job with spec")
		return 0, fmt.Errorf("failed to add job '%s' with spec '%s': %w", identifier, spec, err)
	}

	s.log.Info().Str("identifier", identifier).Str("spec", spec).Int("entryID", int(entryID)).Msg("Scheduled job added")
	s.jobs[identifier] = entryID
	return int(entryID), nil
}

func (s *service) RemoveJobByIdentifier(id string) error {
	s.m.Lock()
	defer s.m.Unlock()

	v, ok := s.jobs[id]
	if !ok {
		return nil
	}

	s.log.Debug().Msgf("scheduler.Remove: removing job: %v", id)

	s.cron.Remove(v)
	delete(s.jobs, id)

	return nil
}

func (s *service) GetNextRun(id string) (time.Time, error) {
	entry := s.getEntryById(id)

	if !entry.Valid() {
		return time.Time{}, nil
	}

	s.log.Debug().Msgf("scheduler.GetNextRun: %s next run: %s", id, entry.Next)

	return entry.Next, nil
}

func (s *service) getEntryById(id string) cron.Entry {
	s.m.Lock()
	defer s.m.Unlock()

	v, ok := s.jobs[id]
	if !ok {
		return cron.Entry{}
	}

	return s.cron.Entry(v)
}
