package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storesync/storesync/internal/batch"
	"github.com/storesync/storesync/internal/config"
	"github.com/storesync/storesync/internal/conflict"
	"github.com/storesync/storesync/internal/database"
	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/events"
	"github.com/storesync/storesync/internal/http"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/internal/queue"
	"github.com/storesync/storesync/internal/retry"
	"github.com/storesync/storesync/internal/rules"
	"github.com/storesync/storesync/internal/scheduler"
	"github.com/storesync/storesync/internal/server"
	"github.com/storesync/storesync/internal/stats"
	"github.com/storesync/storesync/internal/transport"

	"github.com/asaskevich/EventBus"
	"github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	var configPath string
	pflag.StringVar(&configPath, "config", "", "path to configuration file")
	pflag.Parse()

	// read config
	cfg := config.New(configPath, version)

	// init new logger
	log := logger.New(cfg.Config)

	// init dynamic config
	cfg.DynamicReload(log)

	// setup internal eventbus
	bus := EventBus.New()

	// open database connection
	db, err := database.NewDB(cfg.Config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create new db")
	}

	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Msg("could not open db connection")
	}

	log.Info().Msgf("Starting storesync")
	log.Info().Msgf("Version: %s", version)
	log.Info().Msgf("Commit: %s", commit)
	log.Info().Msgf("Build date: %s", date)
	log.Info().Msgf("Log-level: %s", cfg.Config.Logging.Level)
	log.Info().Msgf("Using database: %s", db.Driver)

	// setup repos
	var (
		queueRepo      = database.NewSyncQueueRepo(log, db)
		batchRepo      = database.NewSyncBatchRepo(log, db)
		conflictRepo   = database.NewSyncConflictRepo(log, db)
		ruleRepo       = database.NewSyncRuleRepo(log, db)
		syncLogRepo    = database.NewSyncLogRepo(log, db)
		checkpointRepo = database.NewSyncCheckpointRepo(log, db)
		recordStore    = database.NewRecordStore(log, db)
	)

	clock := &domain.RealClock{}
	policy := retry.FromConfig(cfg.Config.Sync)

	hqTransport := transport.NewClient(log, transport.ClientOpts{
		Endpoint: cfg.Config.HQ.Endpoint,
		APIToken: cfg.Config.HQ.APIToken,
		Timeout:  time.Duration(cfg.Config.HQ.TimeoutSeconds) * time.Second,
	})

	// setup services
	var (
		queueService      = queue.NewService(log, queueRepo, policy, clock)
		rulesService      = rules.NewService(log, ruleRepo)
		conflictService   = conflict.NewService(log, conflictRepo, checkpointRepo, recordStore, queueService, bus, clock)
		batchService      = batch.NewService(log, batchRepo, syncLogRepo, checkpointRepo, recordStore, queueService, rulesService, conflictService, hqTransport, bus, clock)
		statsService      = stats.NewService(log, syncLogRepo, queueService, conflictService, batchService, rulesService, clock)
		schedulingService = scheduler.NewService(log, cfg.Config, batchService, queueService, statsService)
	)

	// register event subscribers
	events.NewSubscribers(log, bus)

	errorChannel := make(chan error)

	go func() {
		httpServer := http.NewServer(
			log,
			cfg,
			db,
			version,
			commit,
			date,
			queueService,
			batchService,
			conflictService,
			rulesService,
			statsService,
		)
		errorChannel <- httpServer.Open()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	srv := server.NewServer(log, cfg.Config, schedulingService)
	if err := srv.Start(); err != nil {
		log.Fatal().Stack().Err(err).Msg("could not start server")
		return
	}

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			log.Log().Msg("shutting down server sighup")
			srv.Shutdown()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			os.Exit(1)
		case syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM:
			log.Info().Msg("Shutting down server...")
			srv.Shutdown()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			os.Exit(0)
		}
	}
}
