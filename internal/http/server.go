package http

import (
	"fmt"
	"net"
	"net/http"

	"github.com/storesync/storesync/internal/batch"
	"github.com/storesync/storesync/internal/config"
	"github.com/storesync/storesync/internal/conflict"
	"github.com/storesync/storesync/internal/database"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/internal/queue"
	"github.com/storesync/storesync/internal/rules"
	"github.com/storesync/storesync/internal/stats"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

type Server struct {
	log zerolog.Logger
	db  *database.DB

	config *config.AppConfig

	version string
	commit  string
	date    string

	queueService    queue.Service
	batchService    batch.Service
	conflictService conflict.Service
	rulesService    rules.Service
	statsService    stats.Service
}

func NewServer(
	log logger.Logger,
	config *config.AppConfig,
	db *database.DB,
	version string,
	commit string,
	date string,
	queueSvc queue.Service,
	batchSvc batch.Service,
	conflictSvc conflict.Service,
	rulesSvc rules.Service,
	statsSvc stats.Service,
) Server {
	return Server{
		log:     log.With().Str("module", "http").Logger(),
		config:  config,
		db:      db,
		version: version,
		commit:  commit,
		date:    date,

		queueService:    queueSvc,
		batchService:    batchSvc,
		conflictService: conflictSvc,
		rulesService:    rulesSvc,
		statsService:    statsSvc,
	}
}

func (s Server) Open() error {
	addr := fmt.Sprintf("%v:%v", s.config.Config.Server.Host, s.config.Config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	server := http.Server{
		Handler: s.Handler(),
	}

	s.log.Info().Msgf("Starting server. Listening on %s", listener.Addr().String())

	return server.Serve(listener)
}

func (s Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware(&s.log))

	c := cors.New(cors.Options{
		AllowCredentials:   true,
		AllowedMethods:     []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowOriginFunc:    func(origin string) bool { return true },
		OptionsPassthrough: true,
		Debug:              false,
	})

	r.Use(c.Handler)

	encoder := encoder{}

	r.Route("/api", func(r chi.Router) {
		r.Route("/healthz", newHealthHandler(encoder, s.db).Routes)

		authedRouter := r.Group(nil)
		authedRouter.Use(s.AuthenticateAPIToken)

		authedRouter.Route("/queue", newQueueHandler(encoder, s.queueService).Routes)
		authedRouter.Route("/batches", newBatchHandler(encoder, s.batchService).Routes)
		authedRouter.Route("/conflicts", newConflictHandler(encoder, s.conflictService).Routes)
		authedRouter.Route("/stores", newRulesHandler(encoder, s.rulesService).Routes)
		authedRouter.Route("/stats", newStatsHandler(encoder, s.statsService).Routes)
		authedRouter.Route("/config", newConfigHandler(encoder, s, s.config).Routes)

		// the HQ-facing exchange endpoint is only mounted when this
		// instance is configured to act as headquarters
		if s.config.Config.HQ.Serve {
			authedRouter.Route("/exchange", newExchangeHandler(encoder, s.batchService).Routes)
		}
	})

	return r
}
