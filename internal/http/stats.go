package http

import (
	"net/http"
	"time"

	"github.com/storesync/storesync/internal/stats"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type statsService = stats.Service

// statsDefaultWindow bounds how far back aggregations look unless the caller
// asks otherwise.
const statsDefaultWindow = 24 * time.Hour

type statsHandler struct {
	encoder      encoder
	statsService statsService
}

func newStatsHandler(encoder encoder, statsService statsService) *statsHandler {
	return &statsHandler{
		encoder:      encoder,
		statsService: statsService,
	}
}

func (h statsHandler) Routes(r chi.Router) {
	r.Get("/chain", h.getChainStats)
	r.Get("/stores/{storeID}", h.getStoreStats)
	r.Get("/stores/{storeID}/logs", h.getLogs)
}

func (h statsHandler) window(r *http.Request) time.Duration {
	hours := queryInt(r, "windowHours", 0)
	if hours <= 0 {
		return statsDefaultWindow
	}
	return time.Duration(hours) * time.Hour
}

func (h statsHandler) getChainStats(w http.ResponseWriter, r *http.Request) {
	chainStats, err := h.statsService.ChainStats(r.Context(), h.window(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, chainStats)
}

func (h statsHandler) getStoreStats(w http.ResponseWriter, r *http.Request) {
	storeID, err := urlParamInt64(r, "storeID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	storeStats, err := h.statsService.StoreStats(r.Context(), int(storeID), h.window(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, storeStats)
}

func (h statsHandler) getLogs(w http.ResponseWriter, r *http.Request) {
	storeID, err := urlParamInt64(r, "storeID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	limit := queryInt(r, "limit", 100)

	logs, err := h.statsService.RecentLogs(r.Context(), int(storeID), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, logs)
}
