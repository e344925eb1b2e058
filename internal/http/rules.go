package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/rules"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type rulesService = rules.Service

type rulesHandler struct {
	encoder      encoder
	rulesService rulesService
}

func newRulesHandler(encoder encoder, rulesService rulesService) *rulesHandler {
	return &rulesHandler{
		encoder:      encoder,
		rulesService: rulesService,
	}
}

func (h rulesHandler) Routes(r chi.Router) {
	r.Get("/", h.listConfigurations)
	r.Route("/{storeID}", func(r chi.Router) {
		r.Get("/configuration", h.getConfiguration)
		r.Put("/configuration", h.saveConfiguration)
		r.Get("/rules", h.listRules)
		r.Put("/rules", h.saveRule)
		r.Delete("/rules/{ruleID}", h.deleteRule)
	})
}

func (h rulesHandler) listConfigurations(w http.ResponseWriter, r *http.Request) {
	configs, err := h.rulesService.ListConfigurations(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, configs)
}

func (h rulesHandler) getConfiguration(w http.ResponseWriter, r *http.Request) {
	storeID, err := urlParamInt64(r, "storeID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	cfg, err := h.rulesService.GetConfiguration(r.Context(), int(storeID))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, cfg)
}

type configurationJson struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes"`
}

func (h rulesHandler) saveConfiguration(w http.ResponseWriter, r *http.Request) {
	storeID, err := urlParamInt64(r, "storeID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var data configurationJson
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadRequest)
		return
	}

	cfg := domain.SyncConfiguration{
		StoreID:         int(storeID),
		Enabled:         data.Enabled,
		IntervalMinutes: data.IntervalMinutes,
	}

	if err := h.rulesService.SaveConfiguration(r.Context(), &cfg); err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, cfg)
}

func (h rulesHandler) listRules(w http.ResponseWriter, r *http.Request) {
	storeID, err := urlParamInt64(r, "storeID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	ruleList, err := h.rulesService.ListRules(r.Context(), int(storeID))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, ruleList)
}

type ruleJson struct {
	EntityType     domain.EntityType     `json:"entity_type"`
	Direction      domain.SyncDirection  `json:"direction"`
	BatchSize      int                   `json:"batch_size"`
	ConflictPolicy domain.ConflictPolicy `json:"conflict_policy"`
	EffectiveFrom  time.Time             `json:"effective_from"`
	EffectiveTo    *time.Time            `json:"effective_to,omitempty"`
}

func (h rulesHandler) saveRule(w http.ResponseWriter, r *http.Request) {
	storeID, err := urlParamInt64(r, "storeID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var data ruleJson
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadRequest)
		return
	}

	rule, err := h.rulesService.SaveRule(r.Context(), &domain.SyncEntityRule{
		StoreID:        int(storeID),
		EntityType:     data.EntityType,
		Direction:      data.Direction,
		BatchSize:      data.BatchSize,
		ConflictPolicy: data.ConflictPolicy,
		EffectiveFrom:  data.EffectiveFrom,
		EffectiveTo:    data.EffectiveTo,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.encoder.StatusCreatedData(w, rule)
}

func (h rulesHandler) deleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := urlParamInt64(r, "ruleID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.rulesService.DeleteRule(r.Context(), ruleID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.encoder.NoContent(w)
}
