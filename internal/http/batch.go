package http

import (
	"encoding/json"
	"net/http"

	"github.com/storesync/storesync/internal/batch"
	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type batchService = batch.Service

type batchHandler struct {
	encoder      encoder
	batchService batchService
}

func newBatchHandler(encoder encoder, batchService batchService) *batchHandler {
	return &batchHandler{
		encoder:      encoder,
		batchService: batchService,
	}
}

func (h batchHandler) Routes(r chi.Router) {
	r.Post("/", h.trigger)
	r.Get("/failed", h.getFailed)
	r.Get("/{batchID}", h.getBatch)
	r.Post("/{batchID}/cancel", h.cancel)
	r.Post("/{batchID}/retry", h.retry)
}

type triggerJson struct {
	StoreID    int               `json:"store_id"`
	EntityType domain.EntityType `json:"entity_type"`
	Force      bool              `json:"force"`
}

func (h batchHandler) trigger(w http.ResponseWriter, r *http.Request) {
	var data triggerJson

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadRequest)
		return
	}

	if !data.EntityType.Valid() {
		writeServiceError(w, r, errors.Wrap(domain.ErrValidation, "unknown entity type: %q", data.EntityType))
		return
	}

	batchRun, err := h.batchService.RunSync(r.Context(), data.StoreID, data.EntityType, data.Force)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.encoder.StatusCreatedData(w, batchRun)
}

func (h batchHandler) getBatch(w http.ResponseWriter, r *http.Request) {
	batchRun, err := h.batchService.GetBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, batchRun)
}

func (h batchHandler) getFailed(w http.ResponseWriter, r *http.Request) {
	storeID := queryInt(r, "storeId", 0)

	batches, err := h.batchService.GetFailedBatches(r.Context(), storeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, batches)
}

func (h batchHandler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.batchService.CancelSync(r.Context(), chi.URLParam(r, "batchID")); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.encoder.NoContent(w)
}

func (h batchHandler) retry(w http.ResponseWriter, r *http.Request) {
	batchRun, err := h.batchService.RetryBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.encoder.StatusCreatedData(w, batchRun)
}
