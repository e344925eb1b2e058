package http

import (
	"encoding/json"
	"net/http"

	"github.com/storesync/storesync/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// exchangeHandler is the HQ-facing side of the protocol: stores POST their
// upload envelope here and receive per-record results plus the download
// envelope for the same entity type.
type exchangeHandler struct {
	encoder      encoder
	batchService batchService
}

func newExchangeHandler(encoder encoder, batchService batchService) *exchangeHandler {
	return &exchangeHandler{
		encoder:      encoder,
		batchService: batchService,
	}
}

func (h exchangeHandler) Routes(r chi.Router) {
	r.Post("/", h.exchange)
}

func (h exchangeHandler) exchange(w http.ResponseWriter, r *http.Request) {
	var payload domain.SyncPayload

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadRequest)
		return
	}

	result, err := h.batchService.ProcessUploadPayload(r.Context(), &payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, result)
}
