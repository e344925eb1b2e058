package http

import (
	"encoding/json"
	"net/http"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/queue"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type queueService = queue.Service

type queueHandler struct {
	encoder      encoder
	queueService queueService
}

func newQueueHandler(encoder encoder, queueService queueService) *queueHandler {
	return &queueHandler{
		encoder:      encoder,
		queueService: queueService,
	}
}

func (h queueHandler) Routes(r chi.Router) {
	r.Post("/", h.enqueue)
	r.Get("/pending", h.getPending)
	r.Get("/failed", h.getFailed)
	r.Post("/retry", h.retryFailed)
	r.Post("/{itemID}/retry", h.retryItem)
	r.Delete("/{itemID}", h.cancel)
}

type enqueueJson struct {
	StoreID    int                  `json:"store_id"`
	EntityType domain.EntityType    `json:"entity_type"`
	EntityID   string               `json:"entity_id"`
	Operation  domain.SyncOperation `json:"operation"`
	Priority   domain.SyncPriority  `json:"priority"`
	Payload    json.RawMessage      `json:"payload,omitempty"`
}

func (h queueHandler) enqueue(w http.ResponseWriter, r *http.Request) {
	var data enqueueJson

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadRequest)
		return
	}

	item, err := h.queueService.Enqueue(r.Context(), queue.EnqueueRequest{
		StoreID:    data.StoreID,
		EntityType: data.EntityType,
		EntityID:   data.EntityID,
		Operation:  data.Operation,
		Priority:   data.Priority,
		Payload:    data.Payload,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.encoder.StatusCreatedData(w, item)
}

func (h queueHandler) getPending(w http.ResponseWriter, r *http.Request) {
	storeID := queryInt(r, "storeId", 0)

	items, err := h.queueService.GetPendingItems(r.Context(), storeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, items)
}

func (h queueHandler) getFailed(w http.ResponseWriter, r *http.Request) {
	storeID := queryInt(r, "storeId", 0)

	items, err := h.queueService.GetFailedItems(r.Context(), storeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, items)
}

func (h queueHandler) retryFailed(w http.ResponseWriter, r *http.Request) {
	storeID := queryInt(r, "storeId", 0)

	count, err := h.queueService.RetryFailedItems(r.Context(), storeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]int{"retried": count})
}

func (h queueHandler) retryItem(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "itemID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.queueService.RetryItem(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.encoder.NoContent(w)
}

func (h queueHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "itemID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.queueService.Cancel(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.encoder.NoContent(w)
}
