package http

import (
	"encoding/json"
	"net/http"

	"github.com/storesync/storesync/internal/conflict"
	"github.com/storesync/storesync/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type conflictService = conflict.Service

type conflictHandler struct {
	encoder         encoder
	conflictService conflictService
}

func newConflictHandler(encoder encoder, conflictService conflictService) *conflictHandler {
	return &conflictHandler{
		encoder:         encoder,
		conflictService: conflictService,
	}
}

func (h conflictHandler) Routes(r chi.Router) {
	r.Get("/", h.getUnresolved)
	r.Post("/resolve", h.bulkResolve)
	r.Get("/{conflictID}", h.getConflict)
	r.Post("/{conflictID}/resolve", h.resolve)
}

func (h conflictHandler) getUnresolved(w http.ResponseWriter, r *http.Request) {
	storeID := queryInt(r, "storeId", 0)

	entityType, err := queryEntityType(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	conflicts, err := h.conflictService.GetUnresolved(r.Context(), storeID, entityType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, conflicts)
}

func (h conflictHandler) getConflict(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "conflictID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	c, err := h.conflictService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, c)
}

type resolveJson struct {
	Resolution domain.ConflictResolution `json:"resolution"`
	ResolvedBy string                    `json:"resolved_by"`
	Notes      string                    `json:"notes,omitempty"`
	MergedData json.RawMessage           `json:"merged_data,omitempty"`
}

func (h conflictHandler) resolve(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "conflictID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var data resolveJson
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadRequest)
		return
	}

	resolved, err := h.conflictService.Resolve(r.Context(), conflict.ResolveRequest{
		ID:         id,
		Resolution: data.Resolution,
		ResolvedBy: data.ResolvedBy,
		Notes:      data.Notes,
		MergedData: data.MergedData,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, resolved)
}

type bulkResolveJson struct {
	IDs        []int64                   `json:"ids"`
	Resolution domain.ConflictResolution `json:"resolution"`
	ResolvedBy string                    `json:"resolved_by"`
}

func (h conflictHandler) bulkResolve(w http.ResponseWriter, r *http.Request) {
	var data bulkResolveJson

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadRequest)
		return
	}

	results := h.conflictService.BulkResolve(r.Context(), data.IDs, data.Resolution, data.ResolvedBy)

	render.JSON(w, r, results)
}
