package http

import (
	"net/http"
	"strconv"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// errorStatus maps domain sentinel errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotConfigured):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrChecksumMismatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrBatchInProgress),
		errors.Is(err, domain.ErrStaleState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	render.Status(r, status)
	render.JSON(w, r, errorResponse{
		Message: err.Error(),
		Status:  status,
	})
}

// urlParamInt64 parses a numeric chi route parameter.
func urlParamInt64(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrap(domain.ErrValidation, "invalid %s: %q", key, raw)
	}
	return id, nil
}

// queryInt reads an integer query parameter, falling back to def when absent
// or malformed.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// queryEntityType reads an optional entity type filter.
func queryEntityType(r *http.Request) (*domain.EntityType, error) {
	raw := r.URL.Query().Get("entityType")
	if raw == "" {
		return nil, nil
	}
	et := domain.EntityType(raw)
	if !et.Valid() {
		return nil, errors.Wrap(domain.ErrValidation, "unknown entity type: %q", raw)
	}
	return &et, nil
}
