package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storesync/storesync/internal/batch"
	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBatchService struct {
	batch.Service

	runErr    error
	lastForce bool
	batches   map[string]*domain.SyncBatch
	processed *domain.SyncPayload
}

func (s *stubBatchService) RunSync(_ context.Context, storeID int, entityType domain.EntityType, force bool) (*domain.SyncBatch, error) {
	if s.runErr != nil {
		return nil, s.runErr
	}
	s.lastForce = force
	return &domain.SyncBatch{
		ID:         "batch-1",
		StoreID:    storeID,
		EntityType: entityType,
		Status:     domain.SyncStatusCompleted,
	}, nil
}

func (s *stubBatchService) GetBatch(_ context.Context, batchID string) (*domain.SyncBatch, error) {
	b, ok := s.batches[batchID]
	if !ok {
		return nil, errors.Wrap(domain.ErrNotFound, "batch %s", batchID)
	}
	return b, nil
}

func (s *stubBatchService) CancelSync(_ context.Context, batchID string) error {
	if _, ok := s.batches[batchID]; !ok {
		return errors.Wrap(domain.ErrNotFound, "batch %s", batchID)
	}
	return nil
}

func (s *stubBatchService) ProcessUploadPayload(_ context.Context, payload *domain.SyncPayload) (*domain.ExchangeResult, error) {
	if err := domain.VerifyChecksum(payload); err != nil {
		return nil, err
	}
	s.processed = payload

	results := make([]domain.RecordResult, 0, len(payload.Records))
	for _, rec := range payload.Records {
		results = append(results, domain.RecordResult{EntityID: rec.EntityID, Applied: true})
	}
	return &domain.ExchangeResult{Results: results}, nil
}

func newBatchTestRouter(svc batch.Service) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/batches", newBatchHandler(encoder{}, svc).Routes)
	r.Route("/exchange", newExchangeHandler(encoder{}, svc).Routes)
	return r
}

func TestBatchHandler_Trigger(t *testing.T) {
	svc := &stubBatchService{}
	router := newBatchTestRouter(svc)

	body, err := json.Marshal(triggerJson{StoreID: 1, EntityType: domain.EntityTypeProduct, Force: true})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/batches", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, svc.lastForce)

	var b domain.SyncBatch
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &b))
	assert.Equal(t, "batch-1", b.ID)
}

func TestBatchHandler_TriggerRejectsUnknownEntityType(t *testing.T) {
	router := newBatchTestRouter(&stubBatchService{})

	body, err := json.Marshal(triggerJson{StoreID: 1, EntityType: "GADGET"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/batches", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBatchHandler_TriggerConflictsWhileRunning(t *testing.T) {
	svc := &stubBatchService{runErr: errors.Wrap(domain.ErrBatchInProgress, "store 1, PRODUCT")}
	router := newBatchTestRouter(svc)

	body, err := json.Marshal(triggerJson{StoreID: 1, EntityType: domain.EntityTypeProduct})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/batches", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestBatchHandler_GetBatch(t *testing.T) {
	svc := &stubBatchService{
		batches: map[string]*domain.SyncBatch{
			"batch-7": {ID: "batch-7", Status: domain.SyncStatusFailed},
		},
	}
	router := newBatchTestRouter(svc)

	t.Run("known batch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/batches/batch-7", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var b domain.SyncBatch
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &b))
		assert.Equal(t, domain.SyncStatusFailed, b.Status)
	})

	t.Run("unknown batch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/batches/nope", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestExchangeHandler_RoundTrip(t *testing.T) {
	svc := &stubBatchService{}
	router := newBatchTestRouter(svc)

	payload := &domain.SyncPayload{
		StoreID:    3,
		EntityType: domain.EntityTypeReceipt,
		Records: []domain.SyncRecord{
			{EntityID: "R-1", Operation: domain.SyncOperationCreate, Data: []byte(`{"total":12.50}`)},
		},
	}
	domain.SealChecksum(payload)

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/exchange", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, svc.processed)
	assert.Equal(t, 3, svc.processed.StoreID)

	var result domain.ExchangeResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].Applied)
}

func TestExchangeHandler_RejectsBadChecksum(t *testing.T) {
	router := newBatchTestRouter(&stubBatchService{})

	payload := &domain.SyncPayload{
		StoreID:    3,
		EntityType: domain.EntityTypeReceipt,
		Records: []domain.SyncRecord{
			{EntityID: "R-1", Operation: domain.SyncOperationCreate, Data: []byte(`{"total":12.50}`)},
		},
		Checksum: "tampered",
	}

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/exchange", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
