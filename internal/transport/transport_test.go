package transport

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &StatusError{Code: 503}, true},
		{"too many requests", &StatusError{Code: 429}, true},
		{"bad request", &StatusError{Code: 400}, false},
		{"unauthorized", &StatusError{Code: 401}, false},
		{"wrapped server error", errors.Wrap(&StatusError{Code: 500}, "exchange failed"), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"dns failure", &net.DNSError{Err: "no such host", IsNotFound: true}, true},
		{"validation error", domain.ErrValidation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestClient_Exchange(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	upload := &domain.SyncPayload{
		StoreID:     1,
		EntityType:  domain.EntityTypeProduct,
		GeneratedAt: now,
		Records: []domain.SyncRecord{
			{EntityID: "p-1", Operation: domain.SyncOperationUpdate, Data: []byte(`{"price":42}`), LastModified: now},
		},
	}
	domain.SealChecksum(upload)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/exchange", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		var got domain.SyncPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, upload.Checksum, got.Checksum)

		download := &domain.SyncPayload{
			StoreID:     1,
			EntityType:  domain.EntityTypeProduct,
			GeneratedAt: now,
			Records: []domain.SyncRecord{
				{EntityID: "p-9", Operation: domain.SyncOperationCreate, Data: []byte(`{"price":9}`), LastModified: now},
			},
		}
		domain.SealChecksum(download)

		render := domain.ExchangeResult{
			Results:  []domain.RecordResult{{EntityID: "p-1", Applied: true}},
			Download: download,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(render)
	}))
	defer srv.Close()

	client := NewClient(logger.Mock(), ClientOpts{Endpoint: srv.URL, APIToken: "secret-token"})

	result, err := client.Exchange(context.Background(), upload)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].Applied)
	require.NotNil(t, result.Download)
	assert.Equal(t, "p-9", result.Download.Records[0].EntityID)
}

func TestClient_Exchange_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance window", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(logger.Mock(), ClientOpts{Endpoint: srv.URL, APIToken: "t"})

	_, err := client.Exchange(context.Background(), &domain.SyncPayload{EntityType: domain.EntityTypeProduct})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Contains(t, statusErr.Body, "maintenance window")
	assert.True(t, IsTransient(err))
}

func TestClient_Exchange_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		download := &domain.SyncPayload{
			EntityType: domain.EntityTypeProduct,
			Records: []domain.SyncRecord{
				{EntityID: "p-9", Operation: domain.SyncOperationCreate, Data: []byte(`{"price":9}`)},
			},
			Checksum: "deadbeef",
		}
		json.NewEncoder(w).Encode(domain.ExchangeResult{Download: download})
	}))
	defer srv.Close()

	client := NewClient(logger.Mock(), ClientOpts{Endpoint: srv.URL, APIToken: "t"})

	_, err := client.Exchange(context.Background(), &domain.SyncPayload{EntityType: domain.EntityTypeProduct})
	assert.ErrorIs(t, err, domain.ErrChecksumMismatch)
	assert.False(t, IsTransient(err))
}
