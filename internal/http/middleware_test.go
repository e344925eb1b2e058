package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storesync/storesync/internal/config"
	"github.com/storesync/storesync/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newAuthTestServer(token string) *Server {
	return &Server{
		log: zerolog.Nop(),
		config: &config.AppConfig{
			Config: &domain.Config{
				HQ: domain.HQConfig{APIToken: token},
			},
		},
	}
}

func TestAuthenticateAPIToken(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{
			name:       "valid token",
			configured: "sekret",
			header:     "Bearer sekret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "case insensitive scheme",
			configured: "sekret",
			header:     "bearer sekret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			configured: "sekret",
			header:     "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed header",
			configured: "sekret",
			header:     "sekret",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong token",
			configured: "sekret",
			header:     "Bearer nope",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no token configured",
			configured: "",
			header:     "Bearer anything",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newAuthTestServer(tt.configured)

			req := httptest.NewRequest(http.MethodGet, "/api/queue/pending", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rr := httptest.NewRecorder()
			s.AuthenticateAPIToken(okHandler).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}
