// Package transport moves sync payload envelopes between a store and HQ. The
// batch processor only sees the Transport interface; the HTTP client behind
// it is swappable in tests.
package transport

import (
	"context"
	"net"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/pkg/errors"
)

// Transport exchanges one upload envelope for the per-record results and the
// corresponding download envelope.
type Transport interface {
	Exchange(ctx context.Context, payload *domain.SyncPayload) (*domain.ExchangeResult, error)
}

// StatusError is a non-2xx response from HQ.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return errors.New("hq returned status %d", e.Code).Error()
	}
	return errors.New("hq returned status %d: %s", e.Code, e.Body).Error()
}

// IsTransient reports whether an exchange failure is worth retrying: network
// and timeout errors, plus 5xx and 429 responses. Other HTTP statuses mean
// the request itself is bad and will not improve with retries.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == 429
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}
