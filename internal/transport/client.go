package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/rs/zerolog"
)

const exchangePath = "/api/exchange"

type ClientOpts struct {
	Endpoint string
	APIToken string
	Timeout  time.Duration
}

// NewClient returns the HTTP Transport that talks to HQ's exchange endpoint.
func NewClient(log logger.Logger, opts ClientOpts) Transport {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		log:      log.With().Str("module", "transport").Logger(),
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		token:    opts.APIToken,
		http:     &http.Client{Timeout: timeout},
	}
}

type client struct {
	log      zerolog.Logger
	endpoint string
	token    string
	http     *http.Client
}

func (c *client) Exchange(ctx context.Context, payload *domain.SyncPayload) (*domain.ExchangeResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode sync payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+exchangePath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build exchange request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	c.log.Debug().
		Int("storeId", payload.StoreID).
		Str("entityType", string(payload.EntityType)).
		Int("records", len(payload.Records)).
		Msg("exchanging payload with hq")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "exchange request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// cap the body so a misbehaving proxy cannot flood the error
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var result domain.ExchangeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to decode exchange response")
	}

	if result.Download != nil {
		if err := domain.VerifyChecksum(result.Download); err != nil {
			return nil, err
		}
	}

	return &result, nil
}
