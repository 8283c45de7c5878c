// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package clients holds the typed clients for every downstream service the
// orchestrator talks to: DOI registries, the metadata catalog, the
// access-management service, the archive admin API, object storage and
// Keystone. All HTTP clients share one retrying, circuit-broken core.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	// Error is the default error class for the clients package.
	Error = errs.Class("clients")
	// ErrTransient marks transport failures and downstream 5xx responses.
	ErrTransient = errs.Class("transient upstream")
	// ErrPermanent marks downstream 4xx responses; retrying will not help.
	ErrPermanent = errs.Class("permanent upstream")

	mon = monkit.Package()
)

const (
	defaultTimeout = 30 * time.Second
	maxAttempts    = 5
)

// Pinger is a downstream collaborator that can report liveness.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// httpClient is the shared retrying core. Retries apply only to transport
// errors and 5xx responses, with exponential backoff and jitter, capped at
// maxAttempts; a circuit breaker sheds load when the downstream is down.
type httpClient struct {
	log     *zap.Logger
	name    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker

	baseURL   string
	authorize func(req *http.Request)
}

func newHTTPClient(log *zap.Logger, name, baseURL string, authorize func(req *http.Request)) *httpClient {
	return &httpClient{
		log:  log.Named(name),
		name: name,
		client: &http.Client{
			Timeout: defaultTimeout,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: name,
		}),
		baseURL:   baseURL,
		authorize: authorize,
	}
}

// response is the decoded downstream reply.
type response struct {
	Status int
	Body   []byte
}

// do runs one request with retries; body is re-marshaled per attempt.
func (c *httpClient) do(ctx context.Context, method, path string, payload any) (_ *response, err error) {
	defer mon.Task()(&ctx)(&err)

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}

	var resp *response
	operation := func() error {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.once(ctx, method, path, body)
		})
		if err != nil {
			if ErrPermanent.Has(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = result.(*response)
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *httpClient) once(ctx context.Context, method, path string, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.authorize != nil {
		c.authorize(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ErrTransient.New("%s: %v", c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, ErrTransient.New("%s: reading body: %v", c.name, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, ErrTransient.New("%s returned %d: %s", c.name, resp.StatusCode, snippet(data))
	case resp.StatusCode >= 400:
		return nil, ErrPermanent.New("%s returned %d: %s", c.name, resp.StatusCode, snippet(data))
	}
	return &response{Status: resp.StatusCode, Body: data}, nil
}

// ping runs a cheap unretried GET for health probing.
func (c *httpClient) ping(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return Error.Wrap(err)
	}
	if c.authorize != nil {
		c.authorize(req)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return ErrTransient.New("%s: %v", c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 500 {
		return ErrTransient.New("%s returned %d", c.name, resp.StatusCode)
	}
	return nil
}

func snippet(data []byte) string {
	const max = 256
	if len(data) > max {
		data = data[:max]
	}
	return string(data)
}

func decode(resp *response, target any) error {
	if err := json.Unmarshal(resp.Body, target); err != nil {
		return Error.New("decoding response: %v", err)
	}
	return nil
}

func basicAuth(username, password string) func(req *http.Request) {
	return func(req *http.Request) { req.SetBasicAuth(username, password) }
}

func headerAuth(header, value string) func(req *http.Request) {
	return func(req *http.Request) { req.Header.Set(header, value) }
}

func bearerAuth(token string) func(req *http.Request) {
	return headerAuth("Authorization", fmt.Sprintf("Bearer %s", token))
}
