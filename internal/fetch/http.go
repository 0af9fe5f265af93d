// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 2
	// DefaultInitialInterval is the first backoff delay.
	DefaultInitialInterval = 100 * time.Millisecond
	// DefaultMaxBodySize caps a single response body.
	DefaultMaxBodySize = 64 << 20
)

var errStatus = errors.New("unexpected response status")

type (
	// HTTP fetches locations relative to a base URL. Transport errors and 5xx
	// responses are retried with exponential backoff; any other non-200 status
	// is a permanent miss.
	HTTP struct {
		base            *url.URL
		client          *http.Client
		retries         uint64
		initialInterval time.Duration
		maxBodySize     int64
		logger          *slog.Logger
	}

	// HTTPOption configures an HTTP fetcher.
	HTTPOption func(*HTTP)

	statusError struct {
		code int
	}
)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n uint64) HTTPOption {
	return func(h *HTTP) { h.retries = n }
}

// WithInitialInterval sets the first backoff delay.
func WithInitialInterval(d time.Duration) HTTPOption {
	return func(h *HTTP) { h.initialInterval = d }
}

// WithMaxBodySize caps the accepted response size.
func WithMaxBodySize(n int64) HTTPOption {
	return func(h *HTTP) { h.maxBodySize = n }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTP) { h.logger = l }
}

// NewHTTP returns a fetcher for locations under baseURL.
func NewHTTP(baseURL string, opts ...HTTPOption) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}
	h := &HTTP{
		base:            u,
		client:          http.DefaultClient,
		retries:         DefaultRetries,
		initialInterval: DefaultInitialInterval,
		maxBodySize:     DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = loggerOrDefault(h.logger)
	return h, nil
}

// URL returns the absolute URL for location.
func (h *HTTP) URL(location string) (string, bool) {
	rel, ok := cleanLocation(location)
	if !ok {
		return "", false
	}
	ref, err := url.Parse(rel)
	if err != nil {
		return "", false
	}
	return h.base.ResolveReference(ref).String(), true
}

// Fetch implements Fetcher.
func (h *HTTP) Fetch(ctx context.Context, location string) ([]byte, bool) {
	target, ok := h.URL(location)
	if !ok {
		return nil, false
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(backoff.WithInitialInterval(h.initialInterval)),
			h.retries,
		),
		ctx,
	)
	data, err := backoff.RetryWithData[[]byte](func() ([]byte, error) {
		return h.get(ctx, target)
	}, b)
	if err != nil {
		h.logger.Debug("fetch miss", "location", location, "url", target, "error", err)
		return nil, false
	}
	return data, true
}

func (h *HTTP) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &statusError{code: resp.StatusCode}
	default:
		return nil, backoff.Permanent(&statusError{code: resp.StatusCode})
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.maxBodySize {
		return nil, backoff.Permanent(fmt.Errorf("response exceeds %d bytes", h.maxBodySize))
	}
	return data, nil
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %d %s", errStatus, e.code, http.StatusText(e.code))
}

func (e *statusError) Unwrap() error { return errStatus }
