// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTP_Fetch(t *testing.T) {
	t.Parallel()

	var failures atomic.Int32
	failures.Store(2)
	mux := http.NewServeMux()
	mux.HandleFunc("/modules/billing/billing.wasm", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("billing-bytes"))
	})
	mux.HandleFunc("/modules/flaky/flaky.wasm", func(w http.ResponseWriter, _ *http.Request) {
		if failures.Add(-1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("flaky-bytes"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	h, err := NewHTTP(srv.URL+"/modules", WithInitialInterval(time.Millisecond), WithRetries(3))
	if err != nil {
		t.Fatalf("NewHTTP() error: %v", err)
	}

	data, ok := h.Fetch(context.Background(), "billing/billing.wasm")
	if !ok || string(data) != "billing-bytes" {
		t.Errorf("Fetch(billing) = %q, %v", data, ok)
	}

	data, ok = h.Fetch(context.Background(), "flaky/flaky.wasm")
	if !ok || string(data) != "flaky-bytes" {
		t.Errorf("Fetch(flaky) = %q, %v; 5xx should be retried", data, ok)
	}

	if _, ok := h.Fetch(context.Background(), "missing/missing.wasm"); ok {
		t.Error("Fetch(missing) should miss")
	}
}

func TestHTTP_NotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	t.Cleanup(srv.Close)

	h, err := NewHTTP(srv.URL, WithInitialInterval(time.Millisecond), WithRetries(5))
	if err != nil {
		t.Fatalf("NewHTTP() error: %v", err)
	}
	if _, ok := h.Fetch(context.Background(), "x.wasm"); ok {
		t.Fatal("Fetch should miss on 404")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1", got)
	}
}

func TestHTTP_BodyLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	t.Cleanup(srv.Close)

	h, _ := NewHTTP(srv.URL, WithMaxBodySize(16))
	if _, ok := h.Fetch(context.Background(), "big.wasm"); ok {
		t.Error("Fetch should miss when the body exceeds the limit")
	}
}

func TestNewHTTP_InvalidBase(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"ftp://example.com", "://bad", "example.com/modules"} {
		if _, err := NewHTTP(base); err == nil {
			t.Errorf("NewHTTP(%q) should fail", base)
		}
	}
}

func TestHTTP_URL(t *testing.T) {
	t.Parallel()

	h, _ := NewHTTP("https://cdn.example.com/app/_content")
	got, ok := h.URL("/billing/billing.wasm")
	if !ok || got != "https://cdn.example.com/app/_content/billing/billing.wasm" {
		t.Errorf("URL() = %q, %v", got, ok)
	}
}
