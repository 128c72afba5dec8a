// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastClient(attempts int) *Client {
	return NewClient(ClientConfig{
		Timeout:       time.Second,
		RetryAttempts: attempts,
		RetryBackoff:  time.Millisecond,
		Logger:        testLogger(),
	})
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := fastClient(3)
	status, body, err := client.Do(context.Background(), http.MethodGet, server.URL, nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := fastClient(3)
	status, _, err := client.Do(context.Background(), http.MethodGet, server.URL, nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestClientReturnsFinalServerError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := fastClient(3)
	status, _, err := client.Do(context.Background(), http.MethodGet, server.URL, nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 after exhausting retries", status)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}
}

func TestClientConnectionFailureExhaustsAttempts(t *testing.T) {
	// A listener that is immediately closed gives a reliably refused
	// address.
	server := httptest.NewServer(http.NotFoundHandler())
	address := server.URL
	server.Close()

	client := fastClient(2)
	_, _, err := client.Do(context.Background(), http.MethodGet, address, nil, nil)
	if err == nil {
		t.Fatal("Do succeeded against a closed listener")
	}
}

func TestClientSetsJSONContentType(t *testing.T) {
	var contentType atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType.Store(r.Header.Get("Content-Type"))
	}))
	defer server.Close()

	client := fastClient(1)
	if _, _, err := client.Do(context.Background(), http.MethodPost, server.URL, []byte(`{}`), nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := contentType.Load(); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
}

func TestClientHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		Timeout:       time.Second,
		RetryAttempts: 3,
		RetryBackoff:  time.Hour,
		Logger:        testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := client.Do(ctx, http.MethodGet, server.URL, nil, nil)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Do returned nil error after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}
