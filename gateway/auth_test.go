// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAPIKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reached := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})

	t.Run("empty_key_disables_auth", func(t *testing.T) {
		reached = false
		handler := RequireAPIKey("", logger, inner)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1", nil))
		if !reached {
			t.Error("inner handler not reached with auth disabled")
		}
	})

	t.Run("matching_key_passes", func(t *testing.T) {
		reached = false
		handler := RequireAPIKey("secret", logger, inner)
		request := httptest.NewRequest("GET", "/api/v1", nil)
		request.Header.Set("X-API-Key", "secret")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		if !reached {
			t.Error("inner handler not reached with valid key")
		}
	})

	t.Run("wrong_key_is_401", func(t *testing.T) {
		reached = false
		handler := RequireAPIKey("secret", logger, inner)
		request := httptest.NewRequest("GET", "/api/v1", nil)
		request.Header.Set("X-API-Key", "wrong")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", recorder.Code)
		}
		if reached {
			t.Error("inner handler reached with wrong key")
		}
	})

	t.Run("missing_key_is_401", func(t *testing.T) {
		reached = false
		handler := RequireAPIKey("secret", logger, inner)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1", nil))
		if recorder.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", recorder.Code)
		}
		if reached {
			t.Error("inner handler reached without key")
		}
	})
}

// TestAPIKeyProtectsAllRoutes verifies the middleware sits in front of
// every gateway route, so a bad key never touches the stores.
func TestAPIKeyProtectsAllRoutes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler, queue, _ := newTestHandler(t)
	protected := RequireAPIKey("secret", logger, handler.Routes())

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1"},
		{"POST", "/api/v1/command"},
		{"GET", "/api/v1/commands"},
		{"DELETE", "/api/v1/commands"},
		{"GET", "/api/v1/response/some-id"},
		{"POST", "/api/v1/status"},
	}
	for _, route := range routes {
		t.Run(route.method+"_"+route.path, func(t *testing.T) {
			request := httptest.NewRequest(route.method, route.path, nil)
			request.Header.Set("X-API-Key", "wrong")
			recorder := httptest.NewRecorder()
			protected.ServeHTTP(recorder, request)
			if recorder.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", recorder.Code)
			}
		})
	}
	if queue.Len() != 0 {
		t.Errorf("queue length = %d, want 0 (no request should reach the stores)", queue.Len())
	}
}
