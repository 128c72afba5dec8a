// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newHandlerServer(t *testing.T, broker *Broker) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(NewHandler(broker, testLogger()).Routes())
	t.Cleanup(server.Close)
	return server
}

func decodeBody[T any](t *testing.T, response *http.Response) T {
	t.Helper()
	defer response.Body.Close()
	var v T
	if err := json.NewDecoder(response.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return v
}

func TestHandlerListWorkers(t *testing.T) {
	broker := startBroker(t, nil)
	connectWorker(t, broker, "stage-left")
	connectWorker(t, broker, "booth")
	server := newHandlerServer(t, broker)

	response, err := http.Get(server.URL + "/api/v1/workers")
	if err != nil {
		t.Fatalf("GET workers: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}
	body := decodeBody[map[string][]string](t, response)
	want := []string{"booth", "stage-left"}
	if got := body["workers"]; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("workers = %v, want %v", got, want)
	}
}

func TestHandlerForward(t *testing.T) {
	broker := startBroker(t, nil)
	worker := connectWorker(t, broker, "stage-left")
	server := newHandlerServer(t, broker)

	go answer(t, worker, "stage-left", 200, `{"version":"7.9"}`)

	response, err := http.Post(
		server.URL+"/api/v1/workers/stage-left/request",
		"application/json",
		strings.NewReader(`{"action":"get_version"}`),
	)
	if err != nil {
		t.Fatalf("POST request: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}
	body := decodeBody[map[string]any](t, response)
	if body["worker_id"] != "stage-left" {
		t.Errorf("worker_id = %v, want stage-left", body["worker_id"])
	}
	if body["status_code"] != float64(200) {
		t.Errorf("status_code = %v, want 200", body["status_code"])
	}
	if body["response"] != `{"version":"7.9"}` {
		t.Errorf("response = %v", body["response"])
	}
}

func TestHandlerForwardErrors(t *testing.T) {
	broker := startBroker(t, nil)
	server := newHandlerServer(t, broker)

	t.Run("worker not connected", func(t *testing.T) {
		response, err := http.Post(
			server.URL+"/api/v1/workers/nobody/request",
			"application/json",
			strings.NewReader(`{"action":"get_version"}`),
		)
		if err != nil {
			t.Fatalf("POST request: %v", err)
		}
		defer response.Body.Close()
		if response.StatusCode != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", response.StatusCode)
		}
	})

	t.Run("missing action", func(t *testing.T) {
		response, err := http.Post(
			server.URL+"/api/v1/workers/nobody/request",
			"application/json",
			strings.NewReader(`{}`),
		)
		if err != nil {
			t.Fatalf("POST request: %v", err)
		}
		defer response.Body.Close()
		if response.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", response.StatusCode)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		response, err := http.Post(
			server.URL+"/api/v1/workers/nobody/request",
			"application/json",
			strings.NewReader(`{`),
		)
		if err != nil {
			t.Fatalf("POST request: %v", err)
		}
		defer response.Body.Close()
		if response.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", response.StatusCode)
		}
	})
}
