// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stagelink/stagelink/lib/clock"
	"github.com/stagelink/stagelink/lib/testutil"
	"github.com/stagelink/stagelink/relay"
)

// fakeGateway serves a command batch once and records status reports.
type fakeGateway struct {
	mu      sync.Mutex
	batch   []relay.Command
	served  bool
	reports []statusReport
	apiKeys []string

	reported chan statusReport
}

type statusReport struct {
	Command struct {
		ID string `json:"id"`
	} `json:"command"`
	StatusCode int    `json:"status_code"`
	Response   string `json:"response"`
}

func newFakeGateway(batch []relay.Command) *fakeGateway {
	return &fakeGateway{batch: batch, reported: make(chan statusReport, 16)}
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.apiKeys = append(g.apiKeys, r.Header.Get("X-API-Key"))
	g.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/commands":
		g.mu.Lock()
		batch := g.batch
		if g.served {
			batch = nil
		}
		g.served = true
		g.mu.Unlock()
		if batch == nil {
			batch = []relay.Command{}
		}
		json.NewEncoder(w).Encode(batch)
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/status":
		var report statusReport
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.mu.Lock()
		g.reports = append(g.reports, report)
		g.mu.Unlock()
		g.reported <- report
		w.Write([]byte(`{"status":"ok"}`))
	default:
		http.NotFound(w, r)
	}
}

func (g *fakeGateway) seenAPIKeys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.apiKeys...)
}

func TestPollerExecutesAndReports(t *testing.T) {
	target := &recordingTarget{status: http.StatusOK, body: "done"}
	targetServer := httptest.NewServer(target)
	defer targetServer.Close()

	gateway := newFakeGateway([]relay.Command{
		{ID: "b1", Endpoint: "presentation/next", Method: relay.MethodGet},
		{ID: "b2", Endpoint: "presentation/previous", Method: relay.MethodGet},
	})
	gatewayServer := httptest.NewServer(gateway)
	defer gatewayServer.Close()

	client := fastClient(1)
	poller := NewPoller(PollerConfig{
		GatewayURL: gatewayServer.URL,
		APIKey:     "sesame",
		Interval:   time.Second,
		Executor:   NewExecutor(targetServer.URL, client, testLogger()),
		Client:     client,
		Logger:     testLogger(),
	})

	poller.pollOnce(context.Background())

	first := testutil.RequireReceive(t, gateway.reported, time.Second, "first status report")
	second := testutil.RequireReceive(t, gateway.reported, time.Second, "second status report")
	if first.Command.ID != "b1" || second.Command.ID != "b2" {
		t.Errorf("reports out of order: %q then %q", first.Command.ID, second.Command.ID)
	}
	if first.StatusCode != http.StatusOK || first.Response != "done" {
		t.Errorf("first report = %+v, want 200/done", first)
	}

	// Batch order must match execution order on the target.
	requests := target.recorded()
	if len(requests) != 2 || requests[0].path != "/v1/presentation/next" || requests[1].path != "/v1/presentation/previous" {
		t.Errorf("target requests = %+v", requests)
	}

	for _, key := range gateway.seenAPIKeys() {
		if key != "sesame" {
			t.Errorf("gateway saw API key %q, want sesame", key)
		}
	}
}

func TestPollerReportsExecutionOnceDespiteTargetRetries(t *testing.T) {
	// Target fails twice, then succeeds. The retry lives inside the
	// executor's client; the gateway must see exactly one status
	// report, carrying the final 200.
	var calls atomic.Int64
	targetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer targetServer.Close()

	gateway := newFakeGateway([]relay.Command{
		{ID: "r1", Endpoint: "version", Method: relay.MethodGet},
	})
	gatewayServer := httptest.NewServer(gateway)
	defer gatewayServer.Close()

	client := fastClient(3)
	poller := NewPoller(PollerConfig{
		GatewayURL: gatewayServer.URL,
		Executor:   NewExecutor(targetServer.URL, client, testLogger()),
		Client:     client,
		Logger:     testLogger(),
	})

	poller.pollOnce(context.Background())

	report := testutil.RequireReceive(t, gateway.reported, time.Second, "status report")
	if report.StatusCode != http.StatusOK || report.Response != "recovered" {
		t.Errorf("report = %+v, want 200/recovered", report)
	}

	select {
	case extra := <-gateway.reported:
		t.Fatalf("gateway received a second report: %+v", extra)
	default:
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("target saw %d requests, want 3", got)
	}
}

func TestPollerSurvivesGatewayOutage(t *testing.T) {
	gatewayServer := httptest.NewServer(http.NotFoundHandler())
	address := gatewayServer.URL
	gatewayServer.Close()

	targetServer := httptest.NewServer(&recordingTarget{})
	defer targetServer.Close()

	client := fastClient(1)
	poller := NewPoller(PollerConfig{
		GatewayURL: address,
		Executor:   NewExecutor(targetServer.URL, client, testLogger()),
		Client:     client,
		Logger:     testLogger(),
	})

	// Must not panic or block; the failure is logged and swallowed.
	poller.pollOnce(context.Background())
}

func TestPollerRunTicks(t *testing.T) {
	target := &recordingTarget{body: "ok"}
	targetServer := httptest.NewServer(target)
	defer targetServer.Close()

	gateway := newFakeGateway([]relay.Command{
		{ID: "t1", Endpoint: "version", Method: relay.MethodGet},
	})
	gatewayServer := httptest.NewServer(gateway)
	defer gatewayServer.Close()

	clk := clock.Fake(time.Unix(1000, 0))
	client := fastClient(1)
	poller := NewPoller(PollerConfig{
		GatewayURL: gatewayServer.URL,
		Interval:   5 * time.Second,
		Executor:   NewExecutor(targetServer.URL, client, testLogger()),
		Client:     client,
		Clock:      clk,
		Logger:     testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- poller.Run(ctx)
	}()

	clk.WaitForTimers(1)
	clk.Advance(5 * time.Second)

	report := testutil.RequireReceive(t, gateway.reported, 5*time.Second, "status report after tick")
	if report.Command.ID != "t1" {
		t.Errorf("report command = %q, want t1", report.Command.ID)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Run return"); err != context.Canceled {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}
