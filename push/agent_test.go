// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stagelink/stagelink/lib/testutil"
)

// startAgent runs an agent against the broker and tears it down with
// the test.
func startAgent(t *testing.T, broker *Broker, workerID string, handle ActionFunc) {
	t.Helper()
	agent := NewAgent(AgentConfig{
		BrokerAddress: broker.Addr().String(),
		WorkerID:      workerID,
		Handle:        handle,
		Logger:        testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- agent.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "agent shutdown"); !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for broker.Registry().Lookup(workerID) == nil {
		if time.Now().After(deadline) {
			t.Fatalf("agent %q never registered", workerID)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAgentServesForwardedRequests(t *testing.T) {
	broker := startBroker(t, nil)
	startAgent(t, broker, "stage-left", func(ctx context.Context, action string, payload map[string]any) (int, string, error) {
		if action != "get_version" {
			return 0, "", fmt.Errorf("unknown action %q", action)
		}
		return 200, `{"version":"7.9"}`, nil
	})

	reply, err := broker.Forward(context.Background(), "stage-left", "get_version", nil)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if reply.WorkerID != "stage-left" {
		t.Errorf("WorkerID = %q, want stage-left", reply.WorkerID)
	}
	if reply.StatusCode != 200 || reply.Body != `{"version":"7.9"}` {
		t.Errorf("reply = %+v", reply)
	}
}

func TestAgentReportsActionErrors(t *testing.T) {
	broker := startBroker(t, nil)
	startAgent(t, broker, "stage-left", func(ctx context.Context, action string, payload map[string]any) (int, string, error) {
		return 0, "", errors.New("target unreachable")
	})

	reply, err := broker.Forward(context.Background(), "stage-left", "slideshow", nil)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if reply.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", reply.StatusCode)
	}
	if reply.Error != "target unreachable" {
		t.Errorf("Error = %q, want the action error", reply.Error)
	}
}

func TestAgentHandlesConcurrentRequests(t *testing.T) {
	broker := startBroker(t, nil)

	release := make(chan struct{})
	startAgent(t, broker, "stage-left", func(ctx context.Context, action string, payload map[string]any) (int, string, error) {
		if action == "slow" {
			<-release
		}
		return 200, action, nil
	})

	slowResult := make(chan Reply, 1)
	go func() {
		reply, err := broker.Forward(context.Background(), "stage-left", "slow", nil)
		if err != nil {
			t.Errorf("Forward slow: %v", err)
			return
		}
		slowResult <- reply
	}()

	// A fast request completes while the slow one is still blocked.
	reply, err := broker.Forward(context.Background(), "stage-left", "fast", nil)
	if err != nil {
		t.Fatalf("Forward fast: %v", err)
	}
	if reply.Body != "fast" {
		t.Errorf("fast reply body = %q", reply.Body)
	}

	close(release)
	slow := testutil.RequireReceive(t, slowResult, 5*time.Second, "slow reply")
	if slow.Body != "slow" {
		t.Errorf("slow reply body = %q", slow.Body)
	}
}
