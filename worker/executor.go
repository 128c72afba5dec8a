// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stagelink/stagelink/relay"
)

// Result is the outcome of executing one command against the target.
type Result struct {
	// StatusCode is the target's HTTP status, or a synthetic 500 when
	// no response was obtained (timeout, connection failure, local
	// validation failure).
	StatusCode int

	// Body is the target's response body, or a short failure
	// description when no response was obtained.
	Body string
}

// Executor builds and sends requests to the local target application.
type Executor struct {
	targetURL string
	client    *Client
	logger    *slog.Logger
}

// NewExecutor creates an executor for the target at baseURL (e.g.
// "http://localhost:1025").
func NewExecutor(baseURL string, client *Client, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		targetURL: strings.TrimRight(baseURL, "/"),
		client:    client,
		logger:    logger,
	}
}

// Execute runs one command against the target. It never returns an
// error: every failure mode produces a Result carrying a synthetic
// failure status, so the poller always has something to report.
func (e *Executor) Execute(ctx context.Context, command relay.Command) Result {
	if command.Endpoint == relay.EndpointTrigger {
		return e.executeTrigger(ctx, command)
	}
	return e.executeGeneric(ctx, command)
}

// executeTrigger handles the specialized message-trigger endpoint. The
// payload is validated locally before any request is sent; a missing
// field is a local validation failure, logged, no request sent.
func (e *Executor) executeTrigger(ctx context.Context, command relay.Command) Result {
	payload, err := command.TriggerPayload()
	if err != nil {
		e.logger.Error("trigger command rejected", "id", command.ID, "error", err)
		return Result{StatusCode: http.StatusInternalServerError, Body: err.Error()}
	}

	// The target expects a raw JSON array of message token updates.
	body, err := json.Marshal([]map[string]any{
		{
			"name": payload.MessageToken,
			"text": map[string]string{"text": payload.MessageContent},
		},
	})
	if err != nil {
		e.logger.Error("encoding trigger payload", "id", command.ID, "error", err)
		return Result{StatusCode: http.StatusInternalServerError, Body: "encoding trigger payload failed"}
	}

	url := fmt.Sprintf("%s/v1/message/%s/trigger", e.targetURL, payload.MessageID)
	return e.send(ctx, command.ID, http.MethodPost, url, body)
}

// executeGeneric forwards a plain endpoint command. GET commands send
// no body; POST commands send the payload as JSON.
func (e *Executor) executeGeneric(ctx context.Context, command relay.Command) Result {
	url := fmt.Sprintf("%s/v1/%s", e.targetURL, strings.TrimLeft(command.Endpoint, "/"))

	var body []byte
	if command.Method == relay.MethodPost && command.Payload != nil {
		var err error
		body, err = json.Marshal(command.Payload)
		if err != nil {
			e.logger.Error("encoding command payload", "id", command.ID, "error", err)
			return Result{StatusCode: http.StatusInternalServerError, Body: "encoding payload failed"}
		}
	}

	return e.send(ctx, command.ID, string(command.Method), url, body)
}

// send performs the target request and converts the outcome into a
// Result. Timeouts and connection failures become a synthetic 500 with
// "No response", matching what the status report carries when the
// target never answered.
func (e *Executor) send(ctx context.Context, commandID, method, url string, body []byte) Result {
	status, responseBody, err := e.client.Do(ctx, method, url, body, nil)
	if err != nil {
		e.logger.Error("target request failed", "id", commandID, "url", url, "error", err)
		return Result{StatusCode: http.StatusInternalServerError, Body: "No response"}
	}

	e.logger.Info("command executed", "id", commandID, "url", url, "status", status)
	return Result{StatusCode: status, Body: string(responseBody)}
}

// ProbeVersion asks the target for its version info. Used as the
// startup online probe; the result is logged, not relayed.
func (e *Executor) ProbeVersion(ctx context.Context) (string, error) {
	status, body, err := e.client.Do(ctx, http.MethodGet, e.targetURL+"/v1/version", nil, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("target version probe returned %d", status)
	}
	return string(body), nil
}
