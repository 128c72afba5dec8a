// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/stagelink/stagelink/relay"
)

// Maximum request body size (64KB is plenty for presentation commands).
const maxRequestBodySize = 64 * 1024

// Handler handles HTTP requests to the gateway. It owns no state of
// its own; the queue and correlator are the shared stores.
type Handler struct {
	queue      *relay.CommandQueue
	correlator *relay.Correlator
	logger     *slog.Logger
}

// NewHandler creates a Handler backed by the given stores.
func NewHandler(queue *relay.CommandQueue, correlator *relay.Correlator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		queue:      queue,
		correlator: correlator,
		logger:     logger,
	}
}

// Routes returns the gateway mux with all /api/v1 routes registered.
// The caller composes middleware (API key check) over the returned
// handler.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1", h.handleStatus)
	mux.HandleFunc("GET /api/v1/{$}", h.handleStatus)
	mux.HandleFunc("POST /api/v1/command", h.handleEnqueue)
	mux.HandleFunc("GET /api/v1/commands", h.handleDrain)
	mux.HandleFunc("DELETE /api/v1/commands", h.handleClear)
	mux.HandleFunc("GET /api/v1/response/{id}", h.handleGetResponse)
	mux.HandleFunc("POST /api/v1/status", h.handleUpdateStatus)
	return mux
}

// statusUpdate is the body of POST /api/v1/status, reported by the
// worker after executing a command.
type statusUpdate struct {
	Command struct {
		ID string `json:"id"`
	} `json:"command"`
	StatusCode int    `json:"status_code"`
	Response   string `json:"response"`
}

// handleStatus is the health check. Echoes the caller's address and
// optional X-Client-Name header so a worker behind NAT can see what
// the gateway sees.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	clientIP := r.Header.Get("X-Header-IP")
	if clientIP == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		clientIP = host
	}
	clientName := r.Header.Get("X-Client-Name")
	if clientName == "" {
		clientName = "Unknown"
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"message":     "You are successfully connected to the relay gateway.",
		"client_ip":   clientIP,
		"client_name": clientName,
	})
}

// handleEnqueue adds a command to the queue and registers its id with
// the correlator so the submitter can poll for the response.
func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var command relay.Command
	if err := h.decodeBody(r, &command); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := h.queue.Enqueue(command)
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.correlator.Register(id)

	h.logger.Info("command queued", "id", id, "endpoint", command.Endpoint)
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "queued",
		"uuid":   id,
	})
}

// handleDrain atomically hands out and clears the pending list. This
// is the worker's fetch endpoint and the at-most-once delivery point.
func (h *Handler) handleDrain(w http.ResponseWriter, r *http.Request) {
	commands := h.queue.Drain()
	if commands == nil {
		commands = []relay.Command{}
	}
	h.logger.Debug("queue drained", "count", len(commands))
	h.writeJSON(w, http.StatusOK, commands)
}

// handleClear removes a single command when the body carries a uuid,
// or empties the queue when the body is absent or empty.
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("reading body: %w", err))
		return
	}

	if len(body) == 0 {
		h.queue.Clear()
		h.logger.Info("command queue cleared")
		h.writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully cleared all commands"})
		return
	}

	var request struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(body, &request); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("parsing body: %w", err))
		return
	}

	if request.UUID == "" {
		h.queue.Clear()
		h.logger.Info("command queue cleared")
		h.writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully cleared all commands"})
		return
	}

	if err := h.queue.RemoveByID(request.UUID); err != nil {
		h.storeError(w, err)
		return
	}
	h.logger.Info("command removed", "id", request.UUID)
	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Successfully removed command %s", request.UUID),
	})
}

// handleGetResponse reads the correlated response for a command id.
// 200 with the response when ready, 202 while pending, 404 when the
// id was never registered (or was evicted).
func (h *Handler) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	response, state := h.correlator.Read(id)
	switch state {
	case relay.StateReady:
		h.writeJSON(w, http.StatusOK, response)
	case relay.StatePending:
		h.logger.Debug("response not ready", "id", id)
		h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
	default:
		h.writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", relay.ErrUnknownCommand, id))
	}
}

// handleUpdateStatus stores the worker's execution result under the
// command id.
func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var update statusUpdate
	if err := h.decodeBody(r, &update); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if update.Command.ID == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: missing command.id", relay.ErrInvalidFormat))
		return
	}

	err := h.correlator.Update(update.Command.ID, relay.Response{
		StatusCode: update.StatusCode,
		Body:       update.Response,
	})
	if err != nil {
		h.storeError(w, err)
		return
	}

	h.logger.Info("status update received", "id", update.Command.ID, "status_code", update.StatusCode)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// decodeBody decodes a JSON request body into value, rejecting
// oversized and malformed bodies.
func (h *Handler) decodeBody(r *http.Request, value any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	if err := decoder.Decode(value); err != nil {
		return fmt.Errorf("%w: %v", relay.ErrInvalidFormat, err)
	}
	return nil
}

// storeError maps queue/correlator sentinel errors onto HTTP status
// codes. Unexpected errors become 500 and are logged with context.
func (h *Handler) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, relay.ErrInvalidFormat):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, relay.ErrNotFound), errors.Is(err, relay.ErrUnknownCommand):
		h.writeError(w, http.StatusNotFound, err)
	default:
		h.logger.Error("internal error", "error", err)
		h.writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
	}
}

// writeJSON encodes value as JSON into w with the given status.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes a structured JSON error body.
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
