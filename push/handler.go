// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxRequestBodySize caps forward-request bodies. Command payloads
// are small; anything larger is a mistake or abuse.
const maxRequestBodySize = 64 * 1024

// Handler is the broker's HTTP API: list connected workers and
// forward a request to one of them, waiting synchronously for the
// reply.
type Handler struct {
	broker *Broker
	logger *slog.Logger
}

// NewHandler creates the broker HTTP handler.
func NewHandler(broker *Broker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{broker: broker, logger: logger}
}

// Routes returns the broker API routes.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/workers", h.handleListWorkers)
	mux.HandleFunc("POST /api/v1/workers/{id}/request", h.handleForward)
	return mux
}

func (h *Handler) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"workers": h.broker.Registry().Workers(),
	})
}

// forwardRequest is the body of POST /api/v1/workers/{id}/request.
type forwardRequest struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (h *Handler) handleForward(w http.ResponseWriter, r *http.Request) {
	workerID := r.PathValue("id")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "reading request body")
		return
	}
	var request forwardRequest
	if err := json.Unmarshal(body, &request); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if request.Action == "" {
		h.writeError(w, http.StatusBadRequest, "action is required")
		return
	}

	reply, err := h.broker.Forward(r.Context(), workerID, request.Action, request.Payload)
	switch {
	case errors.Is(err, ErrWorkerNotConnected):
		h.writeError(w, http.StatusBadGateway, fmt.Sprintf("worker %q is not connected", workerID))
		return
	case errors.Is(err, ErrReplyTimeout):
		h.writeError(w, http.StatusGatewayTimeout, fmt.Sprintf("worker %q did not reply in time", workerID))
		return
	case err != nil:
		h.logger.Error("forwarding request", "worker", workerID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"worker_id":   reply.WorkerID,
		"status_code": reply.StatusCode,
		"response":    reply.Body,
		"error":       reply.Error,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encoding response body", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
