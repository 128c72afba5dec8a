// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
)

// apiKeyHeader is the shared-secret header checked on every route when
// the gateway is configured with a key.
const apiKeyHeader = "X-API-Key"

// RequireAPIKey wraps next with an exact-match check on the X-API-Key
// header. When key is empty, authentication is disabled and next is
// returned unchanged. A mismatched or absent header gets 401 and never
// reaches the queue or correlator.
//
// The comparison is constant-time so the key cannot be probed
// byte-by-byte through response timing.
func RequireAPIKey(key string, logger *slog.Logger, next http.Handler) http.Handler {
	if key == "" {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			logger.Warn("rejected request with bad API key",
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid or missing API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
