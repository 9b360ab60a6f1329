// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package accessserver implements the loopback-only HTTP JSON action
// dispatcher that external clients (the CLI, local tooling) use to
// read and write vault contents without going through the interactive
// TUI.
package accessserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vaultkeep/vaultkeep/lib/approval"
	"github.com/vaultkeep/vaultkeep/lib/vault"
	"github.com/vaultkeep/vaultkeep/lib/vaultcrypto"
	"github.com/vaultkeep/vaultkeep/lib/vaultlog"
)

// maxRequestBodySize bounds a single action request body. Vault
// payloads (secret values, bulk imports) are small text; 1 MiB gives
// comfortable headroom without letting a client exhaust memory.
const maxRequestBodySize = 1 * 1024 * 1024

// Handler is the access server's http.Handler: bearer authentication,
// loopback-origin CORS, JSON action dispatch, and approval gating.
type Handler struct {
	store     *vault.Store
	broker    approval.Broker
	log       *vaultlog.Log
	authToken string
	version   string
	logger    *slog.Logger
}

// Config configures a Handler.
type Config struct {
	Store     *vault.Store
	Broker    approval.Broker
	Log       *vaultlog.Log
	AuthToken string
	Version   string
	Logger    *slog.Logger
}

// NewHandler creates a Handler. Panics if any required field is
// missing — a misconfigured access server must fail at startup, not
// serve requests with a nil dependency.
func NewHandler(config Config) *Handler {
	if config.Store == nil {
		panic("accessserver: Store is required")
	}
	if config.Broker == nil {
		panic("accessserver: Broker is required")
	}
	if config.Log == nil {
		panic("accessserver: Log is required")
	}
	if config.AuthToken == "" {
		panic("accessserver: AuthToken is required")
	}
	if config.Logger == nil {
		panic("accessserver: Logger is required")
	}
	return &Handler{
		store:     config.Store,
		broker:    config.Broker,
		log:       config.Log,
		authToken: config.AuthToken,
		version:   config.Version,
		logger:    config.Logger,
	}
}

// actionRequest is the dispatch envelope every POST body carries.
type actionRequest struct {
	Action      string            `json:"action"`
	Project     string            `json:"project,omitempty"`
	Key         string            `json:"key,omitempty"`
	Keys        []string          `json:"keys,omitempty"`
	Value       string            `json:"value,omitempty"`
	Values      map[string]string `json:"values,omitempty"`
	ExpiresAt   *time.Time        `json:"expiresAt,omitempty"`
	VersionIdx  int               `json:"versionIndex,omitempty"`
}

// actionResponse is the uniform JSON shape returned for every action.
type actionResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ServeHTTP authenticates, parses, and dispatches a single action
// request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.applyCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	if !h.authenticate(r) {
		h.logger.Warn("accessserver: rejected unauthenticated request", "remote_addr", r.RemoteAddr)
		http.Error(w, "", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	if len(body) > maxRequestBodySize {
		http.Error(w, "", http.StatusRequestEntityTooLarge)
		return
	}

	var request actionRequest
	if err := json.Unmarshal(body, &request); err != nil {
		h.writeJSON(w, http.StatusInternalServerError, actionResponse{Success: false, Error: "invalid JSON body"})
		return
	}

	h.dispatch(w, r, request)
}

// applyCORS restricts cross-origin access to the loopback interface:
// the vault's only legitimate browser-facing callers are local tools
// running on 127.0.0.1/localhost.
func (h *Handler) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if isLoopbackOrigin(origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	}
}

func isLoopbackOrigin(origin string) bool {
	switch {
	case origin == "":
		return false
	case origin == "http://127.0.0.1" || origin == "http://localhost":
		return true
	case hasAnyPrefix(origin, "http://127.0.0.1:", "https://127.0.0.1:"):
		return true
	case hasAnyPrefix(origin, "http://localhost:", "https://localhost:"):
		return true
	default:
		return false
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, prefix := range prefixes {
		if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// authenticate checks the bearer token using a constant-time
// comparison so response timing cannot be used to brute-force it.
func (h *Handler) authenticate(r *http.Request) bool {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	token := header[len(prefix):]
	return vaultcrypto.ConstantTimeEqual(token, h.authToken)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, response actionResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("accessserver: encoding response failed", "error", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, actionResponse{Success: false, Error: err.Error()})
}
