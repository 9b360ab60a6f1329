// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides shared HTTP server scaffolding for the
// vault kernel's network-facing components.
//
// HTTPServer manages listener lifecycle and graceful shutdown for a
// TCP-bound http.Handler: bind, signal readiness, serve until the
// context is cancelled, then drain in-flight requests within a
// shutdown timeout. The vault's loopback access server binds this to
// an OS-assigned ephemeral port and resolves the actual port via
// Addr() before publishing the handshake file.
//
// Callers provide the http.Handler — bearer authentication,
// loopback-origin CORS, and action dispatch live in lib/accessserver,
// not in this package.
package service
