// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package handshake implements the discoverable rendezvous file the
// loopback access server publishes so external processes (the CLI
// client) can find its port and bearer token without a fixed,
// well-known port number.
package handshake

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// FileName is the handshake file's name within the vault directory.
const FileName = "server-info.json"

const fileMode = 0o600

// File is the on-disk handshake rendezvous: host, port, bearer token,
// and the publishing process's pid.
type File struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	AuthToken string `json:"authToken"`
	PID       int    `json:"pid"`
}

// Path returns the handshake file's path within dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Write publishes the handshake file at 0600. Called once the access
// server's listener is bound and its bearer token is generated.
func Write(dir string, file File) error {
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("handshake: marshaling: %w", err)
	}
	if err := os.WriteFile(Path(dir), data, fileMode); err != nil {
		return fmt.Errorf("handshake: writing: %w", err)
	}
	return nil
}

// Remove deletes the handshake file. Called on graceful server
// shutdown. Not an error if the file is already gone.
func Remove(dir string) error {
	if err := os.Remove(Path(dir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("handshake: removing: %w", err)
	}
	return nil
}

// Read loads and parses the handshake file. Consumers MUST call
// IsAlive on the result before treating it as valid — a stale file
// from a previous, now-dead process must be treated as "server not
// running".
func Read(dir string) (*File, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return nil, fmt.Errorf("handshake: reading: %w", err)
	}
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("handshake: parsing: %w", err)
	}
	return &file, nil
}

// IsAlive reports whether the process identified by the handshake
// file's pid is still running. A stale handshake file (process
// exited without cleaning up, e.g. SIGKILL) must not be trusted.
func (f *File) IsAlive() bool {
	if f.PID <= 0 {
		return false
	}
	// Signal 0 performs no actual signal delivery; it only checks
	// whether the process exists and is signalable by this user.
	err := syscall.Kill(f.PID, syscall.Signal(0))
	return err == nil
}
