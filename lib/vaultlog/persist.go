// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package vaultlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vaultkeep/vaultkeep/lib/secret"
	"github.com/vaultkeep/vaultkeep/lib/vaultcrypto"
)

const logFileMode = 0o600

// SetPersistPath configures where Persist and Load read and write the
// encrypted log envelope (logs.enc). Must be called before Load; safe
// to call again if the vault's root directory ever changes.
func (l *Log) SetPersistPath(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.path = path
}

// SetLogger installs the *slog.Logger used to report dropped writes
// when no encryption key is set. Defaults to slog.Default().
func (l *Log) SetLogger(logger *slog.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = logger
}

// SetEncryptionKey loans key to the Log for the duration it is
// unlocked. The key is borrowed, not owned — the Log never closes it.
// Satisfies lib/vault.AuditKeyObserver.
func (l *Log) SetEncryptionKey(key *secret.Buffer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.key = key
}

// ClearEncryptionKey drops the Log's reference to the loaned key
// without closing it — the vault owns the key's lifetime and closes
// it separately. Called by the vault before it wipes its own copy, so
// no pointer to a closed Buffer survives a lock. Satisfies
// lib/vault.AuditKeyObserver.
func (l *Log) ClearEncryptionKey() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.key = nil
}

// persistLocked writes the current entries as an encrypted envelope to
// l.path. Must be called with l.mu held. A missing key or path drops
// the write with a warning rather than failing the caller — matching
// record()'s "never disturb the caller" policy for logger I/O.
func (l *Log) persistLocked() {
	if l.key == nil || l.path == "" {
		l.loggerLocked().Warn("vaultlog: log write dropped", "key_set", l.key != nil, "path_set", l.path != "")
		return
	}
	envelope, err := vaultcrypto.EncryptJSON(l.entries, l.key)
	if err != nil {
		l.loggerLocked().Warn("vaultlog: encrypting log envelope failed", "error", err)
		return
	}
	if err := writeFileAtomic(l.path, envelope); err != nil {
		l.loggerLocked().Warn("vaultlog: writing log envelope failed", "error", err)
	}
}

// Persist forces an immediate encrypted write of the current entries,
// for callers (e.g. shutdown) that want persistence to have completed
// before proceeding rather than waiting for the next record() call.
// No-op, without error, if no key or path is set.
func (l *Log) Persist() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.persistLocked()
}

// Load reads and decrypts the encrypted envelope at l.path (set via
// SetPersistPath) into the log's entries, replacing whatever is
// currently held. If no key is set, or the file does not exist yet,
// Load leaves the log empty and returns nil — a brand-new vault has no
// log history, and a log can't be read back before it is unlocked.
func (l *Log) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.key == nil || l.path == "" {
		return nil
	}

	envelope, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("vaultlog: reading log envelope: %w", err)
	}

	var entries []Entry
	if err := vaultcrypto.DecryptJSON(envelope, l.key, &entries); err != nil {
		return fmt.Errorf("vaultlog: decrypting log envelope: %w", err)
	}
	l.entries = entries
	return nil
}

// loggerLocked returns the configured logger, defaulting to
// slog.Default() if none was installed. Must be called with l.mu held.
func (l *Log) loggerLocked() *slog.Logger {
	if l.logger == nil {
		return slog.Default()
	}
	return l.logger
}

// writeFileAtomic writes data to a temporary file in path's directory
// then renames it into place, so a crash mid-write never leaves a
// truncated logs.enc. Mirrors lib/vault/store.go's writeFileAtomic.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	temp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return err
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := os.Chmod(tempPath, logFileMode); err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}
