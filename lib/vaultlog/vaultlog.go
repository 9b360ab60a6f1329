// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package vaultlog records an encrypted, capped audit trail of access
// and lifecycle events for the vault kernel. Entries are masked before
// they are ever held in memory so a crash dump or swapped page cannot
// leak a secret value through the log.
package vaultlog

import (
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/vaultkeep/vaultkeep/lib/secret"
	"github.com/vaultkeep/vaultkeep/lib/vaultcrypto"
)

// MaxLogEntries bounds the in-memory/on-disk log; the oldest entries
// are dropped once this is exceeded.
const MaxLogEntries = 1000

// EventKind identifies the category of a recorded event.
type EventKind string

const (
	EventAccess EventKind = "access"
	EventApp    EventKind = "app"
	EventLock   EventKind = "lock"
)

// Entry is one masked, timestamped log record.
type Entry struct {
	Time    time.Time `json:"time"`
	Kind    EventKind `json:"kind"`
	Action  string    `json:"action"`
	Project string    `json:"project,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// Stats summarizes the current log contents.
type Stats struct {
	TotalEntries int
	ByKind       map[EventKind]int
	OldestEntry  *time.Time
	NewestEntry  *time.Time
}

// tokenPattern matches API-key-shaped tokens, e.g. "sk-XXXXXXXXXXXXXXXXXXXX".
// Masked keeping the first 6 characters (the "sk-" prefix plus a little
// more), so a log reader can still tell which integration a token
// belongs to without recovering the token itself.
var tokenPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9]{16,}\b`)

// blobPattern matches long opaque alphanumeric blobs (bearer tokens,
// hashes). Masked keeping the first 4 characters.
var blobPattern = regexp.MustCompile(`\b[A-Za-z0-9]{32,}\b`)

// keyValuePattern matches key=value or key:value pairs where the key
// name suggests a credential. The value is replaced outright with
// "***" — unlike the token/blob patterns, there is no safe prefix to
// keep when the key name itself already says "password" or "token".
var keyValuePattern = regexp.MustCompile(`(?i)\b(password|passwd|token|secret|apikey|api_key)(\s*[=:]\s*)\S+`)

// Mask scans text for substrings that look like secret material and
// replaces each match with a prefix-preserving redaction, using
// vaultcrypto.MaskSensitiveValue — the same keep-prefix masking the
// vault uses everywhere else it must show a redacted value.
func Mask(text string) string {
	text = tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		return vaultcrypto.MaskSensitiveValue(match, 6)
	})
	text = blobPattern.ReplaceAllStringFunc(text, func(match string) string {
		return vaultcrypto.MaskSensitiveValue(match, 4)
	})
	text = keyValuePattern.ReplaceAllString(text, "${1}${2}***")
	return text
}

// Log is an in-memory, mutex-serialized, capped audit log. Each record
// persists the full entry list as an encrypted envelope (logs.enc) —
// see persist.go — whenever an encryption key is on loan from
// lib/vault; Archive handles cold rollover of older entries into
// separate dated shards.
type Log struct {
	mu      sync.Mutex
	clk     clockNow
	entries []Entry

	key    *secret.Buffer
	path   string
	logger *slog.Logger
}

// clockNow is the minimal time source Log needs; satisfied by
// lib/clock.Clock and by time.Now directly.
type clockNow interface {
	Now() time.Time
}

// New creates an empty Log using clk as its time source.
func New(clk clockNow) *Log {
	return &Log{clk: clk}
}

func (l *Log) record(kind EventKind, action, project, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Time:    l.clk.Now(),
		Kind:    kind,
		Action:  action,
		Project: project,
		Detail:  Mask(detail),
	}
	l.entries = append(l.entries, entry)
	if len(l.entries) > MaxLogEntries {
		l.entries = l.entries[len(l.entries)-MaxLogEntries:]
	}
	l.persistLocked()
}

// LogAccess records a secret-access event (e.g. an approved getSecret
// call from a specific client).
func (l *Log) LogAccess(action, project, detail string) { l.record(EventAccess, action, project, detail) }

// LogApp records an application-level event unrelated to a specific
// project (e.g. server start/stop, license check).
func (l *Log) LogApp(action, detail string) { l.record(EventApp, action, "", detail) }

// LogLock records a lock/unlock lifecycle transition.
func (l *Log) LogLock(action, detail string) { l.record(EventLock, action, "", detail) }

// Entries returns a snapshot of all current log entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Filtered returns entries matching kind (if non-empty) and project
// (if non-empty), oldest first.
func (l *Log) Filtered(kind EventKind, project string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, entry := range l.entries {
		if kind != "" && entry.Kind != kind {
			continue
		}
		if project != "" && entry.Project != project {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Stats computes summary statistics over the current log.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{TotalEntries: len(l.entries), ByKind: map[EventKind]int{}}
	for i, entry := range l.entries {
		stats.ByKind[entry.Kind]++
		if i == 0 {
			oldest := entry.Time
			stats.OldestEntry = &oldest
		}
		newest := entry.Time
		stats.NewestEntry = &newest
	}
	return stats
}

// Clear removes all entries and, if a persist path is configured,
// deletes logs.enc from disk.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			l.loggerLocked().Warn("vaultlog: removing log file failed", "error", err)
		}
	}
}

// Snapshot atomically drains and returns all current entries, leaving
// the log empty.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.entries
	l.entries = nil
	l.persistLocked()
	return out
}

// extractOlderThan splits the log at cutoff, returning entries with a
// timestamp strictly before it and leaving entries at or after it in
// place. Used by Archive to roll older entries into cold storage while
// the recent tail stays live (and persisted to logs.enc).
func (l *Log) extractOlderThan(cutoff time.Time) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var older, kept []Entry
	for _, entry := range l.entries {
		if entry.Time.Before(cutoff) {
			older = append(older, entry)
		} else {
			kept = append(kept, entry)
		}
	}
	if len(older) == 0 {
		return nil
	}
	l.entries = kept
	l.persistLocked()
	return older
}
