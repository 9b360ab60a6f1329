// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault implements the encrypted, password-protected store of
// projects and secrets at the heart of the vault: the Document model,
// the on-disk envelope format, and the Store that mediates all
// mutation and persistence.
package vault

import "time"

// MaxHistory bounds the number of prior values retained per secret.
// Older entries are evicted from the tail when a write would exceed
// it.
const MaxHistory = 50

// SchemaVersion is the current VaultDocument schema version. Bumping
// it is required whenever the KDF parameters or envelope format
// change in a way that is not backward compatible.
const SchemaVersion = "1.0.0"

// Document is the plaintext payload encrypted at rest as vault.enc.
type Document struct {
	Version   string             `json:"version"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Projects  map[string]*Project `json:"projects"`
	Favorites Favorites          `json:"favorites"`
}

// Favorites tracks user-starred projects and secrets.
type Favorites struct {
	Projects []string            `json:"projects"`
	Secrets  map[string][]string `json:"secrets"`
}

// Project is a named grouping of secrets.
type Project struct {
	Name      string             `json:"name"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Secrets   map[string]*Secret `json:"secrets"`
}

// Secret is a name's current value, optional expiry, and bounded
// mutation history (index 0 = most recent prior value).
type Secret struct {
	Value     string          `json:"value"`
	ExpiresAt *time.Time      `json:"expiresAt"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	History   []HistoryEntry  `json:"history"`
}

// HistoryEntry captures a prior value of a secret.
type HistoryEntry struct {
	Value     string     `json:"value"`
	ExpiresAt *time.Time `json:"expiresAt"`
	ChangedAt time.Time  `json:"changedAt"`
}

// newEmptyDocument builds a freshly initialized, empty document for
// Setup.
func newEmptyDocument(now time.Time) *Document {
	return &Document{
		Version:   SchemaVersion,
		CreatedAt: now,
		UpdatedAt: now,
		Projects:  make(map[string]*Project),
		Favorites: Favorites{
			Projects: []string{},
			Secrets:  make(map[string][]string),
		},
	}
}

// normalize repairs structural drift after decoding: missing
// Favorites maps, favorites entries pointing at missing
// projects/keys, and duplicate favorite entries. It does not touch
// legacy string-form secrets — those are upgraded lazily on the next
// write that touches them.
func (d *Document) normalize() {
	if d.Projects == nil {
		d.Projects = make(map[string]*Project)
	}
	if d.Favorites.Secrets == nil {
		d.Favorites.Secrets = make(map[string][]string)
	}

	d.Favorites.Projects = dedupeExisting(d.Favorites.Projects, func(name string) bool {
		_, ok := d.Projects[name]
		return ok
	})

	for projectName, keys := range d.Favorites.Secrets {
		project, ok := d.Projects[projectName]
		if !ok {
			delete(d.Favorites.Secrets, projectName)
			continue
		}
		filtered := dedupeExisting(keys, func(key string) bool {
			_, ok := project.Secrets[key]
			return ok
		})
		if len(filtered) == 0 {
			delete(d.Favorites.Secrets, projectName)
		} else {
			d.Favorites.Secrets[projectName] = filtered
		}
	}

	for _, project := range d.Projects {
		if project.Secrets == nil {
			project.Secrets = make(map[string]*Secret)
		}
	}
}

// dedupeExisting returns items deduplicated and filtered to those for
// which exists returns true, preserving first-seen order.
func dedupeExisting(items []string, exists func(string) bool) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] || !exists(item) {
			continue
		}
		seen[item] = true
		result = append(result, item)
	}
	return result
}
