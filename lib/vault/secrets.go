// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"sort"
	"time"
)

// SecretView is a defensive, history-excluded view of a secret
// returned from normal reads — callers always see the structured
// shape, even when the on-disk form is legacy.
type SecretView struct {
	Value     string     `json:"value"`
	ExpiresAt *time.Time `json:"expiresAt"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func viewOf(secret *Secret) SecretView {
	return SecretView{
		Value:     secret.Value,
		ExpiresAt: secret.ExpiresAt,
		CreatedAt: secret.CreatedAt,
		UpdatedAt: secret.UpdatedAt,
	}
}

// GetSecrets returns a defensive-copy view of every secret in a
// project, history excluded. Fails with NotFound if the project does
// not exist.
func (s *Store) GetSecrets(projectName string) (map[string]SecretView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return nil, err
	}
	project, ok := s.doc.Projects[projectName]
	if !ok {
		return nil, newError(NotFound, "project %q not found", projectName)
	}

	views := make(map[string]SecretView, len(project.Secrets))
	for key, secret := range project.Secrets {
		views[key] = viewOf(secret)
	}
	return views, nil
}

// GetSecret returns a single secret's view. Fails with NotFound if
// the project or key does not exist.
func (s *Store) GetSecret(projectName, key string) (SecretView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return SecretView{}, err
	}
	secret, err := s.lookupSecretLocked(projectName, key)
	if err != nil {
		return SecretView{}, err
	}
	return viewOf(secret), nil
}

func (s *Store) lookupSecretLocked(projectName, key string) (*Secret, error) {
	project, ok := s.doc.Projects[projectName]
	if !ok {
		return nil, newError(NotFound, "project %q not found", projectName)
	}
	secret, ok := project.Secrets[key]
	if !ok {
		return nil, newError(NotFound, "secret %q not found in project %q", key, projectName)
	}
	return secret, nil
}

// SetSecret creates or updates a secret. An update pushes the
// previous (value, expiresAt) onto history only when the new values
// actually differ from the current ones; history is capped at
// MaxHistory, evicting from the tail. Fails with NotFound if the
// project does not exist.
func (s *Store) SetSecret(projectName, key, value string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	project, ok := s.doc.Projects[projectName]
	if !ok {
		return newError(NotFound, "project %q not found", projectName)
	}

	if s.setSecretLocked(project, key, value, expiresAt) {
		s.scheduleSaveLocked()
	}
	return nil
}

// setSecretLocked performs the create-or-update logic shared by
// SetSecret, SetSecrets, and RestoreSecretVersion. Returns true if
// the document was actually mutated.
func (s *Store) setSecretLocked(project *Project, key, value string, expiresAt *time.Time) bool {
	now := s.clk.Now()

	existing, ok := project.Secrets[key]
	if !ok {
		project.Secrets[key] = &Secret{
			Value:     value,
			ExpiresAt: expiresAt,
			CreatedAt: now,
			UpdatedAt: now,
			History:   []HistoryEntry{},
		}
		project.UpdatedAt = now
		return true
	}

	if existing.Value == value && equalExpiry(existing.ExpiresAt, expiresAt) {
		return false
	}

	entry := HistoryEntry{
		Value:     existing.Value,
		ExpiresAt: existing.ExpiresAt,
		ChangedAt: existing.UpdatedAt,
	}
	existing.History = append([]HistoryEntry{entry}, existing.History...)
	if len(existing.History) > MaxHistory {
		existing.History = existing.History[:MaxHistory]
	}

	existing.Value = value
	existing.ExpiresAt = expiresAt
	existing.UpdatedAt = now
	project.UpdatedAt = now
	return true
}

func equalExpiry(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// SetSecrets bulk-imports values into a project with expiresAt=nil
// for every key, skipping entries that are unchanged from the current
// value. Fails with NotFound if the project does not exist.
func (s *Store) SetSecrets(projectName string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	project, ok := s.doc.Projects[projectName]
	if !ok {
		return newError(NotFound, "project %q not found", projectName)
	}

	// Sort keys for deterministic history ordering across calls.
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	changed := false
	for _, key := range keys {
		if s.setSecretLocked(project, key, values[key], nil) {
			changed = true
		}
	}
	if changed {
		s.scheduleSaveLocked()
	}
	return nil
}

// DeleteSecret removes a secret and cascades its removal from
// favorites. Fails with NotFound if the project or key does not
// exist.
func (s *Store) DeleteSecret(projectName, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	if _, err := s.lookupSecretLocked(projectName, key); err != nil {
		return err
	}

	project := s.doc.Projects[projectName]
	delete(project.Secrets, key)
	s.removeSecretFromFavoritesLocked(projectName, key)
	s.scheduleSaveLocked()
	return nil
}

func (s *Store) removeSecretFromFavoritesLocked(projectName, key string) {
	keys, ok := s.doc.Favorites.Secrets[projectName]
	if !ok {
		return
	}
	filtered := keys[:0:0]
	for _, existing := range keys {
		if existing != key {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == 0 {
		delete(s.doc.Favorites.Secrets, projectName)
	} else {
		s.doc.Favorites.Secrets[projectName] = filtered
	}
}

// VersionView is one entry in a secret's version timeline: either the
// current value (IsCurrent true) or a prior value from history.
type VersionView struct {
	Value     string     `json:"value"`
	ExpiresAt *time.Time `json:"expiresAt"`
	ChangedAt time.Time  `json:"changedAt"`
	IsCurrent bool       `json:"isCurrent"`
}

// HistoryView is the result of GetSecretHistory.
type HistoryView struct {
	Current       VersionView   `json:"current"`
	History       []VersionView `json:"history"`
	TotalVersions int           `json:"totalVersions"`
}

// GetSecretHistory returns the full version timeline of a secret,
// current value first. Fails with NotFound if the project or key does
// not exist.
func (s *Store) GetSecretHistory(projectName, key string) (HistoryView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return HistoryView{}, err
	}
	secret, err := s.lookupSecretLocked(projectName, key)
	if err != nil {
		return HistoryView{}, err
	}

	history := make([]VersionView, len(secret.History))
	for i, entry := range secret.History {
		history[i] = VersionView{
			Value:     entry.Value,
			ExpiresAt: entry.ExpiresAt,
			ChangedAt: entry.ChangedAt,
		}
	}

	return HistoryView{
		Current: VersionView{
			Value:     secret.Value,
			ExpiresAt: secret.ExpiresAt,
			ChangedAt: secret.UpdatedAt,
			IsCurrent: true,
		},
		History:       history,
		TotalVersions: len(secret.History) + 1,
	}, nil
}

// RestoreSecretVersion makes history[index] the current value. This
// is implemented as an ordinary SetSecret call with the historical
// value and expiry — which itself records the value being replaced
// (the previous current value) as a new history entry. Fails with
// NotFound if the project or key does not exist, OutOfRange if index
// is invalid.
func (s *Store) RestoreSecretVersion(projectName, key string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	secret, err := s.lookupSecretLocked(projectName, key)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(secret.History) {
		return newError(OutOfRange, "history index %d out of range (0..%d)", index, len(secret.History)-1)
	}

	target := secret.History[index]
	project := s.doc.Projects[projectName]
	if s.setSecretLocked(project, key, target.Value, target.ExpiresAt) {
		s.scheduleSaveLocked()
	}
	return nil
}
