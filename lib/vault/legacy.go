// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"encoding/json"
	"time"
)

// secretShape mirrors Secret's field layout for structured
// unmarshaling without recursing into Secret's own UnmarshalJSON.
type secretShape struct {
	Value     string         `json:"value"`
	ExpiresAt *time.Time     `json:"expiresAt"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	History   []HistoryEntry `json:"history"`
}

// UnmarshalJSON accepts both the structured Secret shape and a legacy
// bare-string shape: old vault files may store a secret as a plain
// JSON string rather than an object. Legacy values are accepted on
// read and upgraded to the
// structured form lazily, on the next write that touches them — never
// mass-upgraded on unlock, which would slow down a read-only unlock.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var shape secretShape
	if err := json.Unmarshal(data, &shape); err == nil {
		s.Value = shape.Value
		s.ExpiresAt = shape.ExpiresAt
		s.CreatedAt = shape.CreatedAt
		s.UpdatedAt = shape.UpdatedAt
		s.History = shape.History
		return nil
	}

	var legacyValue string
	if err := json.Unmarshal(data, &legacyValue); err != nil {
		return err
	}
	s.Value = legacyValue
	s.ExpiresAt = nil
	s.History = nil
	return nil
}

// MarshalJSON always writes the structured shape — legacy bare-string
// secrets are only ever produced by decoding an old file; once this
// process writes the document back out, they are upgraded for good.
func (s Secret) MarshalJSON() ([]byte, error) {
	history := s.History
	if history == nil {
		history = []HistoryEntry{}
	}
	return json.Marshal(secretShape{
		Value:     s.Value,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		History:   history,
	})
}
