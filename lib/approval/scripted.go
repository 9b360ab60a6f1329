// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"sync"
)

// Scripted is a Broker driven by a preloaded queue of decisions,
// letting tests exercise both the approve and deny paths of the
// access server without a terminal attached.
type Scripted struct {
	mu        sync.Mutex
	decisions []Decision
	fallback  Decision
	Requests  []Request
}

// NewScripted creates a Scripted broker that returns each of
// decisions in order, one per RequestApproval call, then falls back
// to denying every subsequent request once the queue is exhausted.
func NewScripted(decisions ...Decision) *Scripted {
	return &Scripted{
		decisions: append([]Decision(nil), decisions...),
		fallback:  Decision{Approved: false, Reason: "scripted broker exhausted"},
	}
}

func (s *Scripted) RequestApproval(ctx context.Context, request Request) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, request)
	if len(s.decisions) == 0 {
		return s.fallback, nil
	}
	next := s.decisions[0]
	s.decisions = s.decisions[1:]
	return next, nil
}
