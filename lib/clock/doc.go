// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of calling
// time.Now, time.After, time.NewTicker, time.AfterFunc, or time.Sleep
// directly. In production, Real() provides the standard library
// behavior. In tests, Fake() provides a deterministic clock that
// advances only when Advance is called.
//
// # Wiring Pattern
//
// The vault store and the audit log both take a Clock rather than
// calling time.Now directly, so the ordering of a version history or
// an audit trail can be pinned in tests:
//
//	store := vault.New(root, clock.Real(), logger)
//	log := vaultlog.New(clock.Real())
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	store := vault.New(root, c, logger)
//	// ... a mutation schedules the debounced save ...
//	c.WaitForTimers(1)            // the save timer is registered
//	c.Advance(vault.SaveDebounce) // fire the save deterministically
//
// # FakeClock Synchronization
//
// When a goroutine calls Sleep, After, NewTicker, or AfterFunc on a
// FakeClock, it registers a pending timer. Use WaitForTimers to block
// until a specific number of timers are registered before calling
// Advance, eliminating the race between timer registration and time
// advancement that plagues tests built on real time.Sleep calls.
package clock
