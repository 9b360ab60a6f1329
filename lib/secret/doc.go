// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data such
// as master passwords, derived encryption keys, and bearer tokens.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, guaranteeing secret material does not persist after release.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//
// [ReadFromPath] reads a secret (e.g. a master password supplied via
// --password-file) directly into a Buffer, stripping trailing
// newlines. [Zero] best-effort zeros an ordinary byte slice in place,
// for the brief windows where secret material must pass through
// unprotected memory (e.g. before it is copied into a Buffer).
//
// Access via [Buffer.Bytes] (slice into the mmap region) or
// [Buffer.String] (heap copy for API boundaries that require a
// string, such as Argon2id's password parameter). After Close, any
// access panics. Close is idempotent.
//
// Depends on golang.org/x/sys/unix. No other vault kernel packages.
package secret
