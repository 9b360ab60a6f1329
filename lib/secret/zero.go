// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package secret

// Zero overwrites every byte of data with the zero value in place.
// Used to scrub heap-allocated copies of secret material (e.g. a
// password read into an ordinary []byte before being copied into a
// guarded Buffer) that the garbage collector would otherwise leave
// lingering in memory until reclaimed.
func Zero(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
