// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package vaultlog

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// shardDomainKey separates archive-shard digests from any other BLAKE3
// keyed hash domain the vault might introduce later. Fixed constant:
// changing it invalidates every digest sidecar already on disk.
var shardDomainKey = [32]byte{
	'v', 'a', 'u', 'l', 't', 'k', 'e', 'e', 'p', '.', 'v', 'a', 'u', 'l', 't', 'l',
	'o', 'g', '.', 'a', 'r', 'c', 'h', 'i', 'v', 'e', '-', 's', 'h', 'a', 'r', 'd',
}

// shardDigest computes a keyed BLAKE3 digest over a shard's compressed
// bytes, for detecting accidental corruption or truncation of an
// archived audit shard at read time. It is not a substitute for the
// vault's own AEAD-protected contents: a party with write access to
// the archive directory can recompute the sidecar as easily as the
// shard itself, so this guards against disk-level bit rot and partial
// writes, not a malicious operator.
func shardDigest(compressed []byte) string {
	hasher, err := blake3.NewKeyed(shardDomainKey[:])
	if err != nil {
		panic("vaultlog: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(compressed)
	return hex.EncodeToString(hasher.Sum(nil))
}

// archiveEncoder and archiveDecoder are reused across calls; both
// types are safe for concurrent use.
var (
	archiveEncoder *zstd.Encoder
	archiveDecoder *zstd.Decoder
)

func init() {
	var err error
	archiveEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("vaultlog: zstd encoder initialization failed: " + err.Error())
	}
	archiveDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("vaultlog: zstd decoder initialization failed: " + err.Error())
	}
}

const archiveFileMode = 0o600

// shardFileName returns the archive file name for the day containing
// when, e.g. "2026-08-06.log.zst".
func shardFileName(when time.Time) string {
	return when.UTC().Format("2006-01-02") + ".log.zst"
}

// shardDigestFileName returns the digest sidecar path for a shard
// file, e.g. "2026-08-06.log.zst.blake3".
func shardDigestFileName(when time.Time) string {
	return shardFileName(when) + ".blake3"
}

// DefaultDaysToKeep is the default retention window for entries left
// in the live, logs.enc-backed log after Archive runs.
const DefaultDaysToKeep = 30

// Archive rolls entries older than daysToKeep (relative to now) out of
// the live log and into zstd-compressed, newline-delimited-JSON shards
// on disk, one shard per UTC day. Entries within the retention window
// are left in place in the live log. Intended to be called
// periodically so the live, encrypted log never carries unbounded
// history.
func Archive(l *Log, dir string, now time.Time, daysToKeep int) error {
	cutoff := now.AddDate(0, 0, -daysToKeep)
	older := l.extractOlderThan(cutoff)
	if len(older) == 0 {
		return nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("vaultlog: creating archive directory: %w", err)
	}

	byDay := make(map[string][]Entry)
	for _, entry := range older {
		day := entry.Time
		if day.IsZero() {
			day = now
		}
		name := shardFileName(day)
		byDay[name] = append(byDay[name], entry)
	}

	for name, entries := range byDay {
		if err := writeShard(dir, name, entries); err != nil {
			return err
		}
	}
	return nil
}

// writeShard appends entries to the named shard (creating it if
// absent) and refreshes its digest sidecar.
func writeShard(dir, name string, entries []Entry) error {
	var raw []byte
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("vaultlog: marshaling entry: %w", err)
		}
		raw = append(raw, line...)
		raw = append(raw, '\n')
	}

	compressed := archiveEncoder.EncodeAll(raw, nil)
	path := filepath.Join(dir, name)

	// Shards for the same day accumulate: append to any existing
	// shard's decompressed contents rather than overwriting it, since
	// Archive may run more than once per day.
	if existing, err := os.ReadFile(path); err == nil {
		decoded, decodeErr := archiveDecoder.DecodeAll(existing, nil)
		if decodeErr == nil {
			raw = append(decoded, raw...)
			compressed = archiveEncoder.EncodeAll(raw, nil)
		}
	}

	if err := os.WriteFile(path, compressed, archiveFileMode); err != nil {
		return fmt.Errorf("vaultlog: writing archive shard: %w", err)
	}
	digestPath := filepath.Join(dir, name+".blake3")
	if err := os.WriteFile(digestPath, []byte(shardDigest(compressed)), archiveFileMode); err != nil {
		return fmt.Errorf("vaultlog: writing archive shard digest: %w", err)
	}
	return nil
}

// ReadShard decompresses and parses a single archive shard, verifying
// its digest sidecar first if one is present. A missing sidecar is
// tolerated (older shards predate it); a mismatched one means the
// shard was truncated or corrupted since it was written.
func ReadShard(dir string, when time.Time) ([]Entry, error) {
	path := filepath.Join(dir, shardFileName(when))
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vaultlog: reading shard: %w", err)
	}

	digestPath := filepath.Join(dir, shardDigestFileName(when))
	if wantDigest, err := os.ReadFile(digestPath); err == nil {
		if got := shardDigest(compressed); got != string(wantDigest) {
			return nil, fmt.Errorf("vaultlog: archive shard %s failed digest verification (corrupt or truncated)", shardFileName(when))
		}
	}

	raw, err := archiveDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("vaultlog: decompressing shard: %w", err)
	}

	var entries []Entry
	start := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\n' {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw[start:i], &entry); err != nil {
			return nil, fmt.Errorf("vaultlog: parsing shard entry: %w", err)
		}
		entries = append(entries, entry)
		start = i + 1
	}
	return entries, nil
}
