// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
)

// ReadFromPath reads a master password from a file path, or from stdin
// if path is "-". It backs --password-file, the non-interactive
// alternative to the terminal prompt used by scripted vault-daemon
// startups. The returned buffer is mmap-backed (locked into RAM,
// excluded from core dumps) and must be closed by the caller.
// Leading/trailing whitespace — most commonly the trailing newline a
// shell or editor appends — is trimmed before storing. Returns an
// error if the password is empty after trimming.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte

	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			return nil, fmt.Errorf("password is empty")
		}
		data = scanner.Bytes()
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("password is empty")
	}

	buffer, err := NewFromBytes(trimmed)
	// trimmed aliases data; Zero covers whatever NewFromBytes didn't
	// already wipe, including the whitespace prefix/suffix.
	Zero(data)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}
