// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without printing an extra
// error message — the command is expected to have already written
// its own output (e.g. "vault run" passes through the child process's
// exit code this way; a ToolError such as "vault get" on a missing key
// is instead printed by main() as "error: ..." and exits 3 via
// NotFound).
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit code %d", e.Code) }

// ExitCode returns the exit code. main() checks for this interface
// on returned errors to distinguish a handled non-zero exit from an
// unexpected error that should be printed.
func (e *ExitError) ExitCode() int { return e.Code }
