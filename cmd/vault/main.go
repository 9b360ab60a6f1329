// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Vault is the command-line client for a running vault-daemon. It
// discovers the daemon's loopback port and bearer token through the
// handshake file and talks to it over the access server's JSON action
// protocol — it never touches vault.enc directly.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/vaultkeep/vaultkeep/cmd/vault/cli"
	"github.com/vaultkeep/vaultkeep/lib/config"
	"github.com/vaultkeep/vaultkeep/lib/handshake"
	"github.com/vaultkeep/vaultkeep/lib/netutil"
	"github.com/vaultkeep/vaultkeep/lib/version"
)

func main() {
	if err := run(); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			if _, isExitError := err.(*cli.ExitError); !isExitError {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("vault %s\n", version.Info())
		return nil
	}

	if len(os.Args) < 2 {
		printHelp()
		return &cli.ExitError{Code: 2}
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "help", "-h", "--help":
		printHelp()
		return nil
	case "status":
		return runStatus(args)
	case "list":
		return runList(args)
	case "get":
		return runGet(args)
	case "set":
		return runSet(args)
	case "history":
		return runHistory(args)
	case "run":
		return runRun(args)
	default:
		printHelp()
		return cli.Validation("unknown command: %s", command)
	}
}

func printHelp() {
	fmt.Fprint(os.Stderr, `vault — command-line client for the vault daemon

Usage:
  vault status
  vault list [project]
  vault get <project> <key>
  vault set <project> <key> <value>
  vault history <project> <key>
  vault run --project=<project> -- <command> [args...]
  vault help

The daemon must already be running (see vault-daemon). This client
discovers it through the handshake file written alongside the vault
data directory.
`)
}

// client bundles the pieces needed to talk to a running daemon: its
// base URL and bearer token, read from the handshake file.
type client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// dial loads the vault's configuration, reads the handshake file, and
// verifies the daemon process is actually still alive before
// returning a usable client.
func dial() (*client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cli.Validation("%v", err)
	}

	file, err := handshake.Read(cfg.Paths.Root)
	if err != nil {
		return nil, cli.Unavailable("vault daemon is not running (no handshake file at %s): %w", cfg.Paths.Root, err)
	}
	if !file.IsAlive() {
		return nil, cli.Unavailable("vault daemon handshake file is stale (pid %d is not running); restart vault-daemon", file.PID)
	}

	return &client{
		baseURL:    fmt.Sprintf("http://%s:%d/", file.Host, file.Port),
		authToken:  file.AuthToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// actionResponse mirrors lib/accessserver's wire response shape.
type actionResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// call sends an action request and decodes the response's Data field
// into result (which may be nil if the caller doesn't need it).
func (c *client) call(action string, request map[string]any, result any) error {
	request["action"] = action

	body, err := json.Marshal(request)
	if err != nil {
		return cli.Internal("encoding request: %w", err)
	}

	httpRequest, err := http.NewRequest(http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return cli.Internal("building request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+c.authToken)

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return cli.Unavailable("contacting vault daemon: %w", err)
	}
	defer httpResponse.Body.Close()

	var response actionResponse
	if err := netutil.DecodeResponse(httpResponse.Body, &response); err != nil {
		return cli.Internal("decoding response: %w", err)
	}

	if !response.Success {
		// The daemon's transport layer (auth, method, size, unexpected
		// failure) reports through the HTTP status; upstream vault and
		// approval outcomes (not found, locked, denied, ...) always
		// ride back as HTTP 200 with only a human-readable message, so
		// they're categorized by content instead.
		switch httpResponse.StatusCode {
		case http.StatusUnauthorized:
			return cli.Forbidden("%s", response.Error)
		case http.StatusOK:
			return categorizeActionError(response.Error)
		default:
			return cli.Internal("%s", response.Error)
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := json.Unmarshal(response.Data, result); err != nil {
			return cli.Internal("decoding response data: %w", err)
		}
	}
	return nil
}

// categorizeActionError picks an exit-code category for an upstream
// vault/approval failure from its message text, since the wire
// contract carries only a human-readable string for these, not a
// machine-readable kind.
func categorizeActionError(message string) *cli.ToolError {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "access denied"):
		return cli.Forbidden("%s", message)
	case strings.Contains(lower, "not found"):
		return cli.NotFound("%s", message)
	case strings.Contains(lower, "locked"), strings.Contains(lower, "not initialized"):
		return cli.Unavailable("%s", message)
	default:
		return cli.Validation("%s", message)
	}
}

func runStatus(args []string) error {
	c, err := dial()
	if err != nil {
		return err
	}
	var status struct {
		IsUnlocked bool   `json:"isUnlocked"`
		Version    string `json:"version"`
	}
	if err := c.call("status", map[string]any{}, &status); err != nil {
		return err
	}
	if status.IsUnlocked {
		fmt.Printf("vault: unlocked (daemon %s)\n", status.Version)
	} else {
		fmt.Printf("vault: locked (daemon %s)\n", status.Version)
	}
	return nil
}

func runList(args []string) error {
	c, err := dial()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		var projects []struct {
			Name        string `json:"name"`
			SecretCount int    `json:"secretCount"`
		}
		if err := c.call("listProjects", map[string]any{}, &projects); err != nil {
			return err
		}
		for _, project := range projects {
			fmt.Printf("%s (%d secrets)\n", project.Name, project.SecretCount)
		}
		return nil
	}

	var keys []string
	if err := c.call("listSecretKeys", map[string]any{"project": args[0]}, &keys); err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Println(key)
	}
	return nil
}

func runGet(args []string) error {
	if len(args) != 2 {
		return cli.Validation("usage: vault get <project> <key>")
	}
	c, err := dial()
	if err != nil {
		return err
	}

	var view struct {
		Value string `json:"value"`
	}
	if err := c.call("getSecret", map[string]any{"project": args[0], "key": args[1]}, &view); err != nil {
		return err
	}
	fmt.Println(view.Value)
	return nil
}

func runSet(args []string) error {
	if len(args) != 3 {
		return cli.Validation("usage: vault set <project> <key> <value>")
	}
	c, err := dial()
	if err != nil {
		return err
	}
	return c.call("setSecret", map[string]any{
		"project": args[0], "key": args[1], "value": args[2],
	}, nil)
}

func runHistory(args []string) error {
	if len(args) != 2 {
		return cli.Validation("usage: vault history <project> <key>")
	}
	c, err := dial()
	if err != nil {
		return err
	}

	var history struct {
		TotalVersions int `json:"totalVersions"`
		History       []struct {
			Value     string    `json:"value"`
			ChangedAt time.Time `json:"changedAt"`
		} `json:"history"`
	}
	if err := c.call("getSecretHistory", map[string]any{"project": args[0], "key": args[1]}, &history); err != nil {
		return err
	}
	for i, entry := range history.History {
		fmt.Printf("[%d] %s  %s\n", i, entry.ChangedAt.Format(time.RFC3339), entry.Value)
	}
	return nil
}

// runRun injects a project's secrets into a child process's
// environment and execs it, for scripts that expect plain environment
// variables rather than daemon access.
func runRun(args []string) error {
	var project string
	flagSet := pflag.NewFlagSet("vault run", pflag.ContinueOnError)
	flagSet.StringVar(&project, "project", "", "project whose secrets to inject (required)")
	if err := flagSet.Parse(args); err != nil {
		return cli.Validation("%v", err)
	}
	if project == "" {
		return cli.Validation("--project is required")
	}

	command := flagSet.Args()
	if len(command) == 0 {
		return cli.Validation("usage: vault run --project=<project> -- <command> [args...]")
	}

	c, err := dial()
	if err != nil {
		return err
	}

	var secrets map[string]struct {
		Value string `json:"value"`
	}
	if err := c.call("getAllSecrets", map[string]any{"project": project}, &secrets); err != nil {
		return err
	}

	binaryPath, err := exec.LookPath(command[0])
	if err != nil {
		return cli.Validation("%s: %w", command[0], err)
	}

	env := os.Environ()
	for key, secret := range secrets {
		env = append(env, fmt.Sprintf("%s=%s", key, secret.Value))
	}

	childCommand := exec.Command(binaryPath, command[1:]...)
	childCommand.Env = env
	childCommand.Stdin = os.Stdin
	childCommand.Stdout = os.Stdout
	childCommand.Stderr = os.Stderr
	childCommand.Dir, _ = filepath.Abs(".")

	if err := childCommand.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &cli.ExitError{Code: exitErr.ExitCode()}
		}
		return cli.Internal("running %s: %w", command[0], err)
	}
	return nil
}
