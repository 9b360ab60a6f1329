// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Vault-daemon is the long-running, loopback-only process that holds
// the unlocked vault in memory and serves it to local clients over
// HTTP.
//
// On startup:
//  1. Loads configuration (VAULTKEEP_CONFIG) and checks the license.
//  2. Reads the master password (prompted on the terminal, or from
//     --password-file for scripted environments) and unlocks, or
//     initializes, the vault.
//  3. Starts the loopback access server on an OS-assigned port and
//     publishes the handshake file so the CLI client can find it.
//  4. Runs an idle-lock timer: if no access-server request arrives
//     within the configured timeout, the vault is locked in place
//     (encryption key discarded) until the daemon is restarted.
//  5. On SIGINT/SIGTERM, flushes the audit log archive, locks the
//     vault, removes the handshake file, and exits.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/vaultkeep/vaultkeep/lib/accessserver"
	"github.com/vaultkeep/vaultkeep/lib/approval"
	"github.com/vaultkeep/vaultkeep/lib/clock"
	"github.com/vaultkeep/vaultkeep/lib/config"
	"github.com/vaultkeep/vaultkeep/lib/handshake"
	"github.com/vaultkeep/vaultkeep/lib/license"
	"github.com/vaultkeep/vaultkeep/lib/secret"
	"github.com/vaultkeep/vaultkeep/lib/service"
	"github.com/vaultkeep/vaultkeep/lib/vault"
	"github.com/vaultkeep/vaultkeep/lib/vaultlog"
	"github.com/vaultkeep/vaultkeep/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// licensePublicKeyHex is the Ed25519 public key that signs valid
// licences, embedded at build time via -ldflags -X. A zero value
// disables licence verification: checkLicense logs a warning and
// lets startup continue.
var licensePublicKeyHex = ""

func run() error {
	var (
		configPath       string
		passwordFile     string
		skipLicenseCheck bool
		noApproval       bool
		showVersion      bool
	)

	flag.StringVar(&configPath, "config", "", "path to vaultkeep.yaml (overrides VAULTKEEP_CONFIG)")
	flag.StringVar(&passwordFile, "password-file", "", "read the master password from this file instead of prompting")
	flag.BoolVar(&skipLicenseCheck, "skip-license-check", false, "run without a valid licence (development only)")
	flag.BoolVar(&noApproval, "no-approval", false, "approve every access-server request automatically (development only, overrides daemon.require_approval)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("vault-daemon %s\n", version.Info())
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return fmt.Errorf("preparing directories: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !skipLicenseCheck {
		if err := checkLicense(cfg, logger); err != nil {
			return fmt.Errorf("licence check failed: %w", err)
		}
	} else {
		logger.Warn("license check skipped; do not run this flag in production")
	}

	clk := clock.Real()
	store := vault.New(cfg.Paths.Root, clk, logger)

	log := vaultlog.New(clk)
	log.SetLogger(logger)
	log.SetPersistPath(filepath.Join(cfg.Paths.Root, "logs.enc"))
	store.SetAuditLog(log)

	password, err := readMasterPassword(store, passwordFile)
	if err != nil {
		return fmt.Errorf("reading master password: %w", err)
	}
	defer password.Close()

	if store.Exists() {
		if err := store.Unlock(password); err != nil {
			return fmt.Errorf("unlocking vault: %w", err)
		}
		logger.Info("vault unlocked", "path", cfg.Paths.Root)
	} else {
		if err := store.Setup(password); err != nil {
			return fmt.Errorf("initializing vault: %w", err)
		}
		logger.Info("vault initialized", "path", cfg.Paths.Root)
	}

	if err := log.Load(); err != nil {
		logger.Error("loading audit log", "error", err)
	}
	log.LogApp("daemon-start", version.Short())

	broker := buildApprovalBroker(cfg, noApproval)

	authToken, err := generateAuthToken()
	if err != nil {
		return fmt.Errorf("generating auth token: %w", err)
	}

	handler := accessserver.NewHandler(accessserver.Config{
		Store:     store,
		Broker:    broker,
		Log:       log,
		AuthToken: authToken,
		Version:   version.Short(),
		Logger:    logger,
	})

	tracker := newActivityTracker(handler)

	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Daemon.ListenAddress,
		Handler: tracker,
		Logger:  logger,
	})

	idleLockTimeout, err := cfg.IdleLockTimeout()
	if err != nil {
		return fmt.Errorf("parsing idle lock timeout: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(ctx) }()

	select {
	case <-httpServer.Ready():
	case err := <-serveErr:
		return fmt.Errorf("starting access server: %w", err)
	}

	port, err := addrPort(httpServer.Addr())
	if err != nil {
		return fmt.Errorf("resolving access server port: %w", err)
	}

	if err := handshake.Write(cfg.Paths.Root, handshake.File{
		Host:      "127.0.0.1",
		Port:      port,
		AuthToken: authToken,
		PID:       os.Getpid(),
	}); err != nil {
		return fmt.Errorf("writing handshake file: %w", err)
	}
	defer handshake.Remove(cfg.Paths.Root)

	logger.Info("vault daemon ready", "port", port, "idle_lock_timeout", idleLockTimeout)

	runIdleLockLoop(ctx, store, tracker, idleLockTimeout, logger)

	if err := <-serveErr; err != nil {
		logger.Error("access server exited with error", "error", err)
	}

	if err := vaultlog.Archive(log, cfg.Paths.LogArchive, time.Now(), vaultlog.DefaultDaysToKeep); err != nil {
		logger.Error("archiving audit log", "error", err)
	}
	log.Persist()
	if err := store.Lock(true); err != nil {
		logger.Error("locking vault on shutdown", "error", err)
	}

	logger.Info("vault daemon stopped")
	return nil
}

// checkLicense verifies the locally cached licence, failing startup
// if it is missing, malformed, badly signed, or signed for a different
// product. The licence's expiresAt field is not checked.
func checkLicense(cfg *config.Config, logger *slog.Logger) error {
	if licensePublicKeyHex == "" {
		logger.Warn("no licence public key embedded in this build; licence verification is disabled")
		return nil
	}
	publicKeyBytes, err := hex.DecodeString(licensePublicKeyHex)
	if err != nil || len(publicKeyBytes) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid embedded licence public key")
	}

	verifier := license.New(cfg.Paths.Root, ed25519.PublicKey(publicKeyBytes), cfg.License.ProductTag)
	status := verifier.CheckLocalLicense()
	if status.Valid {
		logger.Info("licence valid", "issuer", status.Licence.Issuer, "expires_at", status.Licence.ExpiresAt)
		return nil
	}
	logger.Warn("local licence invalid", "reason", status.Reason)
	return fmt.Errorf("%s (obtain a licence from %s)", status.Reason, cfg.License.ActivationURL)
}

// readMasterPassword reads the master password from a file or an
// interactive terminal prompt. The prompt text differs depending on
// whether the vault already exists, to avoid confusing a first-time
// user into thinking they are unlocking something that isn't there
// yet.
func readMasterPassword(store *vault.Store, passwordFile string) (*secret.Buffer, error) {
	if passwordFile != "" {
		return secret.ReadFromPath(passwordFile)
	}

	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return nil, fmt.Errorf("no terminal available for interactive password prompt (use --password-file)")
	}

	prompt := "Master password: "
	if !store.Exists() {
		prompt = "Choose a master password: "
	}
	fmt.Fprint(os.Stderr, prompt)
	passwordBytes, err := term.ReadPassword(stdinFd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	buffer, err := secret.NewFromBytes(passwordBytes)
	if err != nil {
		secret.Zero(passwordBytes)
		return nil, err
	}
	return buffer, nil
}

// buildApprovalBroker selects the approval broker implementation per
// configuration. The interactive TUI broker is the production
// default; --no-approval exists for scripted development workflows
// where no terminal is attached to answer prompts.
func buildApprovalBroker(cfg *config.Config, noApproval bool) approval.Broker {
	if noApproval || !cfg.Daemon.RequireApproval {
		return approval.AlwaysApprove{}
	}
	return approval.NewInteractive()
}

// generateAuthToken creates a random bearer token for the access
// server's Authorization header. Regenerated on every daemon start
// and shared with clients only via the handshake file.
func generateAuthToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// addrPort extracts the TCP port number from a net.Addr.
func addrPort(addr net.Addr) (int, error) {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}

// activityTracker wraps the access server handler, recording the
// time of the most recently served request so the idle-lock loop can
// tell how long the server has been quiet.
type activityTracker struct {
	next         http.Handler
	lastActivity atomic.Int64 // unix nanoseconds
}

func newActivityTracker(next http.Handler) *activityTracker {
	t := &activityTracker{next: next}
	t.lastActivity.Store(time.Now().UnixNano())
	return t
}

func (t *activityTracker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.lastActivity.Store(time.Now().UnixNano())
	t.next.ServeHTTP(w, r)
}

func (t *activityTracker) idleSince() time.Duration {
	return time.Since(time.Unix(0, t.lastActivity.Load()))
}

// runIdleLockLoop checks every 30 seconds whether the access server
// has been quiet for at least timeout and, if so, locks the vault once
// and returns; otherwise it returns when ctx is cancelled. A
// non-positive timeout disables idle locking. Locking discards the derived encryption key in place; the
// access server keeps running afterward and answers with a locked
// error until the daemon is restarted and unlocked again.
func runIdleLockLoop(ctx context.Context, store *vault.Store, tracker *activityTracker, timeout time.Duration, logger *slog.Logger) {
	if timeout <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if store.IsUnlocked() && tracker.idleSince() >= timeout {
				logger.Info("idle timeout reached, locking vault", "idle_for", tracker.idleSince())
				if err := store.Lock(true); err != nil {
					logger.Error("idle-lock failed", "error", err)
				}
				return
			}
		}
	}
}
