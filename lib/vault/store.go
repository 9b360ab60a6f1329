// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vaultkeep/vaultkeep/lib/clock"
	"github.com/vaultkeep/vaultkeep/lib/secret"
	"github.com/vaultkeep/vaultkeep/lib/vaultcrypto"
)

// SaveDebounce is the delay between the last mutation and the
// automatic background save.
const SaveDebounce = 1 * time.Second

const (
	saltFileName  = "salt.txt"
	vaultFileName = "vault.enc"
	// directoryMode is restrictive even though the files themselves
	// only need 0600 — there is no reason for the vault directory to
	// be group- or world-readable.
	directoryMode = 0o700
	fileMode      = 0o600
)

// AuditKeyObserver receives the vault's derived content key for the
// duration it is unlocked, so an audit log can encrypt its own
// persisted state with the same key. The key is loaned, not owned:
// an observer must never close it, and must drop its reference when
// ClearEncryptionKey is called, which happens before the Store closes
// its own copy on lock.
type AuditKeyObserver interface {
	SetEncryptionKey(key *secret.Buffer)
	ClearEncryptionKey()
}

// Store is the encrypted projects/secrets/history/favorites store. A
// Store begins locked: the in-memory document and derived key are
// absent until Setup or Unlock succeeds. All exported methods are
// safe for concurrent use; mutations are serialized behind a single
// mutex.
type Store struct {
	mu     sync.Mutex
	dir    string
	clk    clock.Clock
	logger *slog.Logger

	unlocked bool
	doc      *Document
	key      *secret.Buffer
	auditLog AuditKeyObserver

	dirty     bool
	saveTimer *clock.Timer
}

// SetAuditLog attaches an observer that receives the derived content
// key for the duration the store is unlocked. Must be called before
// Setup/Unlock for the first unlock to be observed; safe to call at
// any time otherwise.
func (s *Store) SetAuditLog(observer AuditKeyObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLog = observer
}

// New creates a Store rooted at dir. The directory need not exist yet
// — Setup creates it. clk abstracts time for the debounced auto-save
// timer so tests can drive it deterministically.
func New(dir string, clk clock.Clock, logger *slog.Logger) *Store {
	return &Store{dir: dir, clk: clk, logger: logger}
}

func (s *Store) saltPath() string  { return filepath.Join(s.dir, saltFileName) }
func (s *Store) vaultPath() string { return filepath.Join(s.dir, vaultFileName) }

// Exists reports whether both the salt and vault files are present.
// Does not require the store to be unlocked.
func (s *Store) Exists() bool {
	if _, err := os.Stat(s.saltPath()); err != nil {
		return false
	}
	if _, err := os.Stat(s.vaultPath()); err != nil {
		return false
	}
	return true
}

// IsUnlocked reports whether the store currently holds a derived key
// and document in memory.
func (s *Store) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

// Setup initializes a brand new vault: generates a salt, derives the
// content key from password, writes an empty document, and leaves the
// store unlocked. Fails with AlreadyExists if Exists() is already
// true. The password buffer is borrowed and not closed.
func (s *Store) Setup(password *secret.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Exists() {
		return newError(AlreadyExists, "vault already exists at %s", s.dir)
	}

	if err := os.MkdirAll(s.dir, directoryMode); err != nil {
		return fmt.Errorf("vault: creating directory: %w", err)
	}

	salt, err := vaultcrypto.GenerateSalt()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.saltPath(), []byte(hex.EncodeToString(salt))); err != nil {
		return fmt.Errorf("vault: writing salt file: %w", err)
	}

	key, err := vaultcrypto.DeriveKey(password, salt)
	if err != nil {
		return err
	}

	s.key = key
	s.doc = newEmptyDocument(s.clk.Now())
	s.unlocked = true
	if s.auditLog != nil {
		s.auditLog.SetEncryptionKey(s.key)
	}

	if err := s.persistLocked(); err != nil {
		s.wipeLocked()
		return err
	}
	s.logger.Info("vault setup complete", "dir", s.dir)
	return nil
}

// Unlock derives the content key from password and the stored salt,
// decrypts the document, and leaves the store unlocked. Fails with
// NotInitialized if Exists() is false, InvalidPassword if
// decryption's authentication check fails. On any failure the derived
// key is wiped before returning — no partial key material survives a
// failed unlock attempt.
func (s *Store) Unlock(password *secret.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Exists() {
		return newError(NotInitialized, "vault does not exist at %s", s.dir)
	}

	saltHex, err := os.ReadFile(s.saltPath())
	if err != nil {
		return fmt.Errorf("vault: reading salt file: %w", err)
	}
	salt, err := hex.DecodeString(string(saltHex))
	if err != nil {
		return fmt.Errorf("vault: decoding salt: %w", err)
	}

	key, err := vaultcrypto.DeriveKey(password, salt)
	if err != nil {
		return err
	}

	envelope, err := os.ReadFile(s.vaultPath())
	if err != nil {
		key.Close()
		return fmt.Errorf("vault: reading vault file: %w", err)
	}

	var doc Document
	if err := vaultcrypto.DecryptJSON(envelope, key, &doc); err != nil {
		key.Close()
		return newError(InvalidPassword, "unlock failed: %v", err)
	}

	doc.normalize()

	s.key = key
	s.doc = &doc
	s.unlocked = true
	if s.auditLog != nil {
		s.auditLog.SetEncryptionKey(s.key)
	}

	if err := enforceFileMode(s.saltPath()); err != nil {
		s.logger.Warn("failed to enforce salt file mode", "error", err)
	}
	if err := enforceFileMode(s.vaultPath()); err != nil {
		s.logger.Warn("failed to enforce vault file mode", "error", err)
	}

	s.logger.Info("vault unlocked", "dir", s.dir)
	return nil
}

// Lock cancels any pending debounced save, persists the current
// document, and wipes the in-memory document and key. Idempotent on
// an already-locked store. If sync is true, Lock blocks until the
// persisted write completes (used on shutdown); otherwise the write
// happens in the background while Lock returns immediately after the
// key material is already wiped (the encrypted bytes are computed
// before wiping, so no key material is needed for the deferred
// write).
func (s *Store) Lock(sync bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lockLocked(sync)
}

func (s *Store) lockLocked(sync bool) error {
	if !s.unlocked {
		return nil
	}
	s.cancelTimerLocked()

	envelope, encryptErr := s.encryptDocumentLocked()
	s.wipeLocked()

	if encryptErr != nil {
		return encryptErr
	}

	writeFn := func() error { return writeFileAtomic(s.vaultPath(), envelope) }
	if sync {
		if err := writeFn(); err != nil {
			return fmt.Errorf("vault: writing vault file on lock: %w", err)
		}
		return nil
	}

	go func() {
		if err := writeFn(); err != nil {
			s.logger.Error("background lock write failed", "error", err)
		}
	}()
	return nil
}

// SaveNow cancels any pending debounced save and forces a durable,
// synchronous write. Returns nil without writing if the store is
// locked or has no unsaved changes.
func (s *Store) SaveNow() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimerLocked()
	if !s.unlocked || !s.dirty {
		return nil
	}
	if err := s.persistLocked(); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// scheduleSaveLocked marks the document dirty and (re)starts the
// debounce timer. Must be called with s.mu held.
func (s *Store) scheduleSaveLocked() {
	s.dirty = true
	s.doc.UpdatedAt = s.clk.Now()

	if s.saveTimer != nil {
		s.saveTimer.Reset(SaveDebounce)
		return
	}
	s.saveTimer = s.clk.AfterFunc(SaveDebounce, s.onDebounceFire)
}

// onDebounceFire runs on the clock's own goroutine (or synchronously
// during a fake clock's Advance) when the debounce timer elapses.
func (s *Store) onDebounceFire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveTimer = nil
	if !s.unlocked || !s.dirty {
		return
	}
	if err := s.persistLocked(); err != nil {
		s.logger.Error("auto-save failed", "error", err)
		return
	}
	s.dirty = false
}

func (s *Store) cancelTimerLocked() {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
}

// persistLocked encrypts and durably writes the current document.
// Must be called with s.mu held and the store unlocked.
func (s *Store) persistLocked() error {
	envelope, err := s.encryptDocumentLocked()
	if err != nil {
		return err
	}
	return writeFileAtomic(s.vaultPath(), envelope)
}

func (s *Store) encryptDocumentLocked() ([]byte, error) {
	return vaultcrypto.EncryptJSON(s.doc, s.key)
}

// wipeLocked clears the in-memory document and zeroes the derived
// key. Must be called with s.mu held.
func (s *Store) wipeLocked() {
	if s.auditLog != nil {
		s.auditLog.ClearEncryptionKey()
	}
	if s.key != nil {
		s.key.Close()
		s.key = nil
	}
	s.doc = nil
	s.unlocked = false
	s.dirty = false
}

// requireUnlockedLocked returns a Locked error if the store is not
// currently unlocked. Must be called with s.mu held.
func (s *Store) requireUnlockedLocked() error {
	if !s.unlocked {
		return newError(Locked, "vault is locked")
	}
	return nil
}

// writeFileAtomic writes data to a temporary file in the same
// directory as path, then renames it into place, so a crash mid-write
// never leaves a truncated file at path. The final file is chmod'd to
// fileMode.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	temp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return err
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := os.Chmod(tempPath, fileMode); err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

func enforceFileMode(path string) error {
	return os.Chmod(path, fileMode)
}
