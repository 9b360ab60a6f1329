// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vaultkeep/vaultkeep/lib/clock"
	"github.com/vaultkeep/vaultkeep/lib/secret"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPassword(t *testing.T, s string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(s))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	return buffer
}

func newTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	dir := t.TempDir()
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(filepath.Join(dir, "vault"), fake, testLogger()), fake
}

// S1: create-unlock-read.
func TestScenarioCreateUnlockRead(t *testing.T) {
	store, _ := newTestStore(t)

	password := newPassword(t, "hunter2")
	defer password.Close()

	if err := store.Setup(password); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := store.CreateProject("app"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := store.SetSecret("app", "K", "v1", nil); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	if err := store.Lock(true); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	password2 := newPassword(t, "hunter2")
	defer password2.Close()
	if err := store.Unlock(password2); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	view, err := store.GetSecret("app", "K")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if view.Value != "v1" {
		t.Errorf("value = %q, want %q", view.Value, "v1")
	}
	if view.ExpiresAt != nil {
		t.Errorf("expiresAt = %v, want nil", view.ExpiresAt)
	}
}

// S2: history and restore.
func TestScenarioHistoryAndRestore(t *testing.T) {
	store, _ := newTestStore(t)
	password := newPassword(t, "hunter2")
	defer password.Close()

	if err := store.Setup(password); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := store.CreateProject("app"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := store.SetSecret("app", "K", "v1", nil); err != nil {
		t.Fatalf("SetSecret v1: %v", err)
	}
	if err := store.SetSecret("app", "K", "v2", nil); err != nil {
		t.Fatalf("SetSecret v2: %v", err)
	}
	if err := store.SetSecret("app", "K", "v3", nil); err != nil {
		t.Fatalf("SetSecret v3: %v", err)
	}

	historyView, err := store.GetSecretHistory("app", "K")
	if err != nil {
		t.Fatalf("GetSecretHistory: %v", err)
	}
	if historyView.Current.Value != "v3" {
		t.Errorf("current value = %q, want v3", historyView.Current.Value)
	}
	if historyView.TotalVersions != 3 {
		t.Errorf("totalVersions = %d, want 3", historyView.TotalVersions)
	}
	wantHistory := []string{"v2", "v1"}
	if len(historyView.History) != len(wantHistory) {
		t.Fatalf("history length = %d, want %d", len(historyView.History), len(wantHistory))
	}
	for i, want := range wantHistory {
		if historyView.History[i].Value != want {
			t.Errorf("history[%d] = %q, want %q", i, historyView.History[i].Value, want)
		}
	}

	// Restore index 1 ("v1").
	if err := store.RestoreSecretVersion("app", "K", 1); err != nil {
		t.Fatalf("RestoreSecretVersion: %v", err)
	}

	view, err := store.GetSecret("app", "K")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if view.Value != "v1" {
		t.Errorf("current after restore = %q, want v1", view.Value)
	}

	historyView, err = store.GetSecretHistory("app", "K")
	if err != nil {
		t.Fatalf("GetSecretHistory after restore: %v", err)
	}
	wantHistoryAfter := []string{"v3", "v2", "v1"}
	if len(historyView.History) != len(wantHistoryAfter) {
		t.Fatalf("history length after restore = %d, want %d", len(historyView.History), len(wantHistoryAfter))
	}
	for i, want := range wantHistoryAfter {
		if historyView.History[i].Value != want {
			t.Errorf("history[%d] after restore = %q, want %q", i, historyView.History[i].Value, want)
		}
	}
}

// S3: wrong password.
func TestScenarioWrongPassword(t *testing.T) {
	store, _ := newTestStore(t)
	password := newPassword(t, "hunter2")
	defer password.Close()

	if err := store.Setup(password); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := store.CreateProject("app"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := store.SetSecret("app", "K", "v1", nil); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	if err := store.Lock(true); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	wrongPassword := newPassword(t, "HUNTER2")
	defer wrongPassword.Close()
	err := store.Unlock(wrongPassword)
	if err == nil {
		t.Fatal("Unlock with wrong password succeeded, want InvalidPassword error")
	}
	if !IsKind(err, InvalidPassword) {
		t.Errorf("error kind: got %v, want InvalidPassword", err)
	}
	if store.IsUnlocked() {
		t.Error("store reports unlocked after failed unlock")
	}

	_, err = store.GetSecret("app", "K")
	if !IsKind(err, Locked) {
		t.Errorf("GetSecret after failed unlock: got %v, want Locked", err)
	}
}

func TestHistoryBoundedAtMaxHistory(t *testing.T) {
	store, _ := newTestStore(t)
	password := newPassword(t, "hunter2")
	defer password.Close()
	if err := store.Setup(password); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := store.CreateProject("app"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	for i := 0; i < MaxHistory+10; i++ {
		value := string(rune('a' + i%26))
		if err := store.SetSecret("app", "K", value, nil); err != nil {
			t.Fatalf("SetSecret iteration %d: %v", i, err)
		}
	}

	historyView, err := store.GetSecretHistory("app", "K")
	if err != nil {
		t.Fatalf("GetSecretHistory: %v", err)
	}
	if len(historyView.History) != MaxHistory {
		t.Errorf("history length = %d, want %d", len(historyView.History), MaxHistory)
	}
}

func TestSetSecretNoOpDoesNotPushHistory(t *testing.T) {
	store, _ := newTestStore(t)
	password := newPassword(t, "hunter2")
	defer password.Close()
	if err := store.Setup(password); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := store.CreateProject("app"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := store.SetSecret("app", "K", "v1", nil); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	if err := store.SetSecret("app", "K", "v1", nil); err != nil {
		t.Fatalf("SetSecret (same value): %v", err)
	}

	historyView, err := store.GetSecretHistory("app", "K")
	if err != nil {
		t.Fatalf("GetSecretHistory: %v", err)
	}
	if len(historyView.History) != 0 {
		t.Errorf("history length = %d, want 0 after no-op write", len(historyView.History))
	}
}

func TestDeleteProjectCascadesFavorites(t *testing.T) {
	store, _ := newTestStore(t)
	password := newPassword(t, "hunter2")
	defer password.Close()
	if err := store.Setup(password); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := store.CreateProject("app"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := store.SetSecret("app", "K", "v1", nil); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	if _, err := store.ToggleProjectFavorite("app"); err != nil {
		t.Fatalf("ToggleProjectFavorite: %v", err)
	}
	if _, err := store.ToggleSecretFavorite("app", "K"); err != nil {
		t.Fatalf("ToggleSecretFavorite: %v", err)
	}

	if err := store.DeleteProject("app"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}

	s := store
	s.mu.Lock()
	for _, name := range s.doc.Favorites.Projects {
		if name == "app" {
			s.mu.Unlock()
			t.Fatal("favorites.projects still references deleted project")
		}
	}
	if _, ok := s.doc.Favorites.Secrets["app"]; ok {
		s.mu.Unlock()
		t.Fatal("favorites.secrets still references deleted project")
	}
	s.mu.Unlock()
}

func TestFileModeIs0600AfterSetup(t *testing.T) {
	store, _ := newTestStore(t)
	password := newPassword(t, "hunter2")
	defer password.Close()
	if err := store.Setup(password); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	for _, path := range []string{store.saltPath(), store.vaultPath()} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat(%s): %v", path, err)
		}
		if info.Mode().Perm() != fileMode {
			t.Errorf("%s mode = %v, want %v", path, info.Mode().Perm(), os.FileMode(fileMode))
		}
	}
}

func TestDebouncedAutoSaveFiresAfterAdvance(t *testing.T) {
	store, fake := newTestStore(t)
	password := newPassword(t, "hunter2")
	defer password.Close()
	if err := store.Setup(password); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := store.SaveNow(); err != nil {
		t.Fatalf("SaveNow: %v", err)
	}

	if err := store.CreateProject("app"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	infoBefore, err := os.Stat(store.vaultPath())
	if err != nil {
		t.Fatalf("Stat before advance: %v", err)
	}

	fake.Advance(SaveDebounce + time.Millisecond)

	infoAfter, err := os.Stat(store.vaultPath())
	if err != nil {
		t.Fatalf("Stat after advance: %v", err)
	}
	if !infoAfter.ModTime().After(infoBefore.ModTime()) && infoAfter.Size() == infoBefore.Size() {
		t.Error("vault file does not appear to have been rewritten by the debounced auto-save")
	}
}

func TestRestoreSecretVersionOutOfRange(t *testing.T) {
	store, _ := newTestStore(t)
	password := newPassword(t, "hunter2")
	defer password.Close()
	if err := store.Setup(password); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := store.CreateProject("app"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := store.SetSecret("app", "K", "v1", nil); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}

	err := store.RestoreSecretVersion("app", "K", 5)
	if !IsKind(err, OutOfRange) {
		t.Errorf("error kind: got %v, want OutOfRange", err)
	}
}
