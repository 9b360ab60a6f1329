// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package license

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func newKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	public, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return public, private
}

func sign(t *testing.T, private ed25519.PrivateKey, licence Licence) string {
	t.Helper()
	canonical, err := json.Marshal(licence)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	signature := ed25519.Sign(private, canonical)
	return base64.StdEncoding.EncodeToString(signature)
}

func TestCheckLocalLicenseMissing(t *testing.T) {
	public, _ := newKeyPair(t)
	verifier := New(t.TempDir(), public, "vaultkeep")

	status := verifier.CheckLocalLicense()
	if status.Valid {
		t.Error("Valid = true, want false")
	}
	if status.Reason != NoLocalLicense {
		t.Errorf("Reason = %v, want NoLocalLicense", status.Reason)
	}
}

func TestCheckLocalLicenseValid(t *testing.T) {
	public, private := newKeyPair(t)
	dir := t.TempDir()
	verifier := New(dir, public, "vaultkeep")

	licence := Licence{Product: "vaultkeep", UserKey: "user-1", IssuedAt: time.Now().UTC().Format(time.RFC3339)}
	signature := sign(t, private, licence)

	if err := verifier.SaveLicense(licence, signature); err != nil {
		t.Fatalf("SaveLicense: %v", err)
	}

	status := verifier.CheckLocalLicense()
	if !status.Valid {
		t.Errorf("Valid = false, reason = %v", status.Reason)
	}
	if status.Licence.UserKey != "user-1" {
		t.Errorf("UserKey = %q, want user-1", status.Licence.UserKey)
	}
}

func TestCheckLocalLicenseWrongProduct(t *testing.T) {
	public, private := newKeyPair(t)
	dir := t.TempDir()
	verifier := New(dir, public, "vaultkeep")

	licence := Licence{Product: "other-product", UserKey: "user-1", IssuedAt: time.Now().UTC().Format(time.RFC3339)}
	signature := sign(t, private, licence)
	if err := verifier.SaveLicense(licence, signature); err != nil {
		t.Fatalf("SaveLicense: %v", err)
	}

	status := verifier.CheckLocalLicense()
	if status.Valid {
		t.Error("Valid = true, want false")
	}
	if status.Reason != InvalidProduct {
		t.Errorf("Reason = %v, want InvalidProduct", status.Reason)
	}
}

func TestCheckLocalLicenseBadSignature(t *testing.T) {
	public, _ := newKeyPair(t)
	_, otherPrivate := newKeyPair(t)
	dir := t.TempDir()
	verifier := New(dir, public, "vaultkeep")

	licence := Licence{Product: "vaultkeep", UserKey: "user-1", IssuedAt: time.Now().UTC().Format(time.RFC3339)}
	signature := sign(t, otherPrivate, licence)
	if err := verifier.SaveLicense(licence, signature); err != nil {
		t.Fatalf("SaveLicense: %v", err)
	}

	status := verifier.CheckLocalLicense()
	if status.Valid {
		t.Error("Valid = true, want false")
	}
	if status.Reason != InvalidSignature {
		t.Errorf("Reason = %v, want InvalidSignature", status.Reason)
	}
}

func TestCheckLocalLicenseCorruptFile(t *testing.T) {
	public, _ := newKeyPair(t)
	dir := t.TempDir()
	verifier := New(dir, public, "vaultkeep")

	if err := os.WriteFile(verifier.path(), []byte("not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	status := verifier.CheckLocalLicense()
	if status.Reason != InvalidLicenseFormat {
		t.Errorf("Reason = %v, want InvalidLicenseFormat", status.Reason)
	}
}

func TestCheckLicenseWithServerSuccess(t *testing.T) {
	public, private := newKeyPair(t)
	dir := t.TempDir()
	verifier := New(dir, public, "vaultkeep")

	licence := Licence{Product: "vaultkeep", UserKey: "user-1", IssuedAt: time.Now().UTC().Format(time.RFC3339)}
	signature := sign(t, private, licence)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(activationResponse{Licence: licence, Signature: signature})
	}))
	defer server.Close()

	result := verifier.CheckLicenseWithServer(context.Background(), server.URL, "user-1", "pw")
	if !result.Success {
		t.Errorf("Success = false, error = %v", result.Error)
	}
}

func TestCheckLicenseWithServerBadSignatureRejected(t *testing.T) {
	public, _ := newKeyPair(t)
	_, otherPrivate := newKeyPair(t)
	dir := t.TempDir()
	verifier := New(dir, public, "vaultkeep")

	licence := Licence{Product: "vaultkeep", UserKey: "user-1", IssuedAt: time.Now().UTC().Format(time.RFC3339)}
	signature := sign(t, otherPrivate, licence)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(activationResponse{Licence: licence, Signature: signature})
	}))
	defer server.Close()

	result := verifier.CheckLicenseWithServer(context.Background(), server.URL, "user-1", "pw")
	if result.Success {
		t.Error("Success = true, want false for a badly signed server response")
	}
	if result.Error != InvalidSignature {
		t.Errorf("Error = %v, want InvalidSignature", result.Error)
	}
}

func TestCheckLicenseWithServerNetworkError(t *testing.T) {
	public, _ := newKeyPair(t)
	verifier := New(t.TempDir(), public, "vaultkeep")

	result := verifier.CheckLicenseWithServer(context.Background(), "http://127.0.0.1:1", "user-1", "pw")
	if result.Success {
		t.Error("Success = true, want false")
	}
	if result.Error != NetworkError {
		t.Errorf("Error = %v, want NetworkError", result.Error)
	}
}

func TestDeleteLicenseIdempotent(t *testing.T) {
	public, _ := newKeyPair(t)
	verifier := New(t.TempDir(), public, "vaultkeep")
	if err := verifier.DeleteLicense(); err != nil {
		t.Fatalf("DeleteLicense on absent file: %v", err)
	}
}
