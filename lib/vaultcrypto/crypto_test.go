// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package vaultcrypto

import (
	"errors"
	"testing"

	"github.com/vaultkeep/vaultkeep/lib/secret"
)

func mustPassword(t *testing.T, s string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(s))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	return buffer
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}

	password := mustPassword(t, "hunter2")
	defer password.Close()

	key1, err := DeriveKey(password, salt)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	defer key1.Close()

	key2, err := DeriveKey(password, salt)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	defer key2.Close()

	if string(key1.Bytes()) != string(key2.Bytes()) {
		t.Error("DeriveKey is not deterministic for the same password and salt")
	}
	if key1.Len() != KeySize {
		t.Errorf("key length = %d, want %d", key1.Len(), KeySize)
	}
}

func TestDeriveKeyDifferentPasswordsDiffer(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}

	passwordA := mustPassword(t, "hunter2")
	defer passwordA.Close()
	passwordB := mustPassword(t, "HUNTER2")
	defer passwordB.Close()

	keyA, err := DeriveKey(passwordA, salt)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	defer keyA.Close()

	keyB, err := DeriveKey(passwordB, salt)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	defer keyB.Close()

	if string(keyA.Bytes()) == string(keyB.Bytes()) {
		t.Error("different passwords derived the same key")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	salt, _ := GenerateSalt()
	password := mustPassword(t, "hunter2")
	defer password.Close()
	key, err := DeriveKey(password, salt)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	defer key.Close()

	type payload struct {
		Name   string `json:"name"`
		Values []int  `json:"values"`
	}
	original := payload{Name: "app", Values: []int{1, 2, 3}}

	envelope, err := EncryptJSON(original, key)
	if err != nil {
		t.Fatalf("EncryptJSON: %v", err)
	}

	var decoded payload
	if err := DecryptJSON(envelope, key, &decoded); err != nil {
		t.Fatalf("DecryptJSON: %v", err)
	}

	if decoded.Name != original.Name || len(decoded.Values) != len(original.Values) {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	salt, _ := GenerateSalt()
	passwordA := mustPassword(t, "hunter2")
	defer passwordA.Close()
	passwordB := mustPassword(t, "wrong-password")
	defer passwordB.Close()

	keyA, _ := DeriveKey(passwordA, salt)
	defer keyA.Close()
	keyB, _ := DeriveKey(passwordB, salt)
	defer keyB.Close()

	envelope, err := EncryptJSON(map[string]string{"k": "v"}, keyA)
	if err != nil {
		t.Fatalf("EncryptJSON: %v", err)
	}

	var decoded map[string]string
	err = DecryptJSON(envelope, keyB, &decoded)
	if err == nil {
		t.Fatal("DecryptJSON with wrong key succeeded, want error")
	}

	var cryptoErr *CryptoError
	if !errors.As(err, &cryptoErr) {
		t.Fatalf("error is not a *CryptoError: %v", err)
	}
	if cryptoErr.Kind != BadCiphertext {
		t.Errorf("error kind = %v, want BadCiphertext", cryptoErr.Kind)
	}
}

func TestDecryptTamperedEnvelopeFails(t *testing.T) {
	salt, _ := GenerateSalt()
	password := mustPassword(t, "hunter2")
	defer password.Close()
	key, _ := DeriveKey(password, salt)
	defer key.Close()

	envelope, err := EncryptJSON(map[string]string{"k": "v"}, key)
	if err != nil {
		t.Fatalf("EncryptJSON: %v", err)
	}

	envelope[len(envelope)-1] ^= 0xFF

	var decoded map[string]string
	if err := DecryptJSON(envelope, key, &decoded); err == nil {
		t.Fatal("DecryptJSON with tampered envelope succeeded, want error")
	}
}

func TestMaskSensitiveValue(t *testing.T) {
	tests := []struct {
		name string
		s    string
		keep int
		want string
	}{
		{"basic", "sk-abcdef1234567890", 6, "sk-abc*************"},
		{"keep_longer_than_string", "short", 10, "short"},
		{"keep_zero", "secret", 0, "******"},
		{"empty", "", 4, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskSensitiveValue(tt.s, tt.keep)
			if got != tt.want {
				t.Errorf("MaskSensitiveValue(%q, %d) = %q, want %q", tt.s, tt.keep, got, tt.want)
			}
		})
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("abc123", "abc123") {
		t.Error("expected equal strings to compare equal")
	}
	if ConstantTimeEqual("abc123", "abc124") {
		t.Error("expected different strings to compare unequal")
	}
	if ConstantTimeEqual("short", "muchlongerstring") {
		t.Error("expected different-length strings to compare unequal")
	}
}
