// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package vaultcrypto provides the cryptographic primitives that back
// the vault's at-rest encryption: password-based key derivation,
// authenticated JSON envelope encryption, sensitive-value masking, and
// constant-time comparison.
//
// Key derivation uses Argon2id. Envelope encryption uses
// XChaCha20-Poly1305 with a random nonce per call and the envelope
// version byte as additional authenticated data, mirroring the
// versioned-blob format used elsewhere in this codebase's ancestry for
// encrypted artifact storage. Both the KDF parameters and the envelope
// format are fixed; changing either requires a document schema bump.
package vaultcrypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/vaultkeep/vaultkeep/lib/secret"
)

// SaltSize is the length in bytes of a freshly generated salt.
const SaltSize = 32

// KeySize is the length in bytes of a derived content key.
const KeySize = 32

// Argon2id parameters. Fixed and documented: changing any of these
// values changes the key derived from a given password and salt,
// which would silently break decryption of existing vaults. A schema
// version bump is required before these may change.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB, i.e. 64 MiB
	argonThreads = 4
)

// envelopeVersion is the version byte prepended to every encrypted
// envelope. Included as additional authenticated data so tampering
// with it is detected by AEAD authentication.
const envelopeVersion byte = 0x01

// envelopeOverhead is the total byte overhead of an envelope: 1
// (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const envelopeOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// ErrorKind identifies the category of a CryptoError.
type ErrorKind int

const (
	// BadKey indicates a key of the wrong length was supplied.
	BadKey ErrorKind = iota
	// BadCiphertext indicates the envelope failed to authenticate or
	// was malformed (wrong password, tampered data, truncated blob).
	BadCiphertext
	// SerializationError indicates the plaintext value could not be
	// marshaled to or unmarshaled from JSON.
	SerializationError
)

// CryptoError reports a cryptographic failure. It is never
// recoverable: callers must treat it as fatal to the operation in
// progress and must not retry with the same inputs.
type CryptoError struct {
	Kind ErrorKind
	Err  error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("vaultcrypto: %s: %v", e.Kind, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

func (k ErrorKind) String() string {
	switch k {
	case BadKey:
		return "bad key"
	case BadCiphertext:
		return "bad ciphertext"
	case SerializationError:
		return "serialization error"
	default:
		return "unknown"
	}
}

// GenerateSalt returns SaltSize random bytes from a cryptographically
// secure source, suitable for use as the KDF salt of a new vault.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("vaultcrypto: generating salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a KeySize-byte content key from a password and
// salt using Argon2id at the fixed parameters above. The password
// buffer is borrowed and not closed by this function. The returned
// key is held in guarded memory and must be closed by the caller.
func DeriveKey(password *secret.Buffer, salt []byte) (*secret.Buffer, error) {
	derived := argon2.IDKey(password.Bytes(), salt, argonTime, argonMemory, argonThreads, KeySize)
	key, err := secret.NewFromBytes(derived)
	if err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("vaultcrypto: guarding derived key: %w", err)
	}
	return key, nil
}

// EncryptJSON serializes value to UTF-8 JSON and seals it under key
// using XChaCha20-Poly1305 with a fresh random nonce. The returned
// envelope is laid out as version(1) || nonce(24) || ciphertext+tag.
// The key is borrowed and not closed.
func EncryptJSON(value any, key *secret.Buffer) ([]byte, error) {
	if key.Len() != KeySize {
		return nil, &CryptoError{Kind: BadKey, Err: fmt.Errorf("key is %d bytes, want %d", key.Len(), KeySize)}
	}

	plaintext, err := json.Marshal(value)
	if err != nil {
		return nil, &CryptoError{Kind: SerializationError, Err: err}
	}

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, &CryptoError{Kind: BadKey, Err: err}
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("vaultcrypto: generating nonce: %w", err)
	}

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, envelopeOverhead+len(plaintext))
	output[0] = envelopeVersion
	copy(output[1:], nonce[:])

	output = aead.Seal(output, nonce[:], plaintext, []byte{envelopeVersion})
	return output, nil
}

// DecryptJSON opens an envelope produced by EncryptJSON and
// unmarshals the plaintext into dest (a pointer). Fails loudly — via
// a *CryptoError with Kind BadCiphertext — on authentication failure,
// including a wrong key (wrong password). The key is borrowed and
// not closed.
func DecryptJSON(envelope []byte, key *secret.Buffer, dest any) error {
	if key.Len() != KeySize {
		return &CryptoError{Kind: BadKey, Err: fmt.Errorf("key is %d bytes, want %d", key.Len(), KeySize)}
	}
	if len(envelope) < envelopeOverhead {
		return &CryptoError{Kind: BadCiphertext, Err: fmt.Errorf("envelope is %d bytes, minimum is %d", len(envelope), envelopeOverhead)}
	}

	version := envelope[0]
	if version != envelopeVersion {
		return &CryptoError{Kind: BadCiphertext, Err: fmt.Errorf("unsupported envelope version %d", version)}
	}

	nonce := envelope[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := envelope[1+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return &CryptoError{Kind: BadKey, Err: err}
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte{version})
	if err != nil {
		return &CryptoError{Kind: BadCiphertext, Err: fmt.Errorf("authentication failed (wrong password or tampered data): %w", err)}
	}

	if err := json.Unmarshal(plaintext, dest); err != nil {
		return &CryptoError{Kind: SerializationError, Err: err}
	}
	return nil
}

// MaskSensitiveValue preserves the first keep characters of s and
// replaces the remainder with asterisks. If s is no longer than keep,
// it is returned unmodified (nothing to mask).
func MaskSensitiveValue(s string, keep int) string {
	runes := []rune(s)
	if keep < 0 {
		keep = 0
	}
	if len(runes) <= keep {
		return s
	}
	masked := make([]rune, len(runes))
	copy(masked, runes[:keep])
	for i := keep; i < len(runes); i++ {
		masked[i] = '*'
	}
	return string(masked)
}

// ConstantTimeEqual reports whether a and b are equal using a
// timing-independent comparison. Used for bearer token checks so that
// the server's authorization decision does not leak timing
// information about how much of the token matched.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// subtle.ConstantTimeCompare requires equal-length inputs;
		// a length mismatch is itself safe to short-circuit on since
		// token lengths are fixed and public (base64url-encoded, 43 chars).
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
