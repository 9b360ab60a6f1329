// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package license implements the offline-verifiable entitlement that
// gates the vault kernel: a signed JSON licence checked locally
// against a compiled-in Ed25519 public key, with an online activation
// path that talks to an entitlement server.
package license

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const fileName = "license.json"
const fileMode = 0o600

// ErrorKind identifies the category of a license verification or
// activation failure.
type ErrorKind int

const (
	NoLocalLicense ErrorKind = iota
	InvalidLicenseFormat
	InvalidSignature
	InvalidProduct
	NetworkError
	Timeout
	ParseError
	UnknownError
)

func (k ErrorKind) String() string {
	switch k {
	case NoLocalLicense:
		return "no_local_license"
	case InvalidLicenseFormat:
		return "invalid_license_format"
	case InvalidSignature:
		return "invalid_signature"
	case InvalidProduct:
		return "invalid_product"
	case NetworkError:
		return "network_error"
	case Timeout:
		return "timeout"
	case ParseError:
		return "parse_error"
	default:
		return "unknown_error"
	}
}

// Error reports a license verification or activation failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("license: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("license: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error) *Error { return &Error{Kind: kind, Err: err} }

// Licence is the signed entitlement payload. Field order matches the
// canonical serialization the issuing authority produces — Go's
// encoding/json marshals struct fields in declaration order, so this
// order is load-bearing for signature verification.
type Licence struct {
	Product    string `json:"product"`
	UserKey    string `json:"userKey"`
	IssuedAt   string `json:"issuedAt"`
	ExpiresAt  string `json:"expiresAt,omitempty"`
	Issuer     string `json:"issuer"`
}

// File is the on-disk license.json shape.
type File struct {
	Licence   Licence   `json:"licence"`
	Signature string    `json:"signature"`
	SavedAt   time.Time `json:"savedAt"`
}

// Status is the result of a local license check.
type Status struct {
	Valid   bool
	Reason  ErrorKind
	Licence Licence
}

// Verifier checks licences against a compiled-in Ed25519 public key
// and a configured product tag.
type Verifier struct {
	dir        string
	publicKey  ed25519.PublicKey
	productTag string
	httpClient *http.Client
}

// New creates a Verifier. publicKey is the deployment's compiled-in
// Ed25519 public key; productTag is the expected Licence.Product
// value for this build.
func New(dir string, publicKey ed25519.PublicKey, productTag string) *Verifier {
	return &Verifier{
		dir:        dir,
		publicKey:  publicKey,
		productTag: productTag,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *Verifier) path() string { return filepath.Join(v.dir, fileName) }

// CheckLocalLicense reads and verifies the locally saved license
// file. Never returns an error directly for an invalid/missing
// license — that is reported via Status.Reason instead.
func (v *Verifier) CheckLocalLicense() Status {
	data, err := os.ReadFile(v.path())
	if err != nil {
		return Status{Valid: false, Reason: NoLocalLicense}
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return Status{Valid: false, Reason: InvalidLicenseFormat}
	}

	signature, err := base64.StdEncoding.DecodeString(file.Signature)
	if err != nil {
		return Status{Valid: false, Reason: InvalidLicenseFormat}
	}

	if !v.verifySignature(file.Licence, signature) {
		return Status{Valid: false, Reason: InvalidSignature}
	}

	if file.Licence.Product != v.productTag {
		return Status{Valid: false, Reason: InvalidProduct}
	}

	return Status{Valid: true, Licence: file.Licence}
}

// verifySignature canonically serializes licence and checks the
// Ed25519 signature against the compiled-in public key. The
// canonicalization is encoding/json's default struct marshaling,
// which always emits fields in declaration order with no extra
// whitespace — this MUST match what the signing authority produces.
func (v *Verifier) verifySignature(licence Licence, signature []byte) bool {
	canonical, err := json.Marshal(licence)
	if err != nil {
		return false
	}
	return ed25519.Verify(v.publicKey, canonical, signature)
}

// ActivationResult is the outcome of CheckLicenseWithServer.
type ActivationResult struct {
	Success   bool
	Licence   Licence
	Signature string
	Error     ErrorKind
}

// activationRequest is the POST body sent to the entitlement
// endpoint.
type activationRequest struct {
	UserKey  string `json:"userKey"`
	Password string `json:"password"`
	Program  string `json:"program"`
}

// activationResponse is the expected 200 response shape.
type activationResponse struct {
	Licence   Licence `json:"licence"`
	Signature string  `json:"signature"`
	Error     string  `json:"error,omitempty"`
}

// CheckLicenseWithServer activates a license against the entitlement
// server at endpointURL. On success, re-verifies the returned
// signature and product tag exactly as CheckLocalLicense does before
// reporting success — a server that returns a badly signed licence is
// treated as a failed activation, not a trusted one.
func (v *Verifier) CheckLicenseWithServer(ctx context.Context, endpointURL, userKey, password string) ActivationResult {
	body, err := json.Marshal(activationRequest{UserKey: userKey, Password: password, Program: v.productTag})
	if err != nil {
		return ActivationResult{Success: false, Error: UnknownError}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return ActivationResult{Success: false, Error: UnknownError}
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := v.httpClient.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ActivationResult{Success: false, Error: Timeout}
		}
		return ActivationResult{Success: false, Error: NetworkError}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return ActivationResult{Success: false, Error: NetworkError}
	}

	var parsed activationResponse
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return ActivationResult{Success: false, Error: ParseError}
	}

	signature, err := base64.StdEncoding.DecodeString(parsed.Signature)
	if err != nil {
		return ActivationResult{Success: false, Error: InvalidSignature}
	}
	if !v.verifySignature(parsed.Licence, signature) {
		return ActivationResult{Success: false, Error: InvalidSignature}
	}
	if parsed.Licence.Product != v.productTag {
		return ActivationResult{Success: false, Error: InvalidProduct}
	}

	return ActivationResult{Success: true, Licence: parsed.Licence, Signature: parsed.Signature}
}

// SaveLicense persists a verified licence and its signature to
// license.json at 0600.
func (v *Verifier) SaveLicense(licence Licence, signature string) error {
	file := File{Licence: licence, Signature: signature, SavedAt: time.Now().UTC()}
	data, err := json.Marshal(file)
	if err != nil {
		return newError(UnknownError, fmt.Errorf("marshaling: %w", err))
	}
	if err := os.MkdirAll(v.dir, 0o700); err != nil {
		return newError(UnknownError, fmt.Errorf("creating directory: %w", err))
	}
	if err := os.WriteFile(v.path(), data, fileMode); err != nil {
		return newError(UnknownError, fmt.Errorf("writing: %w", err))
	}
	return nil
}

// DeleteLicense removes the saved license file. Idempotent.
func (v *Verifier) DeleteLicense() error {
	if err := os.Remove(v.path()); err != nil && !os.IsNotExist(err) {
		return newError(UnknownError, fmt.Errorf("removing: %w", err))
	}
	return nil
}
