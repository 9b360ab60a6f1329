// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package approval implements the human-in-the-loop gate that the
// access server consults before serving a sensitive action to an
// external client.
package approval

import "context"

// Action identifies the kind of operation being requested.
type Action string

const (
	ActionListSecretKeys       Action = "listSecretKeys"
	ActionGetSecret            Action = "getSecret"
	ActionGetBatchSecrets      Action = "getBatchSecrets"
	ActionGetAllSecrets        Action = "getAllSecrets"
	ActionSetSecret            Action = "setSecret"
	ActionDeleteProject        Action = "deleteProject"
	ActionRestoreSecretVersion Action = "restoreSecretVersion"
)

// Request describes what a client is asking permission to do.
type Request struct {
	Project string
	Keys    []string
	Action  Action
	Client  string
}

// Decision is the outcome of an approval request.
type Decision struct {
	Approved bool
	Reason   string
	Remember bool
}

// Broker decides whether to grant a Request. Implementations range
// from a fully interactive terminal prompt to a scripted stub used in
// tests.
type Broker interface {
	RequestApproval(ctx context.Context, request Request) (Decision, error)
}

// AlwaysApprove is a Broker that grants every request unconditionally.
// Useful for a daemon configured to run without interactive approval.
type AlwaysApprove struct{}

func (AlwaysApprove) RequestApproval(ctx context.Context, request Request) (Decision, error) {
	return Decision{Approved: true}, nil
}

// AlwaysDeny is a Broker that denies every request. Useful as a safe
// default before an interactive broker has finished starting up.
type AlwaysDeny struct {
	Reason string
}

func (d AlwaysDeny) RequestApproval(ctx context.Context, request Request) (Decision, error) {
	reason := d.Reason
	if reason == "" {
		reason = "approval broker unavailable"
	}
	return Decision{Approved: false, Reason: reason}, nil
}
