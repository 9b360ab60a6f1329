// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package accessserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vaultkeep/vaultkeep/lib/approval"
	"github.com/vaultkeep/vaultkeep/lib/vault"
)

// dispatch routes an authenticated, parsed request to its action
// handler and gates sensitive actions behind the approval broker.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, request actionRequest) {
	switch request.Action {
	case "status":
		h.handleStatus(w, r)
	case "listProjects":
		h.handleListProjects(w, r)
	case "listSecretKeys":
		h.handleListSecretKeys(w, r, request)
	case "getAllSecrets":
		h.handleGetAllSecrets(w, r, request)
	case "getBatchSecrets":
		h.handleGetBatchSecrets(w, r, request)
	case "getSecret":
		h.handleGetSecret(w, r, request)
	case "setSecret":
		h.handleSetSecret(w, r, request)
	case "createProject":
		h.handleCreateProject(w, r, request)
	case "deleteProject":
		h.handleDeleteProject(w, r, request)
	case "toggleProjectFavorite":
		h.handleToggleProjectFavorite(w, r, request)
	case "toggleSecretFavorite":
		h.handleToggleSecretFavorite(w, r, request)
	case "getSecretHistory":
		h.handleGetSecretHistory(w, r, request)
	case "restoreSecretVersion":
		h.handleRestoreSecretVersion(w, r, request)
	case "getStatistics":
		h.handleGetStatistics(w, r)
	default:
		h.writeJSON(w, http.StatusOK, actionResponse{Success: false, Error: "unknown action"})
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: map[string]any{
		"isUnlocked": h.store.IsUnlocked(),
		"version":    h.version,
	}})
}

func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.GetProjects()
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: summaries})
}

func (h *Handler) handleListSecretKeys(w http.ResponseWriter, r *http.Request, request actionRequest) {
	secrets, err := h.store.GetSecrets(request.Project)
	if err != nil {
		h.respondVaultError(w, err)
		return
	}
	keys := make([]string, 0, len(secrets))
	for key := range secrets {
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: keys})
		return
	}
	if !h.approve(w, r, request.Project, keys, approval.ActionListSecretKeys) {
		return
	}
	h.log.LogAccess("listSecretKeys", request.Project, strings.Join(keys, ", "))
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: keys})
}

func (h *Handler) handleGetAllSecrets(w http.ResponseWriter, r *http.Request, request actionRequest) {
	secrets, err := h.store.GetSecrets(request.Project)
	if err != nil {
		h.respondVaultError(w, err)
		return
	}
	keys := make([]string, 0, len(secrets))
	for key := range secrets {
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: secrets})
		return
	}
	if !h.approve(w, r, request.Project, keys, approval.ActionGetAllSecrets) {
		return
	}
	h.log.LogAccess("getAllSecrets", request.Project, strings.Join(keys, ", "))
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: secrets})
}

// handleGetBatchSecrets looks up each requested key independently: a
// key that doesn't exist is omitted from the result rather than
// failing the whole batch. Any other error (e.g. the vault going
// locked mid-request) still aborts and reports immediately.
func (h *Handler) handleGetBatchSecrets(w http.ResponseWriter, r *http.Request, request actionRequest) {
	if len(request.Keys) == 0 {
		h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: map[string]vault.SecretView{}})
		return
	}
	if !h.approve(w, r, request.Project, request.Keys, approval.ActionGetBatchSecrets) {
		return
	}
	results := make(map[string]vault.SecretView, len(request.Keys))
	for _, key := range request.Keys {
		view, err := h.store.GetSecret(request.Project, key)
		if err != nil {
			if vault.IsKind(err, vault.NotFound) {
				continue
			}
			h.respondVaultError(w, err)
			return
		}
		results[key] = view
	}
	h.log.LogAccess("getBatchSecrets", request.Project, strings.Join(request.Keys, ", "))
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: results})
}

func (h *Handler) handleGetSecret(w http.ResponseWriter, r *http.Request, request actionRequest) {
	if request.Key == "" {
		h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: vault.SecretView{}})
		return
	}
	if !h.approve(w, r, request.Project, []string{request.Key}, approval.ActionGetSecret) {
		return
	}
	view, err := h.store.GetSecret(request.Project, request.Key)
	if err != nil {
		h.respondVaultError(w, err)
		return
	}
	h.log.LogAccess("getSecret", request.Project, request.Key)
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: view})
}

func (h *Handler) handleSetSecret(w http.ResponseWriter, r *http.Request, request actionRequest) {
	if !h.approve(w, r, request.Project, []string{request.Key}, approval.ActionSetSecret) {
		return
	}
	if err := h.store.SetSecret(request.Project, request.Key, request.Value, request.ExpiresAt); err != nil {
		h.respondVaultError(w, err)
		return
	}
	h.log.LogAccess("setSecret", request.Project, request.Key)
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true})
}

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request, request actionRequest) {
	if err := h.store.CreateProject(request.Project); err != nil {
		h.respondVaultError(w, err)
		return
	}
	h.log.LogApp("createProject", request.Project)
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true})
}

func (h *Handler) handleDeleteProject(w http.ResponseWriter, r *http.Request, request actionRequest) {
	if !h.approve(w, r, request.Project, nil, approval.ActionDeleteProject) {
		return
	}
	if err := h.store.DeleteProject(request.Project); err != nil {
		h.respondVaultError(w, err)
		return
	}
	h.log.LogApp("deleteProject", request.Project)
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true})
}

func (h *Handler) handleToggleProjectFavorite(w http.ResponseWriter, r *http.Request, request actionRequest) {
	favorite, err := h.store.ToggleProjectFavorite(request.Project)
	if err != nil {
		h.respondVaultError(w, err)
		return
	}
	h.log.LogApp("toggleProjectFavorite", request.Project)
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: map[string]any{"favorite": favorite}})
}

func (h *Handler) handleToggleSecretFavorite(w http.ResponseWriter, r *http.Request, request actionRequest) {
	favorite, err := h.store.ToggleSecretFavorite(request.Project, request.Key)
	if err != nil {
		h.respondVaultError(w, err)
		return
	}
	h.log.LogApp("toggleSecretFavorite", fmt.Sprintf("%s/%s", request.Project, request.Key))
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: map[string]any{"favorite": favorite}})
}

func (h *Handler) handleGetSecretHistory(w http.ResponseWriter, r *http.Request, request actionRequest) {
	if !h.approve(w, r, request.Project, []string{request.Key}, approval.ActionGetSecret) {
		return
	}
	history, err := h.store.GetSecretHistory(request.Project, request.Key)
	if err != nil {
		h.respondVaultError(w, err)
		return
	}
	h.log.LogAccess("getSecretHistory", request.Project, request.Key)
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: history})
}

func (h *Handler) handleRestoreSecretVersion(w http.ResponseWriter, r *http.Request, request actionRequest) {
	if !h.approve(w, r, request.Project, []string{request.Key}, approval.ActionRestoreSecretVersion) {
		return
	}
	if err := h.store.RestoreSecretVersion(request.Project, request.Key, request.VersionIdx); err != nil {
		h.respondVaultError(w, err)
		return
	}
	h.log.LogApp("restoreSecretVersion", fmt.Sprintf("%s/%s", request.Project, request.Key))
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true})
}

func (h *Handler) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStatistics()
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, actionResponse{Success: true, Data: stats})
}

// approve consults the broker for a gated action and writes a denial
// response itself when the request is not approved, returning false
// so the caller can stop processing. A denial is a business-logic
// outcome, not a transport failure, so it is reported the same way as
// any other unsuccessful action: HTTP 200 with success:false.
func (h *Handler) approve(w http.ResponseWriter, r *http.Request, project string, keys []string, action approval.Action) bool {
	decision, err := h.broker.RequestApproval(r.Context(), approval.Request{
		Project: project,
		Keys:    keys,
		Action:  action,
		Client:  r.RemoteAddr,
	})
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return false
	}
	if !decision.Approved {
		reason := decision.Reason
		if reason == "" {
			reason = "denied by operator"
		}
		message := fmt.Sprintf("Access denied: %s", reason)
		h.log.LogAccess("Access denied", project, strings.Join(keys, ", "))
		h.writeJSON(w, http.StatusOK, actionResponse{Success: false, Error: message})
		return false
	}
	return true
}

// respondVaultError reports a lib/vault error. Vault errors are
// business-logic outcomes, not transport failures — they are always
// reported as HTTP 200 with success:false, matching the wire
// contract's distinction between upstream errors (Vault) and
// transport errors (auth, method, size, unexpected failure). An error
// that isn't a recognized vault.Error kind is treated as unexpected
// and reported as a transport-level 500 instead.
func (h *Handler) respondVaultError(w http.ResponseWriter, err error) {
	switch {
	case vault.IsKind(err, vault.NotFound),
		vault.IsKind(err, vault.Conflict),
		vault.IsKind(err, vault.Locked),
		vault.IsKind(err, vault.NotInitialized),
		vault.IsKind(err, vault.OutOfRange),
		vault.IsKind(err, vault.InvalidPassword),
		vault.IsKind(err, vault.AlreadyExists):
		h.writeJSON(w, http.StatusOK, actionResponse{Success: false, Error: err.Error()})
	default:
		h.fail(w, http.StatusInternalServerError, err)
	}
}
