package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/louisbranch/latchkey/internal/platform/errors"
	"github.com/louisbranch/latchkey/internal/platform/requestctx"
	"github.com/louisbranch/latchkey/internal/storage"
)

type beginRegistrationResponse struct {
	SessionID string `json:"session_id"`
	Options   any    `json:"options"`
}

// beginRegistration starts an add-passkey ceremony for the signed-in user.
func (h *Handler) beginRegistration(w http.ResponseWriter, r *http.Request) {
	userID := requestctx.UserIDFromContext(r.Context())
	sessionID, options, err := h.ceremonies.BeginRegistration(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, beginRegistrationResponse{SessionID: sessionID, Options: options})
}

type finishRegistrationRequest struct {
	SessionID string          `json:"session_id"`
	Response  json.RawMessage `json:"response"`
	Label     string          `json:"label"`
}

type credentialPayload struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func toCredentialPayload(c storage.Credential) credentialPayload {
	return credentialPayload{
		ID:         c.ExternalID,
		Label:      c.Label,
		CreatedAt:  c.CreatedAt,
		LastUsedAt: c.LastUsedAt,
	}
}

func (h *Handler) finishRegistration(w http.ResponseWriter, r *http.Request) {
	var req finishRegistrationRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, string(apperrors.CodeAttestationInvalid), "invalid request body")
		return
	}
	userID := requestctx.UserIDFromContext(r.Context())
	record, err := h.ceremonies.FinishRegistration(r.Context(), userID, req.SessionID, req.Response, req.Label)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toCredentialPayload(record))
}

type beginLoginRequest struct {
	UserID string `json:"user_id"`
}

type beginLoginResponse struct {
	SessionID string `json:"session_id"`
	Options   any    `json:"options"`
}

// beginLogin starts an assertion ceremony. An empty user_id requests the
// discoverable flow.
func (h *Handler) beginLogin(w http.ResponseWriter, r *http.Request) {
	var req beginLoginRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, string(apperrors.CodeAssertionInvalid), "invalid request body")
		return
	}
	sessionID, options, err := h.ceremonies.BeginLogin(r.Context(), req.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, beginLoginResponse{SessionID: sessionID, Options: options})
}

type finishLoginRequest struct {
	SessionID string          `json:"session_id"`
	Response  json.RawMessage `json:"response"`
}

func (h *Handler) finishLogin(w http.ResponseWriter, r *http.Request) {
	var req finishLoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, string(apperrors.CodeAssertionInvalid), "invalid request body")
		return
	}
	authenticated, err := h.ceremonies.FinishLogin(r.Context(), req.SessionID, req.Response)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	u, err := h.users.GetUser(r.Context(), authenticated.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.issueSession(w, r, u, http.StatusOK)
}

func (h *Handler) listCredentials(w http.ResponseWriter, r *http.Request) {
	userID := requestctx.UserIDFromContext(r.Context())
	records, err := h.ceremonies.ListCredentials(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	payload := make([]credentialPayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, toCredentialPayload(record))
	}
	h.writeJSON(w, http.StatusOK, payload)
}

type renameCredentialRequest struct {
	Label string `json:"label"`
}

func (h *Handler) renameCredential(w http.ResponseWriter, r *http.Request) {
	var req renameCredentialRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, string(apperrors.CodeUserInvalidLabel), "invalid request body")
		return
	}
	userID := requestctx.UserIDFromContext(r.Context())
	credentialID := chi.URLParam(r, "credentialID")
	if err := h.ceremonies.RenameCredential(r.Context(), userID, credentialID, req.Label); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeCredential(w http.ResponseWriter, r *http.Request) {
	userID := requestctx.UserIDFromContext(r.Context())
	credentialID := chi.URLParam(r, "credentialID")
	if err := h.ceremonies.RemoveCredential(r.Context(), userID, credentialID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
