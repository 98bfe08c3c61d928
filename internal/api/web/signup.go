package web

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/louisbranch/latchkey/internal/platform/errors"
)

type beginSignupRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type beginSignupResponse struct {
	SignupID string `json:"signup_id"`
}

// beginSignup reserves a pending registration for a new account. No durable
// user exists until the passkey ceremony completes.
func (h *Handler) beginSignup(w http.ResponseWriter, r *http.Request) {
	var req beginSignupRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, string(apperrors.CodeUserInvalidEmail), "invalid request body")
		return
	}
	signupID, err := h.ceremonies.BeginSignup(r.Context(), req.Email, req.DisplayName)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, beginSignupResponse{SignupID: signupID})
}

type signupOptionsRequest struct {
	SignupID string `json:"signup_id"`
}

type signupOptionsResponse struct {
	Options any `json:"options"`
}

func (h *Handler) signupOptions(w http.ResponseWriter, r *http.Request) {
	var req signupOptionsRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, string(apperrors.CodeNoPendingRegistration), "invalid request body")
		return
	}
	options, err := h.ceremonies.SignupOptions(r.Context(), req.SignupID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, signupOptionsResponse{Options: options})
}

type finishSignupRequest struct {
	SignupID string          `json:"signup_id"`
	Response json.RawMessage `json:"response"`
	Label    string          `json:"label"`
}

func (h *Handler) finishSignup(w http.ResponseWriter, r *http.Request) {
	var req finishSignupRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, string(apperrors.CodeAttestationInvalid), "invalid request body")
		return
	}
	created, err := h.ceremonies.FinishSignup(r.Context(), req.SignupID, req.Response, req.Label)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.issueSession(w, r, created, http.StatusCreated)
}
