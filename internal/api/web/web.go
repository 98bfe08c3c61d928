package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"

	"github.com/louisbranch/latchkey/internal/ceremony"
	apperrors "github.com/louisbranch/latchkey/internal/platform/errors"
	"github.com/louisbranch/latchkey/internal/platform/requestctx"
	"github.com/louisbranch/latchkey/internal/storage"
	"github.com/louisbranch/latchkey/internal/user"
)

// maxBodyBytes bounds request bodies; attestation responses are small.
const maxBodyBytes = 1 << 20

// Ceremonies runs the passkey ceremonies behind the HTTP surface.
type Ceremonies interface {
	BeginRegistration(ctx context.Context, userID string) (string, *protocol.CredentialCreation, error)
	FinishRegistration(ctx context.Context, userID, sessionID string, response []byte, label string) (storage.Credential, error)
	BeginLogin(ctx context.Context, userID string) (string, *protocol.CredentialAssertion, error)
	FinishLogin(ctx context.Context, sessionID string, response []byte) (ceremony.AuthenticatedUser, error)
	BeginSignup(ctx context.Context, email, displayName string) (string, error)
	SignupOptions(ctx context.Context, sessionID string) (*protocol.CredentialCreation, error)
	FinishSignup(ctx context.Context, sessionID string, response []byte, label string) (user.User, error)
	ListCredentials(ctx context.Context, userID string) ([]storage.Credential, error)
	RenameCredential(ctx context.Context, userID, credentialID, label string) error
	RemoveCredential(ctx context.Context, userID, credentialID string) error
}

// Sessions mints and checks web-session tokens.
type Sessions interface {
	Issue(ctx context.Context, u user.User) (string, storage.WebSession, error)
	Verify(ctx context.Context, token string) (storage.WebSession, error)
	Revoke(ctx context.Context, sessionID string) error
}

// Handler serves the authentication HTTP API.
type Handler struct {
	ceremonies Ceremonies
	sessions   Sessions
	users      storage.UserStore
}

// NewHandler wires the HTTP surface over the ceremony coordinator and the
// session service.
func NewHandler(ceremonies Ceremonies, sessions Sessions, users storage.UserStore) *Handler {
	return &Handler{
		ceremonies: ceremonies,
		sessions:   sessions,
		users:      users,
	}
}

// Router builds the route table.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup/begin", h.beginSignup)
		r.Post("/signup/options", h.signupOptions)
		r.Post("/signup/finish", h.finishSignup)
		r.Post("/passkeys/login/begin", h.beginLogin)
		r.Post("/passkeys/login/finish", h.finishLogin)
		r.Post("/logout", h.logout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)
			r.Post("/passkeys/register/begin", h.beginRegistration)
			r.Post("/passkeys/register/finish", h.finishRegistration)
			r.Get("/passkeys", h.listCredentials)
			r.Patch("/passkeys/{credentialID}", h.renameCredential)
			r.Delete("/passkeys/{credentialID}", h.removeCredential)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireSession authenticates the request from its bearer token and stores
// the subject on the request context.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.writeError(w, http.StatusUnauthorized, string(apperrors.CodeTokenInvalid), "bearer token is required")
			return
		}
		session, err := h.sessions.Verify(r.Context(), token)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		ctx := requestctx.WithUserID(r.Context(), session.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// sessionResponse carries a freshly minted web-session token.
type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      userPayload `json:"user"`
}

type userPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
}

func toUserPayload(u user.User) userPayload {
	return userPayload{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Status:      string(u.Status),
	}
}

// issueSession mints a token for the user and writes the session response.
func (h *Handler) issueSession(w http.ResponseWriter, r *http.Request, u user.User, status int) {
	token, session, err := h.sessions.Issue(r.Context(), u)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, status, sessionResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      toUserPayload(u),
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		h.writeError(w, http.StatusUnauthorized, string(apperrors.CodeTokenInvalid), "bearer token is required")
		return
	}
	session, err := h.sessions.Verify(r.Context(), token)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.sessions.Revoke(r.Context(), session.ID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody parses a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeDomainError maps a coded domain error onto an HTTP status. Unknown
// codes become opaque 500s; the cause goes to the log, not the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := code.HTTPStatus()
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Printf("web: internal error: %v", err)
		message = "internal error"
	}
	h.writeError(w, status, string(code), message)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}
