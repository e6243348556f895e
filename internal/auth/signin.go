package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// User is an account that may sign in. The password of the basic auth
// credentials is the user's key; the username is ignored.
type User struct {
	ID  uuid.UUID
	Key string
}

// SignInResponse is returned by a successful sign-in
type SignInResponse struct {
	StatusCode int    `json:"status_code"`
	Token      string `json:"token"`
}

// tokenIssuer issues tokens for authenticated users
type tokenIssuer interface {
	Issue(id uuid.UUID) (string, error)
}

// SignInHandler exchanges basic auth credentials for a bearer token.
type SignInHandler struct {
	users  []User
	issuer tokenIssuer
}

// NewSignInHandler creates a SignInHandler for the given users
func NewSignInHandler(users []User, issuer tokenIssuer) (*SignInHandler, error) {
	if issuer == nil {
		return nil, errors.New("token issuer is required")
	}
	for i, u := range users {
		if u.Key == "" {
			return nil, fmt.Errorf("user %d: key is required", i)
		}
	}
	return &SignInHandler{users: users, issuer: issuer}, nil
}

// ServeHTTP implements http.Handler
func (h *SignInHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, key, ok := r.BasicAuth()
	if !ok || key == "" {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, DefaultRealm))
		writeJSONError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	user, found := h.lookup(key)
	if !found {
		slog.Warn("Sign-in rejected", "remote_addr", r.RemoteAddr)
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, DefaultRealm))
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.issuer.Issue(user.ID)
	if err != nil {
		slog.Error("Failed to issue token", "user_id", user.ID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	slog.Info("Sign-in successful", "user_id", user.ID, "remote_addr", r.RemoteAddr)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(SignInResponse{StatusCode: http.StatusOK, Token: token}); err != nil {
		slog.Error("Failed to encode sign-in response", "error", err)
	}
}

// lookup compares key against every user so the time taken does not depend
// on which user matched.
func (h *SignInHandler) lookup(key string) (User, bool) {
	var (
		match User
		found bool
	)
	for _, u := range h.users {
		if subtle.ConstantTimeCompare([]byte(u.Key), []byte(key)) == 1 && !found {
			match, found = u, true
		}
	}
	return match, found
}
