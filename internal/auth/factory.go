package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/stacklok/thv-git-api/internal/config"
)

// NewAuthMiddleware creates authentication middleware based on config.
// Returns: (middleware, signInHandler, error). The sign-in handler is nil in anonymous mode.
func NewAuthMiddleware(cfg *config.AuthConfig) (func(http.Handler) http.Handler, http.Handler, error) {
	if cfg == nil {
		slog.Info("auth: anonymous mode (no auth config)")
		return anonymousMiddleware, nil, nil
	}

	switch cfg.GetMode() {
	case config.AuthModeAnonymous:
		slog.Info("auth: anonymous mode")
		return anonymousMiddleware, nil, nil
	case config.AuthModeJWT:
		return createJWTMiddleware(cfg)
	default:
		return nil, nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

func createJWTMiddleware(cfg *config.AuthConfig) (func(http.Handler) http.Handler, http.Handler, error) {
	secret, err := cfg.GetSecret()
	if err != nil {
		return nil, nil, err
	}
	signer, err := NewSigner(secret, cfg.GetTokenLifetime())
	if err != nil {
		return nil, nil, err
	}

	users := make([]User, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		id, err := uuid.Parse(u.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid user id %q: %w", u.ID, err)
		}
		users = append(users, User{ID: id, Key: u.Key})
	}

	signIn, err := NewSignInHandler(users, signer)
	if err != nil {
		return nil, nil, err
	}
	bearer, err := NewBearerMiddleware(signer, "")
	if err != nil {
		return nil, nil, err
	}

	publicPaths := append(append([]string{}, DefaultPublicPaths...), cfg.PublicPaths...)
	slog.Info("auth: jwt mode", "users", len(users), "public_paths", publicPaths)

	return WrapWithPublicPaths(bearer.Middleware, publicPaths), signIn, nil
}

// anonymousMiddleware is a no-op middleware that passes requests through without authentication.
func anonymousMiddleware(next http.Handler) http.Handler {
	return next
}
