package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const ownerIDContextKey contextKey = "owner_id"

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid bearer token")
)

// Authenticate verifies an optional HS256 bearer token and stores its subject
// as the owner ID in the request context. Requests without an Authorization
// header pass through anonymously; a present but invalid token is rejected.
// An empty secret disables verification and every request is anonymous.
func Authenticate(secret []byte, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secret) == 0 || r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}

			ownerID, err := ownerFromRequest(r, secret)
			if err != nil {
				logger.WarnContext(r.Context(), "rejected bearer token",
					"request_id", GetRequestID(r.Context()),
					"error", err.Error(),
				)
				WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), ownerID)))
		})
	}
}

// RequireOwner rejects requests that did not authenticate.
func RequireOwner(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if GetOwnerID(r.Context()) == "" {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
			return
		}
		next(w, r)
	}
}

func ownerFromRequest(r *http.Request, secret []byte) (string, error) {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(tokenString) == "" {
		return "", errMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

// GetOwnerID extracts the authenticated owner ID from context.
// Returns empty string for anonymous requests.
func GetOwnerID(ctx context.Context) string {
	if id, ok := ctx.Value(ownerIDContextKey).(string); ok {
		return id
	}
	return ""
}

// WithOwnerID adds an owner ID to the context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDContextKey, ownerID)
}
