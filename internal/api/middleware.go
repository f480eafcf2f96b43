/**
 * @description
 * This file contains the session authentication middleware for the HTTP
 * router. The login flow itself lives in the auth system; this middleware
 * only validates the signed session cookie it issues and resolves the acting
 * user. Requests without a valid session are redirected to the login page
 * before any handler runs, so unauthenticated traffic never reaches the
 * interest core.
 *
 * @dependencies
 * - context, net/http: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: Session token validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "scout_session"

// userIDContextKey is a custom type for the context key to avoid collisions.
type userIDContextKey string

const sessionUserIDKey userIDContextKey = "sessionUserID"

// SessionAuthMiddleware creates a middleware that validates the session
// cookie and injects the authenticated user's ID into the request context.
// A missing or invalid session yields a 302 redirect to loginURL; handlers
// behind this middleware can assume an authenticated user.
func SessionAuthMiddleware(sessionSecret []byte, loginURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				http.Redirect(w, r, loginURL, http.StatusFound)
				return
			}

			userID, err := parseSessionToken(sessionSecret, cookie.Value)
			if err != nil {
				http.Redirect(w, r, loginURL, http.StatusFound)
				return
			}

			ctx := context.WithValue(r.Context(), sessionUserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseSessionToken validates the HMAC-signed session token and extracts the
// user's UUID from the user_id claim.
func parseSessionToken(secret []byte, tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	if !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid session claims")
	}
	raw, ok := claims["user_id"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("user_id claim missing")
	}
	return uuid.Parse(raw)
}

// NewSessionToken mints a signed session token for a user. The auth system
// uses this when logging a user in; tests use it to simulate sessions.
func NewSessionToken(secret []byte, userID uuid.UUID, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// UserFromContext retrieves the authenticated user's ID from the request
// context. Handlers behind the session middleware should use this.
func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(sessionUserIDKey).(uuid.UUID)
	return userID, ok
}
