package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testSessionSecret = []byte("test-session-secret")

func sessionCookie(t *testing.T, userID uuid.UUID) *http.Cookie {
	t.Helper()
	token, err := NewSessionToken(testSessionSecret, userID, time.Hour)
	if err != nil {
		t.Fatalf("failed to mint session token: %v", err)
	}
	return &http.Cookie{Name: SessionCookieName, Value: token}
}

func TestSessionAuthMiddleware_NoSessionRedirects(t *testing.T) {
	handler := SessionAuthMiddleware(testSessionSecret, "/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a session")
	}))

	req := httptest.NewRequest(http.MethodDelete, "/interest/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("expected redirect to /login, got %q", loc)
	}
}

func TestSessionAuthMiddleware_InvalidTokenRedirects(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage token", token: "not-a-jwt"},
		{name: "empty token", token: ""},
		{
			name: "wrong secret",
			token: func() string {
				token, _ := NewSessionToken([]byte("some-other-secret"), uuid.New(), time.Hour)
				return token
			}(),
		},
		{
			name: "expired token",
			token: func() string {
				token, _ := NewSessionToken(testSessionSecret, uuid.New(), -time.Hour)
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := SessionAuthMiddleware(testSessionSecret, "/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run with an invalid session")
			}))

			req := httptest.NewRequest(http.MethodGet, "/interests", nil)
			req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.token})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusFound {
				t.Fatalf("expected 302, got %d", rec.Code)
			}
		})
	}
}

func TestSessionAuthMiddleware_ValidSessionResolvesUser(t *testing.T) {
	userID := uuid.New()
	var resolved uuid.UUID
	handler := SessionAuthMiddleware(testSessionSecret, "/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := UserFromContext(r.Context())
		if !ok {
			t.Fatal("expected user in context")
		}
		resolved = got
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/interests", nil)
	req.AddCookie(sessionCookie(t, userID))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resolved != userID {
		t.Fatalf("expected user %s, got %s", userID, resolved)
	}
}
