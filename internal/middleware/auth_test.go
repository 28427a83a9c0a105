package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

type stubValidator struct {
	userID uuid.UUID
	role   string
	err    error
}

func (s *stubValidator) ValidateToken(_ context.Context, _ string) (uuid.UUID, string, error) {
	return s.userID, s.role, s.err
}

func TestBearerAuthMissingHeader(t *testing.T) {
	mw := BearerAuth(&stubValidator{})
	called := false
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if called {
		t.Fatal("next handler should not be called")
	}
}

func TestBearerAuthInvalidToken(t *testing.T) {
	mw := BearerAuth(&stubValidator{err: errors.New("expired")})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestBearerAuthSetsContext(t *testing.T) {
	userID := uuid.New()
	mw := BearerAuth(&stubValidator{userID: userID, role: "worker"})

	var gotID uuid.UUID
	var gotRole string
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = UserFromCtx(r.Context())
		gotRole = RoleFromCtx(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotID != userID {
		t.Fatalf("user id = %s, want %s", gotID, userID)
	}
	if gotRole != "worker" {
		t.Fatalf("role = %q, want %q", gotRole, "worker")
	}
}
