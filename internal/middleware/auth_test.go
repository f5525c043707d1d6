package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/daybook/internal/auth"
)

func newVerifier() *auth.Verifier {
	return auth.NewVerifier("test-secret", auth.NewAllowList("admin@example.com"))
}

func protected(t *testing.T, reached *bool) http.Handler {
	return RequireAuth(newVerifier(), slog.Default())(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*reached = true
		if auth.Subject(r.Context()) != "admin@example.com" {
			t.Errorf("subject = %q", auth.Subject(r.Context()))
		}
		w.WriteHeader(http.StatusNoContent)
	})))
}

func TestRequireAuthNoToken(t *testing.T) {
	var reached bool
	rec := httptest.NewRecorder()
	protected(t, &reached).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if reached {
		t.Error("handler reached without token")
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["error"] == "" {
		t.Error("expected JSON error body")
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	var reached bool
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	protected(t, &reached).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAdminForbidsNonAdmin(t *testing.T) {
	var reached bool
	token, err := newVerifier().Issue("user@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(t, &reached).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if reached {
		t.Error("non-admin reached handler")
	}
}

func TestRequireAdminAllowsAdmin(t *testing.T) {
	var reached bool
	token, _ := newVerifier().Issue("admin@example.com", time.Hour)
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	protected(t, &reached).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if !reached {
		t.Error("admin did not reach handler")
	}
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	handler := RequestLogger(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing generated request id")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("request id = %q, want abc", got)
	}
}
