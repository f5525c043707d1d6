package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Subject: "admin@example.com", Admin: true})
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.Subject != "admin@example.com" {
		t.Errorf("Subject = %q, want %q", got.Subject, "admin@example.com")
	}
	if !got.Admin {
		t.Error("Admin = false, want true")
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestSubjectMissing(t *testing.T) {
	if Subject(context.Background()) != "" {
		t.Error("expected empty subject for missing context")
	}
}

func TestIsAdmin(t *testing.T) {
	if !IsAdmin(WithAuth(context.Background(), AuthContext{Subject: "a", Admin: true})) {
		t.Error("expected IsAdmin = true")
	}
	if IsAdmin(WithAuth(context.Background(), AuthContext{Subject: "a"})) {
		t.Error("expected IsAdmin = false for non-admin")
	}
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}

func TestAllowList(t *testing.T) {
	al := NewAllowList(" Admin@Example.com ", "")
	if !al.IsAdmin("admin@example.com") {
		t.Error("expected case-insensitive match")
	}
	if al.IsAdmin("") || al.IsAdmin("user@example.com") {
		t.Error("unexpected admin")
	}
}
