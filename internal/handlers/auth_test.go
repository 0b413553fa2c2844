package handlers

import (
	"context"
	"net/http"
	"testing"
)

func TestRegisterFirstUserIsSuperAdmin(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")

	if isAdmin, isSuper, _ := ts.admins.IsAdmin(context.Background(), alice); !isAdmin || !isSuper {
		t.Fatalf("expected first user to be super admin")
	}
	if isAdmin, _, _ := ts.admins.IsAdmin(context.Background(), bob); isAdmin {
		t.Fatalf("expected second user to be a regular user")
	}
	if len(ts.audit.actions) != 2 || ts.audit.actions[0] != "register" {
		t.Fatalf("unexpected audit trail: %v", ts.audit.actions)
	}
}

func TestRegisterRejects(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"duplicate", map[string]string{"username": "alice", "email": "alice@example.com", "password": "Password123!"}, http.StatusConflict},
		{"bad email", map[string]string{"username": "carol", "email": "nope", "password": "Password123!"}, http.StatusBadRequest},
		{"short password", map[string]string{"username": "carol", "email": "carol@example.com", "password": "short"}, http.StatusBadRequest},
		{"bad username", map[string]string{"username": "c", "email": "carol@example.com", "password": "Password123!"}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code := ts.do(t, http.MethodPost, "/auth/register", "", tc.body, nil); code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, code)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	var resp map[string]string
	code := ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "Password123!",
	}, &resp)
	if code != http.StatusOK || resp["token"] == "" {
		t.Fatalf("expected token, got %d %v", code, resp)
	}

	code = ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	}, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", code)
	}
	code = ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "ghost@example.com", "password": "Password123!",
	}, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("unknown email: expected 401, got %d", code)
	}
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")

	var me map[string]any
	if code := ts.do(t, http.MethodGet, "/auth/me", alice, nil, &me); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if me["username"] != "alice" || me["super_admin"] != true {
		t.Fatalf("unexpected profile: %v", me)
	}
	if code := ts.do(t, http.MethodGet, "/auth/me", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", code)
	}
}
