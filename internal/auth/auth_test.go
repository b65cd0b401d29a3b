package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/notes-bin/aigallery/internal/redis"
)

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := redis.NewClient(mr.Addr(), "", 0, 2)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { rc.Close() })
	return NewAuth("test-secret", time.Hour, rc)
}

func TestRegisterLoginParse(t *testing.T) {
	a := newTestAuth(t)
	ctx := t.Context()

	user, err := a.Register(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Password == "pw" {
		t.Fatal("password must be hashed")
	}

	if _, err := a.Register(ctx, "alice", "other"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	if _, err := a.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := a.Login(ctx, "nobody", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	token, err := a.Login(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	s, err := a.ParseToken(ctx, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.UserID != user.ID || s.Username != "alice" {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestLogoutRevokes(t *testing.T) {
	a := newTestAuth(t)
	ctx := t.Context()

	token, err := a.GenerateToken("u1", "bob")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	s, err := a.ParseToken(ctx, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := a.Logout(ctx, s); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := a.ParseToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	a := newTestAuth(t)
	other := &Auth{secret: []byte("other"), ttl: time.Hour, redis: a.redis}

	token, _ := other.GenerateToken("u1", "eve")
	if _, err := a.ParseToken(t.Context(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := a.ParseToken(t.Context(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestSessionContext(t *testing.T) {
	if _, ok := SessionFromContext(t.Context()); ok {
		t.Fatal("empty context should carry no session")
	}
	ctx := WithSession(t.Context(), &Session{UserID: "u1"})
	s, ok := SessionFromContext(ctx)
	if !ok || s.UserID != "u1" {
		t.Fatalf("unexpected session %+v", s)
	}
}
