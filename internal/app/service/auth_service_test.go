package service

import (
	"context"
	"testing"
	"time"

	"examforge/internal/common"
	"examforge/internal/common/security"
	"examforge/internal/domain/model"
	"examforge/internal/domain/repository/memory"
)

func TestSignupAndLogin(t *testing.T) {
	security.InitJWT([]byte("test-signing-key"), time.Hour)
	store := memory.NewStore()
	auth := NewAuthService(store.Users(), "admin-token", &common.FixedClock{T: testOpensAt})
	ctx := context.Background()

	resp, err := auth.Signup(ctx, SignupRequest{Username: "ada", Email: "Ada@Example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if resp.Token == "" || resp.User.Role != model.RoleCandidate || resp.User.HashedPassword != "" {
		t.Fatalf("unexpected signup response %+v", resp.User)
	}
	if resp.User.Email != "ada@example.com" {
		t.Fatalf("email should be lower-cased, got %s", resp.User.Email)
	}

	_, err = auth.Signup(ctx, SignupRequest{Username: "ada", Email: "other@example.com", Password: "correct horse"})
	wantErr(t, err, common.ErrConflict)

	_, err = auth.Signup(ctx, SignupRequest{Username: "root", Email: "root@example.com", Password: "correct horse", AdminToken: "guess"})
	wantErr(t, err, common.ErrForbidden)

	admin, err := auth.Signup(ctx, SignupRequest{Username: "root", Email: "root@example.com", Password: "correct horse", AdminToken: "admin-token"})
	if err != nil || admin.User.Role != model.RoleAdmin {
		t.Fatalf("admin signup failed: %+v (%v)", admin, err)
	}

	_, err = auth.Signup(ctx, SignupRequest{Username: "x", Email: "bad", Password: "short"})
	wantErr(t, err, common.ErrValidation)

	for _, login := range []string{"ada", "ADA@example.com"} {
		got, err := auth.Login(ctx, LoginRequest{LoginField: login, Password: "correct horse"})
		if err != nil {
			t.Fatalf("login as %s: %v", login, err)
		}
		if got.User.ID != resp.User.ID || got.Token == "" {
			t.Fatalf("login as %s returned %+v", login, got.User)
		}
	}

	_, err = auth.Login(ctx, LoginRequest{LoginField: "ada", Password: "wrong password"})
	wantErr(t, err, common.ErrUnauthorized)
	_, err = auth.Login(ctx, LoginRequest{LoginField: "nobody", Password: "whatever1"})
	wantErr(t, err, common.ErrUnauthorized)
}
