package httpapi

import (
	"context"
	"testing"
	"time"

	"almofadaria/backend/internal/domain"
)

type fakeUserStore struct {
	users []domain.UserAccount
}

func (f *fakeUserStore) CreateUser(_ context.Context, user domain.UserAccount) error {
	f.users = append(f.users, user)
	return nil
}

func (f *fakeUserStore) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	return f.users, nil
}

func (f *fakeUserStore) UpdateUserPassword(_ context.Context, username string, password string) error {
	for i := range f.users {
		if f.users[i].Username == username {
			f.users[i].Password = password
		}
	}
	return nil
}

func newTestAuth(t *testing.T) (*AuthManager, *fakeUserStore) {
	t.Helper()
	userStore := &fakeUserStore{users: []domain.UserAccount{
		{Username: "admin", Password: "segredo-forte", Role: "admin", Active: true},
		{Username: "inativo", Password: "qualquer-senha", Role: "vendedor", Active: false},
	}}
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, "4 8 15 16", userStore)
	return auth, userStore
}

func TestLoginAndParseToken(t *testing.T) {
	auth, _ := newTestAuth(t)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "segredo-forte"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != "admin" || resp.AccessToken == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	auth, _ := newTestAuth(t)

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "errada"}); err == nil {
		t.Fatalf("wrong password must fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "fantasma", Password: "x"}); err == nil {
		t.Fatalf("unknown user must fail")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	auth, _ := newTestAuth(t)

	if _, err := auth.Login(domain.LoginRequest{Username: "inativo", Password: "qualquer-senha"}); err == nil {
		t.Fatalf("inactive account must fail")
	}
}

func TestBootstrapUpgradesPlainTextPasswords(t *testing.T) {
	_, userStore := newTestAuth(t)

	for _, user := range userStore.users {
		if !isPasswordHash(user.Password) {
			t.Fatalf("password for %s was not upgraded to a hash", user.Username)
		}
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth, _ := newTestAuth(t)

	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("garbage token must fail")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	auth, _ := newTestAuth(t)
	other := NewAuthManager("ffffffffffffffffffffffffffffffff", time.Hour, "4 8 15 16", nil)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "segredo-forte"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("token signed with another secret must fail")
	}
}

func TestValidateManagerPIN(t *testing.T) {
	auth, _ := newTestAuth(t)

	if !auth.ValidateManagerPIN("4 8 15 16") {
		t.Fatalf("correct PIN must validate")
	}
	if auth.ValidateManagerPIN("000000") {
		t.Fatalf("wrong PIN must not validate")
	}
	if auth.ValidateManagerPIN("") {
		t.Fatalf("empty PIN must not validate")
	}
}

func TestAttemptLimiter(t *testing.T) {
	limiter := newAttemptLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("fourth attempt should be blocked")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("limits are per client")
	}
}
