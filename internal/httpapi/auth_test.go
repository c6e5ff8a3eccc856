package httpapi

import (
	"testing"
	"time"

	"returndesk/backend/internal/domain"
)

func newTestAuth(t *testing.T) *AuthManager {
	t.Helper()
	return NewAuthManager("unit-test-secret", time.Hour, "903471", nil)
}

func TestTokenRoundTrip(t *testing.T) {
	auth := newTestAuth(t)

	token, err := auth.sign("dana", "admin", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if actor.Username != "dana" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	auth := newTestAuth(t)

	token, err := auth.sign("dana", "admin", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestTokenSignedWithOtherSecretRejected(t *testing.T) {
	auth := newTestAuth(t)
	other := NewAuthManager("a-completely-different-secret", time.Hour, "903471", nil)

	token, err := other.sign("dana", "admin", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected foreign token to be rejected")
	}
}

func TestValidateManagerPIN(t *testing.T) {
	auth := newTestAuth(t)

	if !auth.ValidateManagerPIN("903471") {
		t.Fatalf("correct PIN should validate")
	}
	if auth.ValidateManagerPIN("000000") {
		t.Fatalf("wrong PIN should not validate")
	}
	if auth.ValidateManagerPIN("") {
		t.Fatalf("empty PIN should not validate")
	}
}

func TestCreateCashierValidation(t *testing.T) {
	auth := newTestAuth(t)

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "ab", Password: "longenough"}); err == nil {
		t.Fatalf("short username should be rejected")
	}
	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "newcashier", Password: "123"}); err == nil {
		t.Fatalf("short password should be rejected")
	}

	created, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "NewCashier", Password: "secret6"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Username != "newcashier" || created.Role != "cashier" || !created.Active {
		t.Fatalf("unexpected cashier %+v", created)
	}

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "newcashier", Password: "secret6"}); err == nil {
		t.Fatalf("duplicate username should be rejected")
	}

	cashiers := auth.ListCashiers()
	if len(cashiers) != 1 || cashiers[0].Username != "newcashier" {
		t.Fatalf("unexpected cashier list %+v", cashiers)
	}
}
