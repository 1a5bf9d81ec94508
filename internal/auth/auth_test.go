package auth

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/subitlab-buf/sms4-backend/internal/model"
)

func TestPasswordHashAndVerify(t *testing.T) {
	ps := NewPasswordServiceForTest(bcrypt.MinCost)

	hash, err := ps.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash must not equal the plaintext")
	}

	if err := ps.Verify(hash, "correct horse battery staple"); err != nil {
		t.Errorf("Verify() with correct password: %v", err)
	}
	if err := ps.Verify(hash, "wrong"); err == nil {
		t.Error("Verify() with wrong password should fail")
	}
}

func TestPasswordTooLong(t *testing.T) {
	ps := NewPasswordServiceForTest(bcrypt.MinCost)
	long := make([]byte, 73)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := ps.Hash(string(long)); err == nil {
		t.Fatal("passwords over 72 bytes must be rejected")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	ts, err := NewTokenService("test-secret-at-least-16-chars")
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	exp := time.Now().Add(time.Hour)
	token, err := ts.Issue(model.ID(12345), "session-1", &exp)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	accountID, jti, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if accountID != 12345 {
		t.Errorf("account id = %d, want 12345", accountID)
	}
	if jti != "session-1" {
		t.Errorf("jti = %q, want session-1", jti)
	}
}

func TestTokenWithoutExpiry(t *testing.T) {
	ts, _ := NewTokenService("test-secret-at-least-16-chars")

	token, err := ts.Issue(model.ID(1), "forever", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, _, err := ts.Validate(token); err != nil {
		t.Fatalf("tokens without an expiry claim must validate: %v", err)
	}
}

func TestTokenExpired(t *testing.T) {
	ts, _ := NewTokenService("test-secret-at-least-16-chars")

	exp := time.Now().Add(-time.Minute)
	token, err := ts.Issue(model.ID(1), "old", &exp)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, _, err := ts.Validate(token); err == nil {
		t.Fatal("expired token must not validate")
	}
}

func TestTokenWrongSecret(t *testing.T) {
	issuer, _ := NewTokenService("test-secret-at-least-16-chars")
	verifier, _ := NewTokenService("another-secret-16-chars-long")

	token, _ := issuer.Issue(model.ID(1), "x", nil)
	if _, _, err := verifier.Validate(token); err == nil {
		t.Fatal("token signed with a different secret must not validate")
	}
}

func TestShortSecretRejected(t *testing.T) {
	if _, err := NewTokenService("short"); err == nil {
		t.Fatal("short secrets must be rejected")
	}
}

func TestAccountTokenLifecycle(t *testing.T) {
	now := time.Now()
	account := &model.Account{ID: 1, TokenExpirySecs: 60}

	exp := account.AddToken("a", now)
	if exp == nil {
		t.Fatal("expiry should be set for TokenExpirySecs > 0")
	}
	if !account.IsTokenValid("a", now) {
		t.Fatal("freshly added token should be valid")
	}
	if account.IsTokenValid("a", now.Add(2*time.Minute)) {
		t.Fatal("token should expire after its lifetime")
	}

	// Zero means never expires.
	account.TokenExpirySecs = 0
	if exp := account.AddToken("b", now); exp != nil {
		t.Fatal("expiry should be nil for non-expiring tokens")
	}
	if !account.IsTokenValid("b", now.Add(8760*time.Hour)) {
		t.Fatal("non-expiring token should stay valid")
	}

	if err := account.RemoveToken("b", now); err != nil {
		t.Fatalf("RemoveToken() error = %v", err)
	}
	if account.IsTokenValid("b", now) {
		t.Fatal("removed token should not be valid")
	}
	if err := account.RemoveToken("b", now); err == nil {
		t.Fatal("removing an inactive token should fail")
	}
}
