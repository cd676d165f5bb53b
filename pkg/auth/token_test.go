package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	token, err := tm.Generate("user-123", "dev@example.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	claims, err := tm.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("subject = %q, want user-123", claims.Subject)
	}
	if claims.Email != "dev@example.com" {
		t.Errorf("email = %q", claims.Email)
	}
}

func TestTokenExpired(t *testing.T) {
	tm := NewTokenManager("test-secret", -time.Minute)
	token, err := tm.Generate("user-123", "dev@example.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := tm.Validate(token); err == nil {
		t.Error("expected expired token to fail validation")
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewTokenManager("secret-a", time.Hour).Generate("user-123", "dev@example.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := NewTokenManager("secret-b", time.Hour).Validate(token); err == nil {
		t.Error("expected wrong-secret token to fail validation")
	}
}

func TestTokenMalformed(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := tm.Validate(token); err == nil {
			t.Errorf("expected malformed token %q to fail", token)
		}
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash must not equal plaintext")
	}
	if !VerifyPassword("correct horse battery staple", hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("wrong password", hash) {
		t.Error("wrong password accepted")
	}
}
