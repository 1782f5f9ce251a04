package auth

import "testing"

func TestHashPasswordAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("password1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" {
		t.Fatalf("expected non-empty hash")
	}
	if !CheckPassword("password1", hash) {
		t.Fatalf("expected password check to pass")
	}
	if CheckPassword("password2", hash) {
		t.Fatalf("expected password check to fail")
	}
}

func TestHashPasswordIsSalted(t *testing.T) {
	first, err := HashPassword("password1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	second, err := HashPassword("password1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct hashes for the same password")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("password1"); err != nil {
		t.Fatalf("expected valid password, got: %v", err)
	}
	if err := ValidatePassword("short"); err == nil {
		t.Fatalf("expected short password to fail")
	}
}

func TestNewSessionToken(t *testing.T) {
	first := NewSessionToken()
	second := NewSessionToken()
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
	if first == second {
		t.Fatalf("expected independent tokens to differ")
	}
}
