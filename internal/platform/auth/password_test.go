package auth

import (
	"errors"
	"testing"
)

func TestHashPassword_MinLength(t *testing.T) {
	if _, err := HashPassword("12345"); err == nil {
		t.Error("expected error for 5-character password")
	}
	if _, err := HashPassword("123456"); err != nil {
		t.Errorf("expected 6-character password to be accepted, got %v", err)
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("triphala")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := CheckPassword(hash, "triphala"); err != nil {
		t.Errorf("expected match, got %v", err)
	}
	if err := CheckPassword(hash, "ashwagandha"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("expected ErrPasswordMismatch, got %v", err)
	}
	if err := CheckPassword("", "anything"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("expected ErrPasswordMismatch for empty hash, got %v", err)
	}
}
