package auth

import (
	"errors"
	"testing"
	"time"
)

func TestValidateRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	token, err := svc.Generate("user_1", "u@example.com", "Ada", "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != "user_1" {
		t.Errorf("UserID = %q, want user_1", claims.UserID)
	}
	if claims.Email != "u@example.com" {
		t.Errorf("Email = %q, want u@example.com", claims.Email)
	}
	if claims.Role == RoleAdmin {
		t.Error("plain token must not carry the admin role")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	svc := NewJWTService("test-secret", -time.Minute)

	token, err := svc.Generate("user_1", "u@example.com", "Ada", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Validate(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a", time.Hour).Generate("user_1", "", "", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewJWTService("secret-b", time.Hour).Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateGarbage(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	if _, err := svc.Validate("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateAdminRole(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	token, err := svc.Generate("op_1", "ops@example.com", "Op", RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", claims.Role, RoleAdmin)
	}
}
