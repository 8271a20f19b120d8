package auth

import (
	"testing"
	"time"

	"github.com/lora-node/lora-node-agent/internal/config"
)

func testManager(accessTTL time.Duration) *JWTManager {
	return NewJWTManager(&config.JWTConfig{
		Secret:          "unit-test-secret",
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: time.Hour,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	m := testManager(time.Minute)

	access, refresh, err := m.GenerateTokenPair("admin")
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}
	if access == "" || refresh == "" || access == refresh {
		t.Fatal("token pair malformed")
	}

	claims, err := m.ValidateToken(access)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "admin" || claims.Subject != "admin" {
		t.Errorf("claims = %+v, want admin", claims)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	m := testManager(-time.Minute)

	access, _, err := m.GenerateTokenPair("admin")
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}
	if _, err := m.ValidateToken(access); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestWrongSecretRejected(t *testing.T) {
	m := testManager(time.Minute)
	access, _, err := m.GenerateTokenPair("admin")
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	other := testManager(time.Minute)
	other.config.Secret = "different"
	if _, err := other.ValidateToken(access); err == nil {
		t.Fatal("token accepted with wrong secret")
	}
}

func TestRefreshToken(t *testing.T) {
	m := testManager(time.Minute)
	_, refresh, err := m.GenerateTokenPair("admin")
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	access, _, err := m.RefreshToken(refresh)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	claims, err := m.ValidateToken(access)
	if err != nil {
		t.Fatalf("ValidateToken after refresh: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("username = %q, want admin", claims.Username)
	}
}
