package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	a := New("test-secret", time.Hour)

	token, expiresAt, err := a.GenerateDeviceToken("dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(expiresAt) > time.Hour || time.Until(expiresAt) < 59*time.Minute {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.DeviceID != "dev-1" || claims.Role != DeviceRole {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	a := New("secret-a", time.Hour)
	b := New("secret-b", time.Hour)

	token, _, err := a.GenerateDeviceToken("dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.ValidateToken(token); err == nil {
		t.Fatal("token signed with another secret must not validate")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	a := New("test-secret", -time.Minute)

	token, _, err := a.GenerateDeviceToken("dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.ValidateToken(token); err == nil {
		t.Fatal("expired token must not validate")
	}
}
