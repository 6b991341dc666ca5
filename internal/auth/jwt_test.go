package auth

import (
	"testing"
	"time"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

func testUser() *models.User {
	return &models.User{ID: "user-1", Username: "ada", Email: "ada@example.com"}
}

func TestTokenServiceIssuePairParsesAsAccessAndRefresh(t *testing.T) {
	svc := NewTokenService("test-secret", 0, 0, 0)
	pair, err := svc.IssuePair(testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("expected default 15m access expiry, got %d seconds", pair.ExpiresIn)
	}

	accessClaims, err := svc.Parse(pair.AccessToken, "access")
	if err != nil {
		t.Fatalf("unexpected error parsing access token: %v", err)
	}
	if accessClaims.Subject != "user-1" {
		t.Fatalf("expected subject user-1, got %s", accessClaims.Subject)
	}

	if _, err := svc.Parse(pair.RefreshToken, "access"); err == nil {
		t.Fatalf("expected a refresh token to be rejected when an access token is wanted")
	}
	if _, err := svc.Parse(pair.RefreshToken, "refresh"); err != nil {
		t.Fatalf("unexpected error parsing refresh token: %v", err)
	}
}

func TestTokenServiceParseRejectsWrongSecret(t *testing.T) {
	svc := NewTokenService("secret-a", 0, 0, 0)
	pair, err := svc.IssuePair(testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := NewTokenService("secret-b", 0, 0, 0)
	if _, err := other.Parse(pair.AccessToken, "access"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for a token signed under a different secret, got %v", err)
	}
}

func TestTokenServiceParseRejectsExpiredToken(t *testing.T) {
	svc := NewTokenService("test-secret", -time.Minute, 0, 0)
	pair, err := svc.IssuePair(testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Parse(pair.AccessToken, "access"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for an expired token, got %v", err)
	}
}

func TestPasswordResetTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", 0, 0, 0)
	token, err := svc.CreatePasswordResetToken("ada@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	email, err := svc.VerifyPasswordResetToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email != "ada@example.com" {
		t.Fatalf("expected ada@example.com, got %s", email)
	}
}

func TestPasswordResetTokenRejectedAsAccessToken(t *testing.T) {
	svc := NewTokenService("test-secret", 0, 0, 0)
	token, err := svc.CreatePasswordResetToken("ada@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Parse(token, "access"); err != ErrInvalidToken {
		t.Fatalf("expected a reset token to be rejected as an access token, got %v", err)
	}
}
