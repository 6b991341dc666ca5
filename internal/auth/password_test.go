package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

func TestHashPasswordRejectsShortPasswords(t *testing.T) {
	if _, err := HashPassword("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestHashAndVerifyArgon2RoundTrip(t *testing.T) {
	encoded, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, needsUpgrade, err := VerifyPassword(encoded, "correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected the correct password to verify")
	}
	if needsUpgrade {
		t.Fatalf("expected a freshly minted argon2id hash to need no upgrade")
	}
}

func TestVerifyPasswordRejectsWrongPassword(t *testing.T) {
	encoded, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, _, err := VerifyPassword(encoded, "wrong password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected an incorrect password to fail verification")
	}
}

func TestVerifyPasswordAcceptsLegacyBcryptAndFlagsUpgrade(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error generating the legacy fixture: %v", err)
	}

	ok, needsUpgrade, err := VerifyPassword(string(hash), "legacy-password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a valid legacy bcrypt hash to verify")
	}
	if !needsUpgrade {
		t.Fatalf("expected a legacy bcrypt hash to be flagged for upgrade")
	}
}

func TestVerifyPasswordRejectsUnrecognizedScheme(t *testing.T) {
	_, _, err := VerifyPassword("not-a-recognized-hash", "anything")
	if err == nil {
		t.Fatalf("expected an unrecognized hash scheme to error")
	}
}

func TestVerifyPasswordPBKDF2LegacyRoundTrip(t *testing.T) {
	encoded := buildPBKDF2Fixture(t, 1000, "hunter2000")

	ok, needsUpgrade, err := VerifyPassword(encoded, "hunter2000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected the matching pbkdf2 password to verify")
	}
	if !needsUpgrade {
		t.Fatalf("expected a legacy pbkdf2 hash to be flagged for upgrade")
	}
}

func TestVerifyPasswordPBKDF2RejectsWrongPassword(t *testing.T) {
	encoded := buildPBKDF2Fixture(t, 1000, "hunter2000")

	ok, _, err := VerifyPassword(encoded, "wrong-password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected a mismatched pbkdf2 password to fail verification")
	}
}

// buildPBKDF2Fixture mints a "$pbkdf2-sha256$<iterations>$<salt-b64>$<hash-b64>"
// fixture in the exact encoding verifyPBKDF2 in password.go expects.
func buildPBKDF2Fixture(t *testing.T, iterations int, plaintext string) string {
	t.Helper()
	salt := []byte("fixed-test-salt!")
	key := pbkdf2.Key([]byte(plaintext), salt, iterations, sha256.Size, sha256.New)
	return fmt.Sprintf("$pbkdf2-sha256$%d$%s$%s",
		iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}
