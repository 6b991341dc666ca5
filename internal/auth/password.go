package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// ErrPasswordTooShort enforces the §4.8 minimum password length.
var ErrPasswordTooShort = errors.New("auth: password must be at least 8 characters")

// MinPasswordLength is the registration/reset policy floor.
const MinPasswordLength = 8

const (
	schemeArgon2 = "argon2id"
	schemeBcrypt = "bcrypt"
)

// argon2Params are the tuning knobs for the preferred hashing scheme.
// Chosen per the OWASP baseline for argon2id (1 pass, 64MB, 4 lanes).
var argon2Params = struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
}{time: 1, memory: 64 * 1024, threads: 4, keyLen: 32}

// HashPassword hashes plaintext with the preferred scheme (argon2id). The
// encoded form is self-describing so Verify can dispatch on it later even
// after the preferred scheme changes.
func HashPassword(plaintext string) (string, error) {
	if len(plaintext) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(plaintext), salt, argon2Params.time, argon2Params.memory, argon2Params.threads, argon2Params.keyLen)
	encoded := fmt.Sprintf("$%s$v=19$m=%d,t=%d,p=%d$%s$%s",
		schemeArgon2, argon2Params.memory, argon2Params.time, argon2Params.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// VerifyPassword reports whether plaintext matches encoded, and whether the
// stored hash uses a deprecated scheme the caller should re-hash and persist
// under (the §4.8 "upgrade on login" requirement). bcrypt is accepted for
// verification only — new hashes are never produced in that scheme.
func VerifyPassword(encoded, plaintext string) (ok bool, needsUpgrade bool, err error) {
	switch {
	case strings.HasPrefix(encoded, "$"+schemeArgon2+"$"):
		ok, err = verifyArgon2(encoded, plaintext)
		return ok, false, err
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		err = bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plaintext))
		return err == nil, err == nil, nil
	case strings.HasPrefix(encoded, "$pbkdf2-sha256$"):
		ok, err = verifyPBKDF2(encoded, plaintext)
		return ok, true, err
	default:
		return false, false, fmt.Errorf("auth: unrecognized password hash scheme")
	}
}

// verifyPBKDF2 checks a legacy "$pbkdf2-sha256$<iterations>$<salt-b64>$<hash-b64>"
// hash. Only verification is supported; new hashes are never minted in this
// scheme.
func verifyPBKDF2(encoded, plaintext string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		return false, fmt.Errorf("auth: malformed pbkdf2 hash")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil {
		return false, fmt.Errorf("auth: malformed pbkdf2 iterations: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return false, fmt.Errorf("auth: malformed pbkdf2 salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("auth: malformed pbkdf2 hash: %w", err)
	}
	got := pbkdf2.Key([]byte(plaintext), salt, iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func verifyArgon2(encoded, plaintext string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("auth: malformed argon2 hash")
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("auth: malformed argon2 params: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("auth: malformed argon2 salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("auth: malformed argon2 hash: %w", err)
	}
	got := argon2.IDKey([]byte(plaintext), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
