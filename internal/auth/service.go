// Package auth implements the Auth & Session Kernel (§4.8): registration
// with a password policy, login with upgradeable hashes, access/refresh
// token issuance, refresh with blacklist checks, logout that blacklists
// tokens, and stateless password-reset tokens. The token codec is grounded
// on the reference implementation's JWTService (golang-jwt/jwt/v5),
// generalized from one login token to an access/refresh/reset triad.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saptiva-copilot/gateway/internal/apierr"
	"github.com/saptiva-copilot/gateway/internal/store"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// Service implements the full auth lifecycle against a UserStore and a
// token blacklist.
type Service struct {
	users     store.UserStore
	tokens    *TokenService
	blacklist Blacklist
}

// NewService wires the auth kernel's dependencies.
func NewService(users store.UserStore, tokens *TokenService, blacklist Blacklist) *Service {
	return &Service{users: users, tokens: tokens, blacklist: blacklist}
}

// Register normalizes email, enforces the password policy, checks for
// username/email conflicts, and inserts the new user with a hashed password.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)

	if len(password) < MinPasswordLength {
		return nil, apierr.Validation(fmt.Sprintf("la contraseña debe tener al menos %d caracteres", MinPasswordLength))
	}

	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return nil, apierr.Conflict("USERNAME_EXISTS", "el nombre de usuario ya existe")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apierr.Internal(err)
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, apierr.Conflict("DUPLICATE_EMAIL", "el correo ya está registrado")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apierr.Internal(err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, apierr.Validation(err.Error())
	}

	now := time.Now()
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.InsertUser(ctx, user); err != nil {
		return nil, apierr.Internal(err)
	}
	return user, nil
}

// Login resolves identifier (email if it contains "@", username otherwise),
// verifies the password, transparently upgrades a deprecated hash scheme,
// stamps last_login, and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, identifier, password string) (*models.User, models.TokenPair, error) {
	var user *models.User
	var err error
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetUserByEmail(ctx, normalizeEmail(identifier))
	} else {
		user, err = s.users.GetUserByUsername(ctx, strings.TrimSpace(identifier))
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.TokenPair{}, apierr.New("INVALID_CREDENTIALS", 401, "usuario o contraseña incorrectos")
	}
	if err != nil {
		return nil, models.TokenPair{}, apierr.Internal(err)
	}

	ok, needsUpgrade, verr := VerifyPassword(user.PasswordHash, password)
	if verr != nil || !ok {
		return nil, models.TokenPair{}, apierr.New("INVALID_CREDENTIALS", 401, "usuario o contraseña incorrectos")
	}
	if !user.IsActive {
		return nil, models.TokenPair{}, apierr.New("ACCOUNT_INACTIVE", 401, "la cuenta está inactiva")
	}

	if needsUpgrade {
		if newHash, hashErr := HashPassword(password); hashErr == nil {
			user.PasswordHash = newHash
		}
	}
	now := time.Now()
	user.LastLogin = &now
	user.UpdatedAt = now
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, models.TokenPair{}, apierr.Internal(err)
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, models.TokenPair{}, apierr.Internal(err)
	}
	return user, pair, nil
}

// Refresh validates a refresh token (rejecting blacklisted, wrong-type, or
// inactive-user tokens) and issues a new token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.User, models.TokenPair, error) {
	if blacklisted, err := s.blacklist.Contains(ctx, refreshToken); err != nil {
		return nil, models.TokenPair{}, apierr.Internal(err)
	} else if blacklisted {
		return nil, models.TokenPair{}, apierr.New("INVALID_TOKEN", 401, "el token ha sido revocado")
	}

	claims, err := s.tokens.Parse(refreshToken, "refresh")
	if err != nil {
		return nil, models.TokenPair{}, apierr.New("INVALID_TOKEN", 401, "token inválido o expirado")
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.TokenPair{}, apierr.New("INVALID_TOKEN", 401, "usuario no encontrado")
	}
	if err != nil {
		return nil, models.TokenPair{}, apierr.Internal(err)
	}
	if !user.IsActive {
		return nil, models.TokenPair{}, apierr.New("ACCOUNT_INACTIVE", 401, "la cuenta está inactiva")
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, models.TokenPair{}, apierr.Internal(err)
	}
	return user, pair, nil
}

// Logout blacklists both the access and refresh tokens until their own
// expiry, so neither can be replayed even though JWTs are stateless.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	for _, token := range []string{accessToken, refreshToken} {
		if token == "" {
			continue
		}
		ttl := time.Minute
		if claims, err := s.tokens.Parse(token, ""); err == nil && claims.ExpiresAt != nil {
			if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 {
				ttl = remaining
			}
		}
		if err := s.blacklist.Add(ctx, token, ttl); err != nil {
			return apierr.Internal(err)
		}
	}
	return nil
}

// RequestPasswordReset always succeeds from the caller's point of view
// (avoids email enumeration); it returns the reset token only when the
// account exists, for the caller (e.g. an SMTP collaborator) to deliver.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, bool) {
	email = normalizeEmail(email)
	if _, err := s.users.GetUserByEmail(ctx, email); err != nil {
		return "", false
	}
	token, err := s.tokens.CreatePasswordResetToken(email)
	if err != nil {
		return "", false
	}
	return token, true
}

// ResetPassword verifies a reset token and overwrites the account's
// password hash.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	email, err := s.tokens.VerifyPasswordResetToken(token)
	if err != nil {
		return apierr.New("INVALID_TOKEN", 400, "el enlace de restablecimiento es inválido o expiró")
	}
	if len(newPassword) < MinPasswordLength {
		return apierr.Validation(fmt.Sprintf("la contraseña debe tener al menos %d caracteres", MinPasswordLength))
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return apierr.New("INVALID_TOKEN", 400, "el enlace de restablecimiento es inválido o expiró")
	}
	if err != nil {
		return apierr.Internal(err)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return apierr.Validation(err.Error())
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// Authenticate validates a bearer access token and returns the caller.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	if blacklisted, err := s.blacklist.Contains(ctx, accessToken); err == nil && blacklisted {
		return nil, apierr.New("INVALID_TOKEN", 401, "el token ha sido revocado")
	}
	claims, err := s.tokens.Parse(accessToken, "access")
	if err != nil {
		return nil, apierr.New("INVALID_TOKEN", 401, "token inválido o expirado")
	}
	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apierr.New("INVALID_TOKEN", 401, "usuario no encontrado")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if !user.IsActive {
		return nil, apierr.New("ACCOUNT_INACTIVE", 401, "la cuenta está inactiva")
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
