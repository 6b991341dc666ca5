package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// ErrInvalidToken is returned for any malformed, expired, or wrong-type token.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims extends the registered JWT claims with the fields the gateway needs
// to identify the caller without a store round-trip.
type Claims struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService issues and validates the access/refresh/reset triad, one
// JWTService generalized to three token kinds instead of the reference
// implementation's single login token.
type TokenService struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	resetExpiry   time.Duration
}

// NewTokenService builds a TokenService. Zero durations fall back to the
// gateway's defaults (15m access, 7d refresh, 30m reset).
func NewTokenService(secret string, accessExpiry, refreshExpiry, resetExpiry time.Duration) *TokenService {
	if accessExpiry <= 0 {
		accessExpiry = 15 * time.Minute
	}
	if refreshExpiry <= 0 {
		refreshExpiry = 7 * 24 * time.Hour
	}
	if resetExpiry <= 0 {
		resetExpiry = 30 * time.Minute
	}
	return &TokenService{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		resetExpiry:   resetExpiry,
	}
}

// IssuePair mints an access/refresh token pair for user.
func (s *TokenService) IssuePair(user *models.User) (models.TokenPair, error) {
	access, err := s.issue(user, "access", s.accessExpiry)
	if err != nil {
		return models.TokenPair{}, err
	}
	refresh, err := s.issue(user, "refresh", s.refreshExpiry)
	if err != nil {
		return models.TokenPair{}, err
	}
	return models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessExpiry.Seconds()),
	}, nil
}

func (s *TokenService) issue(user *models.User, tokenType string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: user.Username,
		Email:    user.Email,
		Type:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Parse validates token and checks it carries wantType (e.g. "refresh" on
// the refresh endpoint, "" to accept any type).
func (s *TokenService) Parse(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if wantType != "" && claims.Type != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CreatePasswordResetToken encodes a stateless reset token per §4.8: subject
// is the user's email, type "reset", 30-minute expiry.
func (s *TokenService) CreatePasswordResetToken(email string) (string, error) {
	now := time.Now()
	claims := Claims{
		Type: "reset",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.resetExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign reset token: %w", err)
	}
	return signed, nil
}

// VerifyPasswordResetToken validates a reset token and returns the email it
// was issued for.
func (s *TokenService) VerifyPasswordResetToken(token string) (string, error) {
	claims, err := s.Parse(token, "reset")
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
