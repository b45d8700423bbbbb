// Package auth issues and checks the bearer tokens that carry a caller's
// identity and feature grants. Tokens are stateless; any instance that
// shares the secret can validate them.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smartyellow/services/ports"
)

// Issuer is the iss claim of every token.
const Issuer = "smartyellow/services"

// ErrInvalidToken is returned for tokens that fail validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims of a session token.
type Claims struct {
	UserID    string   `json:"uid"`
	Coworkers []string `json:"coworkers,omitempty"`
	Features  []string `json:"features,omitempty"`
	jwt.RegisteredClaims
}

// User returns the caller the claims describe.
func (c *Claims) User() ports.User {
	return ports.User{
		ID:        c.UserID,
		Coworkers: c.Coworkers,
		Features:  c.Features,
	}
}

// TokenService signs and validates session tokens with HS256.
// Safe for concurrent use.
type TokenService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewTokenService creates a token service.
// If secret is empty, a random 32-byte secret is generated.
func NewTokenService(secret string, expiration time.Duration) *TokenService {
	var secretBytes []byte
	if secret == "" {
		secretBytes = make([]byte, 32)
		rand.Read(secretBytes)
	} else {
		secretBytes = []byte(secret)
	}

	if expiration == 0 {
		expiration = 24 * time.Hour
	}

	return &TokenService{
		secret:     secretBytes,
		issuer:     Issuer,
		expiration: expiration,
	}
}

// GenerateToken creates a token for u.
func (s *TokenService) GenerateToken(u ports.User) (string, time.Time, error) {
	if u.ID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		UserID:    u.ID,
		Coworkers: u.Coworkers,
		Features:  u.Features,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// ValidateToken validates a token and returns its claims.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Authenticate returns the caller a valid token identifies.
func (s *TokenService) Authenticate(tokenString string) (ports.User, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return ports.User{}, err
	}
	return claims.User(), nil
}

// RefreshToken issues a new token with the claims of a valid one.
func (s *TokenService) RefreshToken(tokenString string) (string, time.Time, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", time.Time{}, err
	}

	return s.GenerateToken(claims.User())
}

// GenerateSecret generates a random secret suitable for JWT signing.
func GenerateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
