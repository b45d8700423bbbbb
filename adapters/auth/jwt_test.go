package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smartyellow/services/adapters/auth"
	"github.com/smartyellow/services/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var editor = ports.User{
	ID:        "u1",
	Coworkers: []string{"u2", "u3"},
	Features:  []string{"smartyellow/services/seeMyServices", "smartyellow/services/editServices"},
}

func TestNewTokenService_EmptySecret(t *testing.T) {
	svc := auth.NewTokenService("", time.Hour)
	require.NotNil(t, svc)

	token, _, err := svc.GenerateToken(editor)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestNewTokenService_DefaultExpiration(t *testing.T) {
	svc := auth.NewTokenService("secret", 0)

	_, expiresAt, err := svc.GenerateToken(editor)
	require.NoError(t, err)

	expected := time.Now().Add(24 * time.Hour)
	assert.WithinDuration(t, expected, expiresAt, time.Minute)
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := auth.NewTokenService("test-secret", time.Hour)

	token, _, err := svc.GenerateToken(editor)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "JWT has three segments")

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, editor, claims.User())
	assert.Equal(t, auth.Issuer, claims.Issuer)
	assert.Equal(t, "u1", claims.Subject)
}

func TestTokenService_Authenticate(t *testing.T) {
	svc := auth.NewTokenService("test-secret", time.Hour)
	token, _, err := svc.GenerateToken(editor)
	require.NoError(t, err)

	u, err := svc.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, editor, u)

	_, err = svc.Authenticate("invalid")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_GenerateWithoutID(t *testing.T) {
	svc := auth.NewTokenService("test-secret", time.Hour)
	_, _, err := svc.GenerateToken(ports.User{})
	assert.Error(t, err)
}

func TestTokenService_ValidateToken_Invalid(t *testing.T) {
	svc := auth.NewTokenService("secret-1", time.Hour)
	other := auth.NewTokenService("secret-2", time.Hour)
	foreign, _, err := other.GenerateToken(editor)
	require.NoError(t, err)

	expired := auth.NewTokenService("secret-1", -time.Hour)
	old, _, err := expired.GenerateToken(editor)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{UserID: "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"empty", ""},
		{"wrong secret", foreign},
		{"expired", old},
		{"unsigned", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.True(t, errors.Is(err, auth.ErrInvalidToken), "got %v", err)
		})
	}
}

func TestTokenService_RefreshToken(t *testing.T) {
	svc := auth.NewTokenService("test-secret", time.Hour)
	token, _, err := svc.GenerateToken(editor)
	require.NoError(t, err)

	refreshed, _, err := svc.RefreshToken(token)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(refreshed)
	require.NoError(t, err)
	assert.Equal(t, editor.Features, claims.Features)

	_, _, err = svc.RefreshToken("invalid")
	assert.Error(t, err)
}

func TestGenerateSecret(t *testing.T) {
	a := auth.GenerateSecret()
	b := auth.GenerateSecret()
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
