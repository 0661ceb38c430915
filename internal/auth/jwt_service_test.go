package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
	require.EqualError(t, err, "jwt: secret must be provided")
}

func TestGenerateAndValidateSessionToken(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:     "super-secret",
		Issuer:     "agent-console",
		SessionTTL: time.Hour,
		Clock:      now,
	})
	require.NoError(t, err)

	token, err := svc.GenerateSessionToken("exe-123", "Dana Reed")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateSessionToken(token)
	require.NoError(t, err)

	require.Equal(t, "exe-123", claims.ExecutiveID)
	require.Equal(t, "Dana Reed", claims.FullName)
	require.Equal(t, "agent-console", claims.Issuer)
	require.True(t, claims.IssuedAt.Time.Equal(current))
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(time.Hour)))
}

func TestValidateSessionTokenInvalidSignature(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC) }

	issuer, err := NewJWTService(JWTConfig{Secret: "issuer-secret", Clock: now})
	require.NoError(t, err)

	token, err := issuer.GenerateSessionToken("exe-123", "")
	require.NoError(t, err)

	verifier, err := NewJWTService(JWTConfig{Secret: "other-secret", Clock: now})
	require.NoError(t, err)

	_, err = verifier.ValidateSessionToken(token)
	require.Error(t, err)
	require.True(t, errors.Is(err, jwt.ErrTokenSignatureInvalid))
}

func TestValidateSessionTokenExpired(t *testing.T) {
	current := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:     "secret",
		SessionTTL: time.Minute,
		Clock:      now,
	})
	require.NoError(t, err)

	token, err := svc.GenerateSessionToken("exe-123", "")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)

	_, err = svc.ValidateSessionToken(token)
	require.Error(t, err)
	require.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestGenerateSessionTokenRequiresExecutive(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)

	_, err = svc.GenerateSessionToken("", "")
	require.Error(t, err)
}
