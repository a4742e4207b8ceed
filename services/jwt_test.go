package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolshare/admin_api/shared"
)

func TestVerifyRoundTrip(t *testing.T) {
	svc := NewJWTService("secret")

	token, err := svc.ToJWT("user-1", true, time.Hour)
	require.NoError(t, err)

	verified, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", verified.Subject)
	assert.True(t, verified.IsAdmin)
	assert.WithinDuration(t, time.Now().Add(time.Hour), verified.ExpiresAt, 5*time.Second)
}

func TestVerifyRejects(t *testing.T) {
	svc := NewJWTService("secret")

	expired, err := svc.ToJWT("user-1", true, -time.Minute)
	require.NoError(t, err)

	forged, err := NewJWTService("other").ToJWT("user-1", true, 0)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &CustomClaims{UserID: "user-1", IsAdmin: true}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noSubject, err := svc.ToJWT("", true, 0)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &CustomClaims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":      "",
		"garbage":    "abc.def.ghi",
		"expired":    expired,
		"forged":     forged,
		"no expiry":  noExpiry,
		"no subject": noSubject,
		"alg none":   unsigned,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Verify(token)
			assert.ErrorIs(t, err, shared.ErrInvalidToken)
		})
	}
}

func TestExtractTokenFromHeader(t *testing.T) {
	svc := NewJWTService("secret")

	token, err := svc.ExtractTokenFromHeader("Bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = svc.ExtractTokenFromHeader("")
	assert.Error(t, err)
	_, err = svc.ExtractTokenFromHeader("Token abc")
	assert.Error(t, err)
}

func TestStartRequiresSecret(t *testing.T) {
	assert.Error(t, NewJWTService("").Start())
	assert.NoError(t, NewJWTService("secret").Start())
}
