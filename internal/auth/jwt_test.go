package auth_test

import (
	"context"
	"testing"
	"time"

	"voicechat/backend/internal/auth"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_IssueAndValidate(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", "voicechat-test", time.Hour)
	validator := auth.NewJWTValidator("secret", "voicechat-test")

	token, sessionID, err := issuer.Issue("UA")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	status, err := validator.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, status.Valid)
	assert.Equal(t, sessionID, status.SessionID)
	assert.Equal(t, "UA", status.Country)
}

func TestJWT_RejectsWrongSecretAndIssuer(t *testing.T) {
	token, _, err := auth.NewTokenIssuer("secret", "voicechat-test", time.Hour).Issue("")
	require.NoError(t, err)

	_, err = auth.NewJWTValidator("other", "voicechat-test").Validate(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = auth.NewJWTValidator("secret", "someone-else").Validate(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWT_RejectsExpired(t *testing.T) {
	token, _, err := auth.NewTokenIssuer("secret", "voicechat-test", -time.Minute).Issue("")
	require.NoError(t, err)

	_, err = auth.NewJWTValidator("secret", "voicechat-test").Validate(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWT_UnverifiedSessionIsNotValid(t *testing.T) {
	claims := auth.SessionClaims{
		Verified:         false,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "s1", Issuer: "voicechat-test"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	status, err := auth.NewJWTValidator("secret", "voicechat-test").Validate(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, status.Valid)
}

func TestJWT_MissingToken(t *testing.T) {
	_, err := auth.NewJWTValidator("secret", "x").Validate(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrMissingToken)
}

func TestBypass(t *testing.T) {
	status, err := auth.Bypass.Validate(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, status.Valid)
}
