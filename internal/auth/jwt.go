package auth

import (
	"context"
	"fmt"
	"time"

	"voicechat/backend/internal/models"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the payload of a signed session token.
type SessionClaims struct {
	Verified bool     `json:"phone_verified"`
	Country  string   `json:"country,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs development session tokens with an HMAC secret.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue creates a verified session with a fresh id and returns its token.
func (i *TokenIssuer) Issue(country string) (token, sessionID string, err error) {
	sessionID = uuid.New().String()
	now := i.now()
	claims := SessionClaims{
		Verified: true,
		Country:  country,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign session token: %w", err)
	}
	return token, sessionID, nil
}

// JWTValidator accepts tokens signed by a TokenIssuer with the same secret.
type JWTValidator struct {
	secret []byte
	issuer string
}

func NewJWTValidator(secret, issuer string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret), issuer: issuer}
}

func (v *JWTValidator) Validate(_ context.Context, token string) (models.SessionStatus, error) {
	if token == "" {
		return models.SessionStatus{}, ErrMissingToken
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(v.issuer))
	if err != nil {
		return models.SessionStatus{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return models.SessionStatus{
		Valid:     claims.Verified,
		SessionID: claims.Subject,
		Country:   claims.Country,
		Scopes:    claims.Scopes,
	}, nil
}
