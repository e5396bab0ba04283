// Package auth decides whether a connecting client holds a verified session.
package auth

import (
	"context"
	"errors"

	"voicechat/backend/internal/models"
)

var (
	ErrMissingToken = errors.New("auth: missing session token")
	ErrInvalidToken = errors.New("auth: invalid session token")
)

// Validator checks a session token with the identity service. A negative
// answer is reported as Valid=false with a nil error; errors mean the check
// itself could not be made.
type Validator interface {
	Validate(ctx context.Context, token string) (models.SessionStatus, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, token string) (models.SessionStatus, error)

func (f ValidatorFunc) Validate(ctx context.Context, token string) (models.SessionStatus, error) {
	return f(ctx, token)
}

// Bypass admits every token. It is used when phone verification is switched off.
var Bypass = ValidatorFunc(func(_ context.Context, token string) (models.SessionStatus, error) {
	return models.SessionStatus{Valid: true, SessionID: token}, nil
})
