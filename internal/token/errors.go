package token

import (
	"errors"
	"fmt"
)

// Reason classifies why a token failed verification.
type Reason string

const (
	ReasonBadSignature Reason = "bad_signature"
	ReasonExpired      Reason = "expired"
	ReasonMalformed    Reason = "malformed"
)

// Error is returned by Codec.DecodeAndVerify. Match it with errors.Is against
// ErrBadSignature, ErrExpired or ErrMalformed.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "token " + string(e.Reason)
	}
	return fmt.Sprintf("token %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Reason so wrapped errors compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

var (
	ErrBadSignature = &Error{Reason: ReasonBadSignature}
	ErrExpired      = &Error{Reason: ReasonExpired}
	ErrMalformed    = &Error{Reason: ReasonMalformed}

	// ErrWrongKind is a refresh token presented where an access token is
	// required, or the reverse.
	ErrWrongKind = errors.New("wrong token kind")

	ErrMissingSecret = errors.New("JWT_SECRET_KEY is required")
)

func newError(reason Reason, err error) error {
	return &Error{Reason: reason, Err: err}
}
