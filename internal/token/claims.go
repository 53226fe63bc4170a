package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

func (k Kind) valid() bool { return k == KindAccess || k == KindRefresh }

// Claims is the signed payload. Role is copied from the identity record at
// issuance and is not re-read until the next issuance.
type Claims struct {
	Role int  `json:"role"`
	Kind Kind `json:"type"`
	jwt.RegisteredClaims
}

// NewClaims builds unsigned claims for uid.
func NewClaims(uid string, role int, kind Kind) Claims {
	return Claims{
		Role:             role,
		Kind:             kind,
		RegisteredClaims: jwt.RegisteredClaims{Subject: uid},
	}
}

// IssuedAtTime returns the iat claim, or the zero time when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns the exp claim, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
