// Package token signs and verifies the compact HS256 tokens handed to
// clients, and mints access/refresh pairs from them.
//
// Verification is a pure function of (token, secret, clock): there is no
// server-side session table or revocation list.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Option configures a Codec.
type Option func(*Codec)

// WithClock replaces time.Now. Issuance and expiry checks share it.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithLeeway allows exp to be exceeded by d. Zero by default.
func WithLeeway(d time.Duration) Option {
	return func(c *Codec) { c.leeway = d }
}

// WithIssuer stamps and requires the iss claim.
func WithIssuer(iss string) Option {
	return func(c *Codec) { c.issuer = iss }
}

// Codec holds the process-wide signing secret. It is immutable after
// construction and safe for concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
	issuer string
	parser *jwt.Parser
}

func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.leeway < 0 {
		return nil, errors.New("leeway must not be negative")
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
	}
	if c.leeway > 0 {
		popts = append(popts, jwt.WithLeeway(c.leeway))
	}
	if c.issuer != "" {
		popts = append(popts, jwt.WithIssuer(c.issuer))
	}
	c.parser = jwt.NewParser(popts...)
	return c, nil
}

// Sign stamps iat=now and exp=now+ttl onto claims and returns the compact
// token.
func (c *Codec) Sign(claims Claims, ttl time.Duration) (string, error) {
	return c.sign(&claims, ttl)
}

func (c *Codec) sign(claims *Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("invalid ttl %s", ttl)
	}
	if claims.Subject == "" {
		return "", errors.New("claims subject is empty")
	}
	if !claims.Kind.valid() {
		return "", fmt.Errorf("invalid token kind %q", claims.Kind)
	}
	now := c.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if c.issuer != "" {
		claims.Issuer = c.issuer
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", claims.Kind, err)
	}
	return signed, nil
}

// DecodeAndVerify checks the signature, then expiry, then the embedded
// fields. Failures are *Error values.
func (c *Codec) DecodeAndVerify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, newError(ReasonMalformed, errors.New("empty token"))
	}
	tok, err := c.parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, newError(ReasonMalformed, jwt.ErrTokenInvalidClaims)
	}
	if claims.Subject == "" {
		return nil, newError(ReasonMalformed, errors.New("missing subject"))
	}
	if !claims.Kind.valid() {
		return nil, newError(ReasonMalformed, fmt.Errorf("unknown kind %q", claims.Kind))
	}
	if claims.Role < 0 {
		return nil, newError(ReasonMalformed, fmt.Errorf("negative role %d", claims.Role))
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newError(ReasonMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return newError(ReasonBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(ReasonExpired, err)
	default:
		return newError(ReasonMalformed, err)
	}
}
