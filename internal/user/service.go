package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/authz"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/password"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/metrics"
)

// Login input bounds. Requests outside them never reach the store.
const (
	MaxUIDLength      = 20
	MinPasswordLength = 6
)

var (
	// ErrInvalidCredentials covers both an unknown uid and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
)

// PasswordHasher is satisfied by *password.Argon2.
type PasswordHasher interface {
	Hash(ctx context.Context, pw string) (string, error)
	Verify(ctx context.Context, encoded, pw string) (bool, error)
	NeedsRehash(encoded string) bool
}

// Store is satisfied by *repo.UserRepo.
type Store interface {
	FindCredential(ctx context.Context, uid string) (*entity.Credential, error)
	InsertIdentity(ctx context.Context, u *entity.Identity) error
	UpdatePasswordHash(ctx context.Context, uid, hash string) error
	GetProfile(ctx context.Context, uid string) (*entity.Profile, error)
}

// Service orchestrates login, registration and token refresh.
type Service struct {
	store  Store
	hasher PasswordHasher
	codec  *token.Codec
	issuer *token.Issuer
	logger *zap.SugaredLogger
}

// codec and issuer may be nil for callers that only register identities.
func NewService(store Store, hasher PasswordHasher, codec *token.Codec, issuer *token.Issuer, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, hasher: hasher, codec: codec, issuer: issuer, logger: logger}
}

// Login verifies the password and issues an access/refresh pair. Unknown
// uids and wrong passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, uid, pw string) (token.Pair, error) {
	if uid == "" || len(uid) > MaxUIDLength || len(pw) < MinPasswordLength {
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return token.Pair{}, ErrInvalidCredentials
	}

	cred, err := s.store.FindCredential(ctx, uid)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
			return token.Pair{}, ErrInvalidCredentials
		} // avoid user enumeration
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return token.Pair{}, err
	}

	ok, err := s.hasher.Verify(ctx, cred.PasswordHash, pw)
	if err != nil {
		if errors.Is(err, password.ErrCorruptHash) {
			s.logger.Errorw("stored password hash is unreadable", "uid", uid, "err", err)
			metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
			return token.Pair{}, ErrInvalidCredentials
		}
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return token.Pair{}, err
	}
	if !ok {
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return token.Pair{}, ErrInvalidCredentials
	}

	pair, err := s.issuer.IssuePair(cred.UID, cred.Role)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return token.Pair{}, err
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()

	if s.hasher.NeedsRehash(cred.PasswordHash) {
		s.rehash(ctx, uid, pw)
	}
	return pair, nil
}

func (s *Service) rehash(ctx context.Context, uid, pw string) {
	hash, err := s.hasher.Hash(ctx, pw)
	if err == nil {
		err = s.store.UpdatePasswordHash(ctx, uid, hash)
	}
	if err != nil {
		s.logger.Warnw("password rehash failed", "uid", uid, "err", err)
		return
	}
	s.logger.Infow("password rehashed", "uid", uid)
}

// RegisterInput is a new identity with its plaintext password.
type RegisterInput struct {
	UID      string
	Password string
	Role     int
	ChiName  string
	EngName  string
	Email    string
	Form     int
	Class    string
	ClassNo  int
}

// Register hashes the password and creates the identity. A taken uid
// returns repo.ErrDuplicate.
func (s *Service) Register(ctx context.Context, in RegisterInput) error {
	in.UID = strings.TrimSpace(in.UID)
	if in.UID == "" || len(in.UID) > MaxUIDLength {
		return fmt.Errorf("%w: uid must be 1-%d characters", ErrInvalidInput, MaxUIDLength)
	}
	if len(in.Password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	if in.Role < authz.RoleStudent || in.Role > authz.RoleAdmin {
		return fmt.Errorf("%w: unknown role %d", ErrInvalidInput, in.Role)
	}
	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return err
	}
	return s.store.InsertIdentity(ctx, &entity.Identity{
		UID:          in.UID,
		PasswordHash: hash,
		Role:         in.Role,
		ChiName:      in.ChiName,
		EngName:      in.EngName,
		Email:        in.Email,
		Form:         in.Form,
		Class:        in.Class,
		ClassNo:      in.ClassNo,
	})
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is neither rotated nor invalidated.
func (s *Service) Refresh(raw string) (token.Issued, error) {
	if raw == "" {
		return token.Issued{}, fmt.Errorf("%w: missing refresh token", authz.ErrUnauthorized)
	}
	claims, err := s.codec.DecodeAndVerify(raw)
	if err != nil {
		s.logger.Debugw("refresh token rejected", "err", err)
		return token.Issued{}, fmt.Errorf("%w: %w", authz.ErrUnauthorized, err)
	}
	issued, err := s.issuer.IssueAccessFromRefresh(claims)
	if err != nil {
		if errors.Is(err, token.ErrWrongKind) {
			s.logger.Debugw("refresh token rejected", "err", err, "sub", claims.Subject)
			return token.Issued{}, fmt.Errorf("%w: %w", authz.ErrUnauthorized, err)
		}
		return token.Issued{}, err
	}
	return issued, nil
}

// Introspection is the stateless view of a presented token.
type Introspection struct {
	Active    bool       `json:"active"`
	Kind      token.Kind `json:"kind,omitempty"`
	Subject   string     `json:"sub,omitempty"`
	Role      *int       `json:"role,omitempty"`
	ExpiresAt int64      `json:"exp,omitempty"`
	IssuedAt  int64      `json:"iat,omitempty"`
}

// Introspect reports whether raw currently verifies. Failures are reported
// as inactive without a reason.
func (s *Service) Introspect(raw string) Introspection {
	if raw == "" {
		return Introspection{}
	}
	claims, err := s.codec.DecodeAndVerify(raw)
	if err != nil {
		s.logger.Debugw("introspected token inactive", "err", err)
		return Introspection{}
	}
	role := claims.Role
	return Introspection{
		Active:    true,
		Kind:      claims.Kind,
		Subject:   claims.Subject,
		Role:      &role,
		ExpiresAt: unix(claims.ExpiresAtTime()),
		IssuedAt:  unix(claims.IssuedAtTime()),
	}
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// Profile returns the public projection for uid.
func (s *Service) Profile(ctx context.Context, uid string) (*entity.Profile, error) {
	return s.store.GetProfile(ctx, uid)
}
