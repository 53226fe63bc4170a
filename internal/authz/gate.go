// Package authz turns a bearer token into an authorization decision.
//
// The gate holds no mutable state: every call re-verifies the token, so it
// can be shared by all request goroutines without locking.
package authz

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/metrics"
)

// Roles are ordered; a higher value is strictly more privileged.
const (
	RoleStudent = 0
	RoleTeacher = 1
	RoleAdmin   = 2
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Principal is the per-request identity taken from verified access claims.
type Principal struct {
	UID  string
	Role int
}

// Elevated reports whether the principal may act on behalf of other users.
func (p Principal) Elevated() bool { return p.Role > RoleStudent }

// Requirement describes what a request needs. A zero Requirement only needs
// a valid access token.
type Requirement struct {
	// Owner is the uid that owns the targeted resource; empty when the
	// resource is not owned by a single user.
	Owner   string
	MinRole int
}

// Verifier is satisfied by *token.Codec.
type Verifier interface {
	DecodeAndVerify(tokenString string) (*token.Claims, error)
}

type Gate struct {
	verifier Verifier
	logger   *zap.SugaredLogger
}

func NewGate(verifier Verifier, logger *zap.SugaredLogger) *Gate {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gate{verifier: verifier, logger: logger}
}

// Authenticate verifies an access token. Every failure is ErrUnauthorized;
// the codec reason is wrapped for logging but never shown to callers.
func (g *Gate) Authenticate(raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	claims, err := g.verifier.DecodeAndVerify(raw)
	if err != nil {
		g.logger.Debugw("access token rejected", "err", err)
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.Kind != token.KindAccess {
		g.logger.Debugw("access token rejected", "err", token.ErrWrongKind, "kind", claims.Kind, "sub", claims.Subject)
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthorized, token.ErrWrongKind)
	}
	return Principal{UID: claims.Subject, Role: claims.Role}, nil
}

// Authorize applies the ownership and minimum-role policy to p.
func Authorize(p Principal, req Requirement) error {
	if req.Owner != "" && req.Owner != p.UID && !p.Elevated() {
		return fmt.Errorf("%w: %s may not act for %s", ErrForbidden, p.UID, req.Owner)
	}
	if p.Role < req.MinRole {
		return fmt.Errorf("%w: role %d below %d", ErrForbidden, p.Role, req.MinRole)
	}
	return nil
}

// Check runs Authenticate then Authorize and records the decision.
func (g *Gate) Check(raw string, req Requirement) (Principal, error) {
	p, err := g.Authenticate(raw)
	if err != nil {
		metrics.GateDecisions.WithLabelValues("unauthorized").Inc()
		return Principal{}, err
	}
	if err := Authorize(p, req); err != nil {
		metrics.GateDecisions.WithLabelValues("forbidden").Inc()
		return p, err
	}
	metrics.GateDecisions.WithLabelValues("authorized").Inc()
	return p, nil
}
