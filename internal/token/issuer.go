package token

import (
	"errors"
	"os"
	"time"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/metrics"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/utilities"
)

// Config is read once at startup and never changes afterwards.
type Config struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Leeway     time.Duration
}

// ConfigFromEnv reads JWT_SECRET_KEY (required), ACCESS_TOKEN_TTL,
// REFRESH_TOKEN_TTL, JWT_ISSUER and JWT_LEEWAY.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Secret:     os.Getenv("JWT_SECRET_KEY"),
		AccessTTL:  utilities.DurationFromEnv("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL: utilities.DurationFromEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		Issuer:     os.Getenv("JWT_ISSUER"),
		Leeway:     utilities.DurationFromEnv("JWT_LEEWAY", 0),
	}
	if cfg.Secret == "" {
		return cfg, ErrMissingSecret
	}
	return cfg, nil
}

// NewCodecFromConfig builds the codec for cfg.
func NewCodecFromConfig(cfg Config, opts ...Option) (*Codec, error) {
	base := []Option{WithLeeway(cfg.Leeway)}
	if cfg.Issuer != "" {
		base = append(base, WithIssuer(cfg.Issuer))
	}
	return NewCodec([]byte(cfg.Secret), append(base, opts...)...)
}

// Issued is one signed token and the lifetime the transport should give it.
type Issued struct {
	Token     string
	Kind      Kind
	TTL       time.Duration
	ExpiresAt time.Time
}

// Pair is returned by a successful login.
type Pair struct {
	Access  Issued
	Refresh Issued
}

// Issuer mints access and refresh tokens with a single codec (and so a
// single secret) for both kinds.
type Issuer struct {
	codec      *Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewIssuer(codec *Codec, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if codec == nil {
		return nil, errors.New("codec is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	return &Issuer{codec: codec, accessTTL: accessTTL, refreshTTL: refreshTTL}, nil
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssuePair signs an access token and a refresh token for uid.
func (i *Issuer) IssuePair(uid string, role int) (Pair, error) {
	access, err := i.issue(NewClaims(uid, role, KindAccess), i.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.issue(NewClaims(uid, role, KindRefresh), i.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// IssueAccessFromRefresh copies subject and role verbatim from verified
// refresh claims. The store is not consulted, so a role change is only seen
// once the refresh token itself expires.
func (i *Issuer) IssueAccessFromRefresh(refresh *Claims) (Issued, error) {
	if refresh == nil || refresh.Kind != KindRefresh {
		return Issued{}, ErrWrongKind
	}
	return i.issue(NewClaims(refresh.Subject, refresh.Role, KindAccess), i.accessTTL)
}

func (i *Issuer) issue(claims Claims, ttl time.Duration) (Issued, error) {
	signed, err := i.codec.sign(&claims, ttl)
	if err != nil {
		return Issued{}, err
	}
	metrics.TokensIssued.WithLabelValues(string(claims.Kind)).Inc()
	return Issued{Token: signed, Kind: claims.Kind, TTL: ttl, ExpiresAt: claims.ExpiresAtTime()}, nil
}
