package token

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestIssuer(t *testing.T, clock *fakeClock) (*Codec, *Issuer) {
	t.Helper()
	codec, err := NewCodec([]byte(testSecret), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	issuer, err := NewIssuer(codec, 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	return codec, issuer
}

func TestIssuePairRoundTrip(t *testing.T) {
	clock := newFakeClock()
	codec, issuer := newTestIssuer(t, clock)

	for _, tc := range []struct {
		uid  string
		role int
	}{{"s001", 0}, {"teacher1", 1}, {"admin", 2}} {
		pair, err := issuer.IssuePair(tc.uid, tc.role)
		if err != nil {
			t.Fatalf("IssuePair(%q) error = %v", tc.uid, err)
		}

		access, err := codec.DecodeAndVerify(pair.Access.Token)
		if err != nil {
			t.Fatalf("DecodeAndVerify(access) error = %v", err)
		}
		if access.Subject != tc.uid || access.Role != tc.role || access.Kind != KindAccess {
			t.Errorf("access claims = %+v", access)
		}
		if got := access.ExpiresAtTime().Sub(access.IssuedAtTime()); got != 15*time.Minute {
			t.Errorf("access exp-iat = %v, want 15m", got)
		}
		if !pair.Access.ExpiresAt.Equal(access.ExpiresAtTime()) {
			t.Errorf("Issued.ExpiresAt = %v, claims exp = %v", pair.Access.ExpiresAt, access.ExpiresAtTime())
		}

		refresh, err := codec.DecodeAndVerify(pair.Refresh.Token)
		if err != nil {
			t.Fatalf("DecodeAndVerify(refresh) error = %v", err)
		}
		if refresh.Kind != KindRefresh || refresh.Subject != tc.uid || refresh.Role != tc.role {
			t.Errorf("refresh claims = %+v", refresh)
		}
		if got := refresh.ExpiresAtTime().Sub(refresh.IssuedAtTime()); got != 7*24*time.Hour {
			t.Errorf("refresh exp-iat = %v, want 168h", got)
		}
		if refresh.ID == "" || refresh.ID == access.ID {
			t.Error("each token should carry its own jti")
		}
	}
}

func TestDecodeAndVerifyRejectsEveryMutation(t *testing.T) {
	clock := newFakeClock()
	codec, issuer := newTestIssuer(t, clock)
	pair, err := issuer.IssuePair("s001", 0)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	original := pair.Access.Token
	for i := 0; i < len(original); i++ {
		mutated := []byte(original)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}
		claims, err := codec.DecodeAndVerify(string(mutated))
		if claims != nil {
			t.Fatalf("mutation at %d produced valid claims", i)
		}
		if !errors.Is(err, ErrBadSignature) && !errors.Is(err, ErrMalformed) {
			t.Fatalf("mutation at %d error = %v, want bad signature or malformed", i, err)
		}
	}
}

func TestDecodeAndVerifyExpiry(t *testing.T) {
	clock := newFakeClock()
	codec, issuer := newTestIssuer(t, clock)
	pair, err := issuer.IssuePair("s001", 0)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	clock.Advance(15*time.Minute - time.Second)
	if _, err := codec.DecodeAndVerify(pair.Access.Token); err != nil {
		t.Fatalf("token should still be valid one second before exp: %v", err)
	}

	clock.Advance(time.Second)
	_, err = codec.DecodeAndVerify(pair.Access.Token)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("at exp error = %v, want ErrExpired", err)
	}

	var tokErr *Error
	if !errors.As(err, &tokErr) || tokErr.Reason != ReasonExpired {
		t.Errorf("expected *Error with expired reason, got %v", err)
	}

	if _, err := codec.DecodeAndVerify(pair.Refresh.Token); err != nil {
		t.Errorf("refresh token should outlive access token: %v", err)
	}
}

func TestDecodeAndVerifyLeeway(t *testing.T) {
	clock := newFakeClock()
	codec, err := NewCodec([]byte(testSecret), WithClock(clock.Now), WithLeeway(30*time.Second))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	tok, err := codec.Sign(NewClaims("s001", 0, KindAccess), time.Minute)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	clock.Advance(time.Minute + 10*time.Second)
	if _, err := codec.DecodeAndVerify(tok); err != nil {
		t.Errorf("within leeway error = %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := codec.DecodeAndVerify(tok); !errors.Is(err, ErrExpired) {
		t.Errorf("past leeway error = %v, want ErrExpired", err)
	}
}

func TestDecodeAndVerifyChecksSignatureBeforeExpiry(t *testing.T) {
	clock := newFakeClock()
	other, err := NewCodec([]byte("another-secret"), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	codec, _ := newTestIssuer(t, clock)

	forged, err := other.Sign(NewClaims("s001", 9, KindAccess), time.Minute)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if _, err := codec.DecodeAndVerify(forged); !errors.Is(err, ErrBadSignature) {
		t.Errorf("foreign secret error = %v, want ErrBadSignature", err)
	}

	clock.Advance(time.Hour)
	if _, err := codec.DecodeAndVerify(forged); !errors.Is(err, ErrBadSignature) {
		t.Errorf("expired foreign token error = %v, want ErrBadSignature", err)
	}
}

func TestDecodeAndVerifyRejectsOtherAlgorithms(t *testing.T) {
	clock := newFakeClock()
	codec, _ := newTestIssuer(t, clock)

	claims := NewClaims("s001", 2, KindAccess)
	claims.IssuedAt = jwt.NewNumericDate(clock.Now())
	claims.ExpiresAt = jwt.NewNumericDate(clock.Now().Add(time.Hour))

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign HS512: %v", err)
	}
	if _, err := codec.DecodeAndVerify(hs512); !errors.Is(err, ErrBadSignature) {
		t.Errorf("HS512 error = %v, want ErrBadSignature", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := codec.DecodeAndVerify(none); err == nil {
		t.Error("alg=none token must be rejected")
	}
}

func TestDecodeAndVerifyRejectsIncompleteClaims(t *testing.T) {
	clock := newFakeClock()
	codec, _ := newTestIssuer(t, clock)

	sign := func(c Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	base := func() Claims {
		c := NewClaims("s001", 0, KindAccess)
		c.IssuedAt = jwt.NewNumericDate(clock.Now())
		c.ExpiresAt = jwt.NewNumericDate(clock.Now().Add(time.Hour))
		return c
	}

	noSub := base()
	noSub.Subject = ""
	unknownKind := base()
	unknownKind.Kind = "session"
	noExp := base()
	noExp.ExpiresAt = nil
	negativeRole := base()
	negativeRole.Role = -1

	for name, c := range map[string]Claims{
		"missing subject": noSub,
		"unknown kind":    unknownKind,
		"missing exp":     noExp,
		"negative role":   negativeRole,
	} {
		if _, err := codec.DecodeAndVerify(sign(c)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: error = %v, want ErrMalformed", name, err)
		}
	}

	for _, garbage := range []string{"", "abc", "a.b.c", "a.b"} {
		if _, err := codec.DecodeAndVerify(garbage); !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeAndVerify(%q) error = %v, want ErrMalformed", garbage, err)
		}
	}
}

func TestIssueAccessFromRefresh(t *testing.T) {
	clock := newFakeClock()
	codec, issuer := newTestIssuer(t, clock)
	pair, err := issuer.IssuePair("teacher1", 1)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	refresh, err := codec.DecodeAndVerify(pair.Refresh.Token)
	if err != nil {
		t.Fatalf("DecodeAndVerify() error = %v", err)
	}
	accessClaims, err := codec.DecodeAndVerify(pair.Access.Token)
	if err != nil {
		t.Fatalf("DecodeAndVerify(access) error = %v", err)
	}
	if _, err := issuer.IssueAccessFromRefresh(accessClaims); !errors.Is(err, ErrWrongKind) {
		t.Errorf("access claims as refresh error = %v, want ErrWrongKind", err)
	}

	clock.Advance(time.Hour)
	issued, err := issuer.IssueAccessFromRefresh(refresh)
	if err != nil {
		t.Fatalf("IssueAccessFromRefresh() error = %v", err)
	}
	access, err := codec.DecodeAndVerify(issued.Token)
	if err != nil {
		t.Fatalf("DecodeAndVerify(new access) error = %v", err)
	}
	if access.Subject != "teacher1" || access.Role != 1 || access.Kind != KindAccess {
		t.Errorf("new access claims = %+v", access)
	}
	if issued.TTL != 15*time.Minute {
		t.Errorf("TTL = %v", issued.TTL)
	}

	if _, err := issuer.IssueAccessFromRefresh(nil); !errors.Is(err, ErrWrongKind) {
		t.Errorf("nil claims error = %v, want ErrWrongKind", err)
	}
}

func TestIssuerClaimIsRequiredWhenConfigured(t *testing.T) {
	clock := newFakeClock()
	a, err := NewCodec([]byte(testSecret), WithClock(clock.Now), WithIssuer("ilearn"))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	b, err := NewCodec([]byte(testSecret), WithClock(clock.Now), WithIssuer("other"))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	tok, err := a.Sign(NewClaims("s001", 0, KindAccess), time.Minute)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if _, err := a.DecodeAndVerify(tok); err != nil {
		t.Errorf("same issuer error = %v", err)
	}
	if _, err := b.DecodeAndVerify(tok); err == nil {
		t.Error("expected issuer mismatch to be rejected")
	}
}

func TestConstructorsValidate(t *testing.T) {
	if _, err := NewCodec(nil); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("NewCodec(nil) error = %v, want ErrMissingSecret", err)
	}
	codec, err := NewCodec([]byte(testSecret))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	if _, err := NewIssuer(codec, 0, time.Hour); err == nil {
		t.Error("expected zero access TTL to be rejected")
	}
	if _, err := codec.Sign(NewClaims("s001", 0, KindAccess), 0); err == nil {
		t.Error("expected zero ttl to be rejected")
	}
	if _, err := codec.Sign(NewClaims("", 0, KindAccess), time.Minute); err == nil {
		t.Error("expected empty subject to be rejected")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	if _, err := ConfigFromEnv(); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("missing secret error = %v", err)
	}

	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("ACCESS_TOKEN_TTL", "30m")
	t.Setenv("REFRESH_TOKEN_TTL_SECONDS", "604800")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() error = %v", err)
	}
	if cfg.AccessTTL != 30*time.Minute || cfg.RefreshTTL != 7*24*time.Hour {
		t.Errorf("cfg = %+v", cfg)
	}
	if _, err := NewCodecFromConfig(cfg); err != nil {
		t.Errorf("NewCodecFromConfig() error = %v", err)
	}
}
