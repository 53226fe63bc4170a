// Package password hashes and verifies user passwords with argon2id.
//
// Hashes are stored in PHC string format:
//
//	$argon2id$v=19$m=65536,t=8,p=8$<salt>$<hash>
//
// Work is bounded by a weighted semaphore so a burst of logins cannot pin
// every CPU at once.
package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/metrics"
)

// ErrCorruptHash means the stored hash could not be parsed. It is never a
// match and should be logged apart from a wrong password.
var ErrCorruptHash = errors.New("corrupt password hash")

const algorithmID = "argon2id"

// Config holds the argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32
	Workers     int
}

// DefaultConfig mirrors the parameters existing user rows were hashed with.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        8,
		Parallelism: 8,
		KeyLength:   96,
		SaltLength:  16,
		Workers:     runtime.NumCPU(),
	}
}

// ConfigFromEnv overlays HASH_* environment variables on DefaultConfig.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v, ok := uintEnv("HASH_MEMORY_KB", 32); ok {
		cfg.Memory = uint32(v)
	}
	if v, ok := uintEnv("HASH_TIME", 32); ok {
		cfg.Time = uint32(v)
	}
	if v, ok := uintEnv("HASH_PARALLELISM", 8); ok {
		cfg.Parallelism = uint8(v)
	}
	if v, ok := uintEnv("HASH_KEY_LENGTH", 32); ok {
		cfg.KeyLength = uint32(v)
	}
	if v, ok := uintEnv("HASH_WORKERS", 32); ok {
		cfg.Workers = int(v)
	}
	return cfg
}

func uintEnv(key string, bits int) (uint64, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c Config) validate() error {
	switch {
	case c.Memory < 1024:
		return errors.New("password memory must be >= 1024 KiB")
	case c.Time < 1:
		return errors.New("password time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password parallelism must be >= 1")
	case c.KeyLength < 16:
		return errors.New("password key length must be >= 16")
	case c.SaltLength < 16:
		return errors.New("password salt length must be >= 16")
	case c.Workers < 1:
		return errors.New("password workers must be >= 1")
	}
	return nil
}

// Argon2 is safe for concurrent use.
type Argon2 struct {
	cfg  Config
	pool *semaphore.Weighted
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg, pool: semaphore.NewWeighted(int64(cfg.Workers))}, nil
}

// Hash derives a salted argon2id hash of password.
func (a *Argon2) Hash(ctx context.Context, password string) (string, error) {
	salt := make([]byte, a.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	if err := a.pool.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer a.pool.Release(1)

	start := time.Now()
	key := argon2.IDKey([]byte(password), salt, a.cfg.Time, a.cfg.Memory, a.cfg.Parallelism, a.cfg.KeyLength)
	metrics.HashDuration.WithLabelValues("hash").Observe(time.Since(start).Seconds())

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		a.cfg.Memory, a.cfg.Time, a.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. A wrong password is
// (false, nil); an unparseable hash is (false, ErrCorruptHash).
func (a *Argon2) Verify(ctx context.Context, encoded, password string) (bool, error) {
	p, err := decodePHC(encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorruptHash, err)
	}
	if err := a.pool.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer a.pool.Release(1)

	start := time.Now()
	candidate := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.hash))) //nolint:gosec // hash length fits uint32
	metrics.HashDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())

	return subtle.ConstantTimeCompare(p.hash, candidate) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the configured ones. Corrupt hashes never need a rehash here; Verify
// already rejects them.
func (a *Argon2) NeedsRehash(encoded string) bool {
	p, err := decodePHC(encoded)
	if err != nil {
		return false
	}
	return p.memory < a.cfg.Memory ||
		p.time < a.cfg.Time ||
		p.threads < a.cfg.Parallelism ||
		uint32(len(p.hash)) != a.cfg.KeyLength //nolint:gosec
}

type phc struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	hash    []byte
}

func decodePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var p phc
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, fmt.Errorf("parsing parameters: %w", err)
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return nil, errors.New("zero cost parameter")
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("decoding hash: %w", err)
	}
	if len(p.salt) == 0 || len(p.hash) == 0 {
		return nil, errors.New("empty salt or hash")
	}
	return &p, nil
}
