package user

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/authz"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/password"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/database"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	svc   *Service
	repo  *userrepo.UserRepo
	codec *token.Codec
	gate  *authz.Gate
	clock *testClock
}

func fastHasher(t *testing.T, passes uint32) *password.Argon2 {
	t.Helper()
	h, err := password.NewArgon2(password.Config{Memory: 1024, Time: passes, Parallelism: 1, KeyLength: 32, SaltLength: 16, Workers: 4})
	if err != nil {
		t.Fatalf("NewArgon2() error = %v", err)
	}
	return h
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "users.db") + "?_busy_timeout=5000"
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, DSN: dsn})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := userrepo.NewUserRepo(db)
	if err := repo.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}

	clock := &testClock{now: time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)}
	codec, err := token.NewCodec([]byte("user-test-secret"), token.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	issuer, err := token.NewIssuer(codec, 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	return &env{
		svc:   NewService(repo, fastHasher(t, 1), codec, issuer, nil),
		repo:  repo,
		codec: codec,
		gate:  authz.NewGate(codec, nil),
		clock: clock,
	}
}

func (e *env) register(t *testing.T, uid, pw string, role int) {
	t.Helper()
	if err := e.svc.Register(context.Background(), RegisterInput{UID: uid, Password: pw, Role: role, Form: 5, Class: "A"}); err != nil {
		t.Fatalf("Register(%q) error = %v", uid, err)
	}
}

func TestLoginGateExpiryRefresh(t *testing.T) {
	e := newEnv(t)
	e.register(t, "s001", "correct-pw", authz.RoleStudent)
	ctx := context.Background()

	pair, err := e.svc.Login(ctx, "s001", "correct-pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if p, err := e.gate.Check(pair.Access.Token, authz.Requirement{Owner: "s001"}); err != nil || p.UID != "s001" {
		t.Fatalf("Check(access) = %+v, %v", p, err)
	}

	e.clock.Advance(16 * time.Minute)
	if _, err := e.gate.Check(pair.Access.Token, authz.Requirement{Owner: "s001"}); !errors.Is(err, token.ErrExpired) {
		t.Fatalf("Check(expired access) error = %v, want expired", err)
	}

	issued, err := e.svc.Refresh(pair.Refresh.Token)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if issued.Kind != token.KindAccess {
		t.Fatalf("refreshed kind = %q", issued.Kind)
	}
	p, err := e.gate.Check(issued.Token, authz.Requirement{Owner: "s001"})
	if err != nil {
		t.Fatalf("Check(refreshed access) error = %v", err)
	}
	if p.UID != "s001" || p.Role != authz.RoleStudent {
		t.Fatalf("principal = %+v", p)
	}

	// refresh token is not rotated and keeps working until it expires
	if _, err := e.svc.Refresh(pair.Refresh.Token); err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	e.clock.Advance(7 * 24 * time.Hour)
	if _, err := e.svc.Refresh(pair.Refresh.Token); !errors.Is(err, authz.ErrUnauthorized) {
		t.Fatalf("Refresh(expired) error = %v, want unauthorized", err)
	}
}

func TestLoginRejects(t *testing.T) {
	e := newEnv(t)
	e.register(t, "s001", "correct-pw", authz.RoleStudent)
	ctx := context.Background()

	tests := []struct {
		name string
		uid  string
		pw   string
	}{
		{"wrong password", "s001", "wrong-pw"},
		{"unknown uid", "nobody", "correct-pw"},
		{"empty uid", "", "correct-pw"},
		{"uid too long", strings.Repeat("x", MaxUIDLength+1), "correct-pw"},
		{"password too short", "s001", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.svc.Login(ctx, tt.uid, tt.pw); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestLoginCorruptHashFailsClosed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if err := e.repo.InsertIdentity(ctx, &entity.Identity{UID: "broken", PasswordHash: "not-a-phc-string"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := e.svc.Login(ctx, "broken", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginRehashesWeakHash(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "alice-pw", authz.RoleStudent)
	ctx := context.Background()

	stronger := NewService(e.repo, fastHasher(t, 2), e.svc.codec, e.svc.issuer, nil)
	if _, err := stronger.Login(ctx, "alice", "alice-pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	c, err := e.repo.FindCredential(ctx, "alice")
	if err != nil {
		t.Fatalf("FindCredential() error = %v", err)
	}
	if !strings.Contains(c.PasswordHash, ",t=2,") {
		t.Fatalf("hash was not upgraded: %s", c.PasswordHash)
	}
	if _, err := stronger.Login(ctx, "alice", "alice-pw"); err != nil {
		t.Fatalf("Login() after rehash error = %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	e := newEnv(t)
	e.register(t, "bob", "bob-password", authz.RoleStudent)
	pair, err := e.svc.Login(context.Background(), "bob", "bob-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	_, err = e.svc.Refresh(pair.Access.Token)
	if !errors.Is(err, authz.ErrUnauthorized) || !errors.Is(err, token.ErrWrongKind) {
		t.Fatalf("Refresh(access) error = %v, want unauthorized wrong kind", err)
	}
	if _, err := e.svc.Refresh(""); !errors.Is(err, authz.ErrUnauthorized) {
		t.Fatalf("Refresh(\"\") error = %v", err)
	}
	if _, err := e.svc.Refresh("garbage"); !errors.Is(err, authz.ErrUnauthorized) {
		t.Fatalf("Refresh(garbage) error = %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, in := range []RegisterInput{
		{UID: "", Password: "secret1"},
		{UID: strings.Repeat("u", 21), Password: "secret1"},
		{UID: "s002", Password: "short"},
		{UID: "s002", Password: "secret1", Role: -1},
		{UID: "s002", Password: "secret1", Role: 3},
	} {
		if err := e.svc.Register(ctx, in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Register(%+v) error = %v, want ErrInvalidInput", in, err)
		}
	}
	e.register(t, "s002", "secret1", authz.RoleStudent)
	if err := e.svc.Register(ctx, RegisterInput{UID: "s002", Password: "secret2"}); !errors.Is(err, userrepo.ErrDuplicate) {
		t.Fatalf("duplicate Register() error = %v", err)
	}
}

func TestConcurrentRegistration(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	const n = 8
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.svc.Register(ctx, RegisterInput{UID: "s003", Password: "password"})
		}(i)
	}
	wg.Wait()
	var ok, dups int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, userrepo.ErrDuplicate):
			dups++
		default:
			t.Fatalf("Register() error = %v", err)
		}
	}
	if ok != 1 || dups != n-1 {
		t.Fatalf("ok = %d, duplicates = %d", ok, dups)
	}
}

func TestIntrospect(t *testing.T) {
	e := newEnv(t)
	e.register(t, "teacher1", "teacher-pw", authz.RoleTeacher)
	pair, err := e.svc.Login(context.Background(), "teacher1", "teacher-pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	got := e.svc.Introspect(pair.Refresh.Token)
	if !got.Active || got.Kind != token.KindRefresh || got.Subject != "teacher1" || got.Role == nil || *got.Role != 1 {
		t.Fatalf("Introspect(refresh) = %+v", got)
	}
	if got.ExpiresAt-got.IssuedAt != int64((7 * 24 * time.Hour).Seconds()) {
		t.Fatalf("exp - iat = %d", got.ExpiresAt-got.IssuedAt)
	}
	if got := e.svc.Introspect("garbage"); got.Active {
		t.Fatalf("Introspect(garbage) = %+v", got)
	}
}

func TestImportRoster(t *testing.T) {
	e := newEnv(t)
	e.register(t, "s001", "already-here", authz.RoleStudent)
	const doc = `
users:
  - uid: s001
    password: changeme
  - uid: teacher1
    password: changeme
    role: 1
    eng_name: Miss Wong
  - uid: s004
    password: changeme
    chi_name: 李小明
    form: 4
    class: B
    class_no: 3
`
	roster, err := ParseRoster(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseRoster() error = %v", err)
	}
	res, err := e.svc.ImportRoster(context.Background(), roster)
	if err != nil {
		t.Fatalf("ImportRoster() error = %v", err)
	}
	if strings.Join(res.Created, ",") != "teacher1,s004" || strings.Join(res.Duplicates, ",") != "s001" {
		t.Fatalf("result = %+v", res)
	}
	p, err := e.svc.Profile(context.Background(), "s004")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.ClassName() != "4B" || p.ChiName != "李小明" {
		t.Fatalf("profile = %+v", p)
	}
}

func TestParseRosterRejectsUnknownFields(t *testing.T) {
	if _, err := ParseRoster(strings.NewReader("users:\n  - uid: x\n    passwd: y\n")); err == nil {
		t.Fatal("expected error for unknown field")
	}
	r, err := ParseRoster(strings.NewReader(""))
	if err != nil || len(r.Users) != 0 {
		t.Fatalf("empty roster = %+v, %v", r, err)
	}
}
