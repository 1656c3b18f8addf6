package authfront

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeBackend is an in-memory Backend with per-call error injection. Every
// mutation is guarded so concurrent engine calls in tests stay race-clean.
type fakeBackend struct {
	mu sync.Mutex

	session  *Session
	user     *UserRecord
	profiles map[string]*UserRecord
	accounts map[string]bool // email -> exists
	password string
	otpCode  string

	signInErr         error
	signOutErr        error
	sendCodeErr       error
	verifyCodeErr     error
	verifyMFAErr      error
	exchangeErr       error
	currentSessionErr error
	linkErr           error
	linkOutcome       *LinkOutcome

	sentCodes       []string
	linkCalls       int
	signOutCalls    int
	exchangeCalls   int
	currentSessions int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		profiles: make(map[string]*UserRecord),
		accounts: make(map[string]bool),
		password: "correct-password-123",
		otpCode:  "123456",
		linkOutcome: &LinkOutcome{
			Action: LinkActionCreated,
		},
	}
}

func (f *fakeBackend) setSession(s *Session, u *UserRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = s
	f.user = u
}

func (f *fakeBackend) SignInWithPassword(ctx context.Context, email, password string) (*SignInResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	if password != f.password {
		return nil, fmt.Errorf("invalid credentials")
	}
	session := testSession("u1", email)
	user := f.user
	if user == nil {
		user = &UserRecord{ID: "u1", Email: email}
	}
	f.session = session
	return &SignInResult{Session: session, User: user, RequiresMFA: user.MFAEnrolled()}, nil
}

func (f *fakeBackend) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.session = nil
	return nil
}

func (f *fakeBackend) SendOneTimeCode(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendCodeErr != nil {
		return f.sendCodeErr
	}
	f.sentCodes = append(f.sentCodes, email)
	return nil
}

func (f *fakeBackend) VerifyOneTimeCode(ctx context.Context, email, code string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyCodeErr != nil {
		return nil, f.verifyCodeErr
	}
	if code != f.otpCode {
		return nil, fmt.Errorf("%w: code mismatch", ErrInvalidOrExpiredCode)
	}
	session := testSession("u1", email)
	f.session = session
	return session, nil
}

func (f *fakeBackend) AuthorizeURL(ctx context.Context, provider, state, redirectTo string) (string, error) {
	return "https://provider.example/authorize?state=" + state, nil
}

func (f *fakeBackend) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchangeCalls++
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	session := testSession("u1", "alice@example.com")
	f.session = session
	return session, nil
}

func (f *fakeBackend) CurrentSession(ctx context.Context) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentSessions++
	if f.currentSessionErr != nil {
		return nil, f.currentSessionErr
	}
	if f.session == nil {
		return nil, nil
	}
	s := *f.session
	return &s, nil
}

func (f *fakeBackend) CurrentUser(ctx context.Context) (*UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user != nil {
		u := *f.user
		return &u, nil
	}
	if f.session == nil {
		return nil, fmt.Errorf("%w: no session", ErrNoSession)
	}
	return &UserRecord{ID: f.session.UserID, Email: f.session.Email}, nil
}

func (f *fakeBackend) UserExists(ctx context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[normalizeEmail(email)], nil
}

func (f *fakeBackend) EnrollMFA(ctx context.Context, mfaType string) (*MfaMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	method := MfaMethod{ID: "m1", Type: mfaType}
	if f.user != nil {
		f.user.MFAMethods = append(f.user.MFAMethods, method)
	}
	return &method, nil
}

func (f *fakeBackend) VerifyMFA(ctx context.Context, methodID, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyMFAErr != nil {
		return f.verifyMFAErr
	}
	if code != f.otpCode {
		return fmt.Errorf("%w: code mismatch", ErrInvalidOrExpiredCode)
	}
	return nil
}

func (f *fakeBackend) FetchProfile(ctx context.Context, userID string) (*UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (f *fakeBackend) UpsertProfile(ctx context.Context, record *UserRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *record
	f.profiles[record.ID] = &clone
	return nil
}

func (f *fakeBackend) LinkIdentity(ctx context.Context, email, provider, attemptID string) (*LinkOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkCalls++
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	out := *f.linkOutcome
	return &out, nil
}

func testSession(userID, email string) *Session {
	return &Session{
		UserID:      userID,
		Email:       email,
		AccessToken: "at-" + userID,
		ExpiresAt:   time.Now().Add(time.Hour).UTC(),
	}
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Callback.SessionPollInterval = 5 * time.Millisecond
	cfg.Callback.SessionPollRetries = 2
	return cfg
}

// newMemoryEngine builds an engine over the in-memory flag store. Initialize
// is left to the test so startup behavior stays observable.
func newMemoryEngine(t *testing.T, cfg Config, backend *fakeBackend) (*Engine, *MemoryFlagStore) {
	t.Helper()

	store := NewMemoryFlagStore()
	engine, err := New().
		WithConfig(cfg).
		WithFlagStore(store).
		WithBackend(backend).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, store
}

// newRedisEngine builds an engine over miniredis for tests exercising the
// redis flag store end to end.
func newRedisEngine(t *testing.T, cfg Config, backend *fakeBackend) (*Engine, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithBackend(backend).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, rdb, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

// initEngine runs Initialize and fails the test on error.
func initEngine(t *testing.T, engine *Engine) {
	t.Helper()
	if err := engine.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
}

// signedInEngine returns an initialized engine holding a live session for
// alice@example.com.
func signedInEngine(t *testing.T, cfg Config, backend *fakeBackend) (*Engine, *MemoryFlagStore) {
	t.Helper()

	backend.setSession(testSession("u1", "alice@example.com"), backend.user)
	engine, store := newMemoryEngine(t, cfg, backend)
	initEngine(t, engine)
	return engine, store
}
