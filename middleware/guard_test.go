package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/acrelle/authfront"
)

type stubBackend struct {
	session *authfront.Session
	user    *authfront.UserRecord
}

func (s *stubBackend) SignInWithPassword(ctx context.Context, email, password string) (*authfront.SignInResult, error) {
	return nil, nil
}
func (s *stubBackend) SignOut(ctx context.Context) error {
	s.session = nil
	return nil
}
func (s *stubBackend) SendOneTimeCode(ctx context.Context, email string) error { return nil }
func (s *stubBackend) VerifyOneTimeCode(ctx context.Context, email, code string) (*authfront.Session, error) {
	return nil, nil
}
func (s *stubBackend) AuthorizeURL(ctx context.Context, provider, state, redirectTo string) (string, error) {
	return "", nil
}
func (s *stubBackend) ExchangeCode(ctx context.Context, code string) (*authfront.Session, error) {
	return nil, nil
}
func (s *stubBackend) CurrentSession(ctx context.Context) (*authfront.Session, error) {
	return s.session, nil
}
func (s *stubBackend) CurrentUser(ctx context.Context) (*authfront.UserRecord, error) {
	return s.user, nil
}
func (s *stubBackend) UserExists(ctx context.Context, email string) (bool, error) {
	return false, nil
}
func (s *stubBackend) EnrollMFA(ctx context.Context, mfaType string) (*authfront.MfaMethod, error) {
	return nil, nil
}
func (s *stubBackend) VerifyMFA(ctx context.Context, methodID, code string) error { return nil }
func (s *stubBackend) FetchProfile(ctx context.Context, userID string) (*authfront.UserRecord, error) {
	if s.user == nil {
		return nil, nil
	}
	u := *s.user
	return &u, nil
}
func (s *stubBackend) UpsertProfile(ctx context.Context, record *authfront.UserRecord) error {
	return nil
}
func (s *stubBackend) LinkIdentity(ctx context.Context, email, provider, attemptID string) (*authfront.LinkOutcome, error) {
	return &authfront.LinkOutcome{Action: authfront.LinkActionCreated}, nil
}

func guardedEngine(t *testing.T, backend *stubBackend) *authfront.Engine {
	t.Helper()

	engine, err := authfront.New().
		WithFlagStore(authfront.NewMemoryFlagStore()).
		WithBackend(backend).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if err := engine.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return engine
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardRedirectsAnonymousFromProtected(t *testing.T) {
	engine := guardedEngine(t, &stubBackend{})
	handler := Guard(engine)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/dashboard?tab=2", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	location := rec.Header().Get("Location")
	if location != "/login?returnUrl=%2Fdashboard%3Ftab%3D2" {
		t.Fatalf("unexpected redirect target %q", location)
	}
}

func TestGuardAllowsSignedInUser(t *testing.T) {
	backend := &stubBackend{
		session: &authfront.Session{
			UserID:      "u1",
			Email:       "alice@example.com",
			AccessToken: "at",
			ExpiresAt:   time.Now().Add(time.Hour),
		},
		user: &authfront.UserRecord{ID: "u1", Email: "alice@example.com"},
	}
	engine := guardedEngine(t, backend)
	handler := Guard(engine)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set(TabIDHeader, "tab-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGuardAllowsPublicLoginForAnonymous(t *testing.T) {
	engine := guardedEngine(t, &stubBackend{})
	handler := Guard(engine)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGuardNilEngine(t *testing.T) {
	handler := Guard(nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
