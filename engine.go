package authfront

import (
	"context"
	"errors"
	"sync"
)

// Engine is the authentication and identity-reconciliation orchestrator. It
// coordinates the backend adapter, the MFA and linking state machines, the
// flag registry, and the navigation guard.
//
// Engine methods are safe for concurrent use. State mutations triggered by a
// single backend notification are applied as one atomic batch under the state
// mutex, so the guard never observes a torn read (user set, MFA stage stale).
type Engine struct {
	config   Config
	flags    FlagStore
	backend  Backend
	attempts *linkingAttemptStore
	sessions *sessionCache
	audit    *auditDispatcher
	metrics  *Metrics

	mu          sync.Mutex
	session     *Session
	user        *UserRecord
	mfa         MfaState
	initialized bool
}

// Initialize loads the live session from the backend, reconciles any
// interrupted linking attempt, and arms the navigation guard. It must run
// once per process start before any DecideRoute call; the guard refuses to
// answer earlier so initializing state cannot produce premature redirects.
func (e *Engine) Initialize(ctx context.Context) error {
	if e == nil || e.backend == nil || e.flags == nil {
		return ErrEngineNotReady
	}

	session, err := e.backend.CurrentSession(ctx)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			return e.initializeFromCache(ctx, err)
		}
		return err
	}

	var user *UserRecord
	var mfa MfaState
	if session != nil {
		user, err = e.reconcileUser(ctx, session)
		if err != nil {
			return err
		}
		mfa = e.restoredMFAState(ctx, user)
		if err := e.sessions.save(ctx, session); err != nil {
			return err
		}
	} else {
		if err := e.sessions.clear(ctx); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.session = session
	e.user = user
	e.mfa = mfa
	e.initialized = true
	e.mu.Unlock()

	return e.recoverLinking(ctx)
}

// initializeFromCache arms the guard from the mirrored session when the
// backend is unreachable at startup. The mirror is derived truth: the next
// reachable Initialize or backend notification overwrites everything set
// here. Linking recovery is skipped because completing an attempt needs the
// backend; the persisted attempt stays put for the TTL.
func (e *Engine) initializeFromCache(ctx context.Context, backendErr error) error {
	cached, err := e.sessions.load(ctx)
	if err != nil || cached == nil {
		return backendErr
	}

	mfa := e.mirroredMFAState(ctx)

	e.mu.Lock()
	e.session = cached
	e.user = &UserRecord{ID: cached.UserID, Email: cached.Email}
	e.mfa = mfa
	e.initialized = true
	e.mu.Unlock()

	e.metricInc(MetricSessionRestored)
	return nil
}

// mirroredMFAState restores the stage from the reducer-owned durable flags
// when no live user record is available to inspect for enrolled factors.
func (e *Engine) mirroredMFAState(ctx context.Context) MfaState {
	if v, ok, err := e.flags.Get(ctx, FlagMFAVerified, ScopeDurable); err == nil && ok && v == "true" {
		return MfaState{Stage: MfaVerified}
	}
	if v, ok, err := e.flags.Get(ctx, FlagAuthStage, ScopeDurable); err == nil && ok {
		if stage, known := parseMfaStage(v); known {
			return MfaState{Stage: stage}
		}
	}
	return MfaState{Stage: MfaNotRequired}
}

// Initialized reports whether Initialize has completed.
func (e *Engine) Initialized() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// CurrentSession returns the session snapshot, or nil when signed out.
func (e *Engine) CurrentSession() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	s := *e.session
	return &s
}

// CurrentUser returns the reconciled user snapshot, or nil when signed out.
func (e *Engine) CurrentUser() *UserRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneUser(e.user)
}

// MFAState returns the MFA machine snapshot.
func (e *Engine) MFAState() MfaState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mfa
}

// Close flushes the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// restoredMFAState derives the MFA stage for a session found at startup. The
// durable mfaVerified flag lets a reload immediately after verification skip
// the re-prompt; without it an enrolled user starts unverified.
func (e *Engine) restoredMFAState(ctx context.Context, user *UserRecord) MfaState {
	if !user.MFAEnrolled() {
		return MfaState{Stage: MfaNotRequired}
	}
	if v, ok, err := e.flags.Get(ctx, FlagMFAVerified, ScopeDurable); err == nil && ok && v == "true" {
		return MfaState{Stage: MfaVerified}
	}
	return MfaState{Stage: MfaRequiredUnverified}
}

// reconcileUser merges the backend's bare identity with the profile row,
// creating a minimal profile when none exists. Safe to call repeatedly for
// the same session.
func (e *Engine) reconcileUser(ctx context.Context, session *Session) (*UserRecord, error) {
	user, err := e.backend.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	profile, err := e.backend.FetchProfile(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		profile = &UserRecord{
			ID:    user.ID,
			Email: session.Email,
		}
		if err := e.backend.UpsertProfile(ctx, profile); err != nil {
			return nil, err
		}
	}

	merged := &UserRecord{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: profile.DisplayName,
		Roles:       append([]string(nil), profile.Roles...),
		MFAMethods:  append([]MfaMethod(nil), user.MFAMethods...),
	}
	if merged.Email == "" {
		merged.Email = profile.Email
	}
	return merged, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e.metrics != nil {
		e.metrics.Inc(id)
	}
}

func cloneUser(u *UserRecord) *UserRecord {
	if u == nil {
		return nil
	}
	out := *u
	out.Roles = append([]string(nil), u.Roles...)
	out.MFAMethods = append([]MfaMethod(nil), u.MFAMethods...)
	return &out
}
