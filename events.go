package authfront

import "context"

// AuthEventType enumerates the backend's push-stream notifications. The set
// is closed: every notification folds through one reducer rather than ad hoc
// checks scattered across components.
type AuthEventType uint8

const (
	// EventSignedIn signals a session was established.
	EventSignedIn AuthEventType = iota
	// EventSignedOut signals the session was invalidated.
	EventSignedOut
	// EventMFAChallengeVerified signals the backend confirmed an MFA
	// challenge for the current session.
	EventMFAChallengeVerified
	// EventPasswordRecovery signals a recovery flow started for the current
	// user.
	EventPasswordRecovery
	// EventUserUpdated signals profile or enrollment data changed.
	EventUserUpdated
)

// AuthEvent is one notification from the backend's session-change stream. It
// can arrive at any time, including while an Engine call is in flight, and
// may be re-delivered; applying the same event twice must be a no-op.
type AuthEvent struct {
	Type    AuthEventType
	Session *Session
	User    *UserRecord
}

// ApplyAuthEvent folds one notification into the orchestrator state. The
// whole update is applied as a single atomic batch: the navigation guard
// either sees the state from before the event or from after it, never a
// mixture.
func (e *Engine) ApplyAuthEvent(ctx context.Context, event AuthEvent) error {
	if e == nil || e.backend == nil || e.flags == nil {
		return ErrEngineNotReady
	}

	switch event.Type {
	case EventSignedIn:
		return e.applySignedIn(ctx, event)
	case EventSignedOut:
		return e.applySignedOut(ctx)
	case EventMFAChallengeVerified:
		return e.applyMFAVerified(ctx)
	case EventPasswordRecovery:
		return e.flags.Set(ctx, FlagPasswordResetInProgress, "true", ScopeDurable)
	case EventUserUpdated:
		return e.applyUserUpdated(ctx, event)
	default:
		return nil
	}
}

func (e *Engine) applySignedIn(ctx context.Context, event AuthEvent) error {
	session := event.Session
	if session == nil {
		live, err := e.backend.CurrentSession(ctx)
		if err != nil {
			return err
		}
		session = live
	}
	if session == nil {
		return nil
	}

	// Re-delivery of the same establishment is a no-op.
	e.mu.Lock()
	if e.session != nil && e.session.UserID == session.UserID &&
		e.session.AccessToken == session.AccessToken {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	user := event.User
	if user == nil {
		reconciled, err := e.reconcileUser(ctx, session)
		if err != nil {
			return err
		}
		user = reconciled
	}

	// Verification never carries across independent sessions.
	if err := e.flags.Clear(ctx, FlagMFAVerified, ScopeDurable); err != nil {
		return err
	}

	mfa := MfaState{Stage: MfaNotRequired}
	if user.MFAEnrolled() {
		mfa = MfaState{Stage: MfaRequiredUnverified}
		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, auditEventMFARequired, true, user.ID, user.Email, "", nil, nil)
	}

	if err := e.sessions.save(ctx, session); err != nil {
		return err
	}
	if err := e.flags.Set(ctx, FlagAuthStage, mfa.Stage.String(), ScopeDurable); err != nil {
		return err
	}

	e.mu.Lock()
	e.session = session
	e.user = user
	e.mfa = mfa
	e.mu.Unlock()
	return nil
}

func (e *Engine) applySignedOut(ctx context.Context) error {
	if err := e.sessions.clear(ctx); err != nil {
		return err
	}
	if err := e.flags.Clear(ctx, FlagMFAVerified, ScopeDurable); err != nil {
		return err
	}
	if err := e.flags.Clear(ctx, FlagAuthStage, ScopeDurable); err != nil {
		return err
	}
	if err := e.flags.Clear(ctx, FlagMFASuccess, ScopeEphemeral); err != nil {
		return err
	}

	e.mu.Lock()
	e.session = nil
	e.user = nil
	e.mfa = MfaState{Stage: MfaNotRequired}
	e.mu.Unlock()
	return nil
}

func (e *Engine) applyMFAVerified(ctx context.Context) error {
	e.mu.Lock()
	stage := e.mfa.Stage
	e.mu.Unlock()

	switch stage {
	case MfaVerified:
		// Re-delivery.
		return nil
	case MfaNotRequired:
		// Verification without a requirement is meaningless; drop it.
		return nil
	}

	if err := e.flags.Set(ctx, FlagMFAVerified, "true", ScopeDurable); err != nil {
		return err
	}
	if err := e.flags.Set(ctx, FlagAuthStage, MfaVerified.String(), ScopeDurable); err != nil {
		return err
	}

	e.mu.Lock()
	e.mfa.Stage = MfaVerified
	e.mu.Unlock()
	return nil
}

func (e *Engine) applyUserUpdated(ctx context.Context, event AuthEvent) error {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return nil
	}

	user := event.User
	if user == nil {
		reconciled, err := e.reconcileUser(ctx, session)
		if err != nil {
			return err
		}
		user = reconciled
	}

	// Enrollment lists are replaced wholesale, so a duplicated notification
	// cannot double-append methods.
	e.mu.Lock()
	e.user = cloneUser(user)
	if e.user.MFAEnrolled() && e.mfa.Stage == MfaNotRequired {
		e.mfa.Stage = MfaRequiredUnverified
	}
	e.mu.Unlock()
	return nil
}
