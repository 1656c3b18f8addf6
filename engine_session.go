package authfront

import "context"

// SignInWithPassword performs primary sign-in. A fresh sign-in always resets
// the MFA machine: a user with enrolled methods lands in
// required_unverified and must verify before protected routes open, even if
// a previous session on this tab was verified.
func (e *Engine) SignInWithPassword(ctx context.Context, email, password string) (*SignInResult, error) {
	if e == nil || e.backend == nil || e.flags == nil {
		return nil, ErrEngineNotReady
	}

	result, err := e.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, "", email, "", err, nil)
		return nil, err
	}

	if err := e.applySignedIn(ctx, AuthEvent{
		Type:    EventSignedIn,
		Session: result.Session,
		User:    result.User,
	}); err != nil {
		return nil, err
	}

	e.mu.Lock()
	result.User = cloneUser(e.user)
	result.RequiresMFA = e.mfa.Required()
	e.mu.Unlock()

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventSignInSuccess, true, result.Session.UserID, email, "", nil, nil)
	return result, nil
}

// SignOut invalidates the session wholesale: the backend session, the local
// mirror, and every session-scoped flag. A linking attempt in flight is left
// for its TTL to bound; the flow can also be cancelled explicitly.
func (e *Engine) SignOut(ctx context.Context) error {
	if e == nil || e.backend == nil || e.flags == nil {
		return ErrEngineNotReady
	}

	e.mu.Lock()
	userID := ""
	if e.session != nil {
		userID = e.session.UserID
	}
	e.mu.Unlock()

	if err := e.backend.SignOut(ctx); err != nil {
		return err
	}
	if err := e.applySignedOut(ctx); err != nil {
		return err
	}

	e.metricInc(MetricSignOut)
	e.emitAudit(ctx, auditEventSignOut, true, userID, "", "", nil, nil)
	return nil
}

// forceSignOut is the guard-triggered variant used for password-change and
// forced-logout flags. Backend failures are not fatal here: the local state
// is torn down regardless so the user cannot keep a poisoned session.
func (e *Engine) forceSignOut(ctx context.Context) {
	_ = e.backend.SignOut(ctx)
	_ = e.applySignedOut(ctx)
	_ = e.flags.Clear(ctx, FlagForceLogout, ScopeDurable)
	_ = e.flags.Clear(ctx, FlagPasswordChanged, ScopeDurable)

	e.metricInc(MetricGuardForcedLogout)
	e.emitAudit(ctx, auditEventGuardForcedLogout, true, "", "", "", nil, nil)
}
