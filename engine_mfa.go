package authfront

import "context"

// RequestMFACode dispatches a one-time code to the session's email for
// email-method verification. TOTP methods generate codes locally and never
// call this.
func (e *Engine) RequestMFACode(ctx context.Context) error {
	if e == nil || e.backend == nil {
		return ErrEngineNotReady
	}

	e.mu.Lock()
	session := e.session
	stage := e.mfa.Stage
	e.mu.Unlock()

	if session == nil {
		return ErrNoSession
	}
	if stage != MfaRequiredUnverified {
		return ErrMFANotRequired
	}
	return e.backend.SendOneTimeCode(ctx, session.Email)
}

// SubmitMFACode submits one verification code for the given enrolled method.
// The machine moves to verifying for the duration of the backend call;
// rejection returns it to required_unverified and the caller may re-prompt
// without a client-side attempt limit — rate limiting is the backend's
// concern, this machine only reports backend-signaled failures.
//
// On confirmation the verified stage is durably persisted so a reload
// immediately afterwards does not re-prompt.
func (e *Engine) SubmitMFACode(ctx context.Context, methodID, code string) error {
	if e == nil || e.backend == nil || e.flags == nil {
		return ErrEngineNotReady
	}

	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return ErrNoSession
	}
	userID := e.session.UserID
	switch e.mfa.Stage {
	case MfaNotRequired, MfaVerified:
		// Verification without an open requirement is rejected outright.
		e.mu.Unlock()
		return ErrMFANotRequired
	case MfaVerifying:
		// A submission is already in flight on this tab.
		e.mu.Unlock()
		return ErrInvalidOrExpiredCode
	}
	e.mfa = MfaState{Stage: MfaVerifying, MethodID: methodID}
	e.mu.Unlock()

	if err := e.backend.VerifyMFA(ctx, methodID, code); err != nil {
		e.mu.Lock()
		e.mfa = MfaState{Stage: MfaRequiredUnverified}
		e.mu.Unlock()

		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, userID, "", "", err, nil)
		// The backend's message carries actionable detail (e.g. rate
		// limiting); pass it through rather than re-wording.
		return err
	}

	if err := e.applyMFAVerified(ctx); err != nil {
		return err
	}
	if err := e.flags.Set(ctx, FlagMFASuccess, "true", ScopeEphemeral); err != nil {
		return err
	}

	e.metricInc(MetricMFASuccess)
	e.emitAudit(ctx, auditEventMFASuccess, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{"method_id": methodID}
	})
	return nil
}

// EnrollMFA enrolls a new factor of the given type and refreshes the
// reconciled user so the new method appears in the role/method snapshot.
func (e *Engine) EnrollMFA(ctx context.Context, mfaType string) (*MfaMethod, error) {
	if e == nil || e.backend == nil {
		return nil, ErrEngineNotReady
	}

	e.mu.Lock()
	hasSession := e.session != nil
	e.mu.Unlock()
	if !hasSession {
		return nil, ErrNoSession
	}

	method, err := e.backend.EnrollMFA(ctx, mfaType)
	if err != nil {
		return nil, err
	}
	if err := e.applyUserUpdated(ctx, AuthEvent{Type: EventUserUpdated}); err != nil {
		return nil, err
	}
	return method, nil
}
