package authfront

import "context"

// recoverLinking reconciles an interrupted linking attempt at process start.
// Three cases:
//
//   - attempt expired: clear unconditionally, no recovery attempted;
//   - a live session already exists for the attempt's email, meaning the
//     provider redirect completed while this tab was unaware: finish the
//     attempt and clear it;
//   - otherwise leave the persisted step as-is for the user to resume
//     manually.
func (e *Engine) recoverLinking(ctx context.Context) error {
	attempt, err := e.attempts.Load(ctx)
	if err != nil {
		return err
	}
	if attempt == nil {
		return nil
	}

	// loadFreshAttempt clears and counts expiry as a side effect.
	fresh, err := e.loadFreshAttempt(ctx)
	if err != nil {
		return err
	}
	if fresh == nil {
		e.metricInc(MetricRecoveryExpired)
		e.emitAudit(ctx, auditEventRecoveryExpired, true, "", attempt.Email, attempt.Provider, nil, nil)
		return nil
	}

	e.mu.Lock()
	sessionEmail := ""
	if e.session != nil {
		sessionEmail = e.session.Email
	}
	e.mu.Unlock()

	if !equalEmail(sessionEmail, fresh.Email) {
		// Nothing to reconcile; the user resumes from the persisted step.
		return nil
	}

	if _, err := e.CompleteLinking(ctx); err != nil {
		// Recovery is best-effort; a failed completion leaves the attempt in
		// its error step for an explicit retry or cancel.
		return nil
	}

	e.metricInc(MetricRecoveryCompleted)
	e.emitAudit(ctx, auditEventRecoveryCompleted, true, "", fresh.Email, fresh.Provider, nil, nil)
	return nil
}
