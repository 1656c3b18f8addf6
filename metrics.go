package authfront

import "sync/atomic"

// MetricID identifies one orchestrator counter.
type MetricID uint16

const (
	// MetricSignInSuccess counts completed password sign-ins.
	MetricSignInSuccess MetricID = iota
	// MetricSignInFailure counts rejected password sign-ins.
	MetricSignInFailure
	// MetricSignOut counts explicit sign-outs.
	MetricSignOut
	// MetricMFARequired counts sessions entering required_unverified.
	MetricMFARequired
	// MetricMFASuccess counts backend-confirmed verifications.
	MetricMFASuccess
	// MetricMFAFailure counts backend-rejected verification codes.
	MetricMFAFailure
	// MetricLinkStarted counts linking attempts entering the machine.
	MetricLinkStarted
	// MetricLinkResumed counts fresh attempts resumed instead of restarted.
	MetricLinkResumed
	// MetricLinkEmailVerified counts verify_email -> start_oauth advances.
	MetricLinkEmailVerified
	// MetricLinkCompleted counts attempts reaching the terminal step.
	MetricLinkCompleted
	// MetricLinkExpired counts attempts discarded past the TTL.
	MetricLinkExpired
	// MetricLinkFailed counts attempts entering the error step.
	MetricLinkFailed
	// MetricLinkCodeRejected counts linking one-time codes the backend
	// rejected; the attempt stays at verify_email.
	MetricLinkCodeRejected
	// MetricCallbackError counts callbacks carrying a provider error.
	MetricCallbackError
	// MetricCallbackMalformed counts callbacks with no usable parameters.
	MetricCallbackMalformed
	// MetricCodeExchangeSuccess counts successful code-for-session exchanges.
	MetricCodeExchangeSuccess
	// MetricCodeExchangeFailure counts failed exchanges.
	MetricCodeExchangeFailure
	// MetricSessionPollTimeout counts hash callbacks whose session never
	// materialized within the bounded wait.
	MetricSessionPollTimeout
	// MetricGuardRedirect counts non-allow guard decisions.
	MetricGuardRedirect
	// MetricGuardForcedLogout counts guard-forced sign-outs.
	MetricGuardForcedLogout
	// MetricRecoveryCompleted counts attempts auto-completed at startup.
	MetricRecoveryCompleted
	// MetricRecoveryExpired counts attempts auto-expired at startup.
	MetricRecoveryExpired
	// MetricSessionRestored counts startups served from the session mirror
	// because the backend was unreachable.
	MetricSessionRestored

	metricCount
)

// Metrics is a fixed-size set of atomic counters. Inc is wait-free; Snapshot
// copies under no lock.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func newMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// Value returns one counter's current value.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}

// MetricName returns the stable external name for id, used by the exporters.
func MetricName(id MetricID) string {
	switch id {
	case MetricSignInSuccess:
		return "signin_success"
	case MetricSignInFailure:
		return "signin_failure"
	case MetricSignOut:
		return "signout"
	case MetricMFARequired:
		return "mfa_required"
	case MetricMFASuccess:
		return "mfa_success"
	case MetricMFAFailure:
		return "mfa_failure"
	case MetricLinkStarted:
		return "link_started"
	case MetricLinkResumed:
		return "link_resumed"
	case MetricLinkEmailVerified:
		return "link_email_verified"
	case MetricLinkCompleted:
		return "link_completed"
	case MetricLinkExpired:
		return "link_expired"
	case MetricLinkFailed:
		return "link_failed"
	case MetricLinkCodeRejected:
		return "link_code_rejected"
	case MetricCallbackError:
		return "callback_error"
	case MetricCallbackMalformed:
		return "callback_malformed"
	case MetricCodeExchangeSuccess:
		return "code_exchange_success"
	case MetricCodeExchangeFailure:
		return "code_exchange_failure"
	case MetricSessionPollTimeout:
		return "session_poll_timeout"
	case MetricGuardRedirect:
		return "guard_redirect"
	case MetricGuardForcedLogout:
		return "guard_forced_logout"
	case MetricRecoveryCompleted:
		return "recovery_completed"
	case MetricRecoveryExpired:
		return "recovery_expired"
	case MetricSessionRestored:
		return "session_restored"
	default:
		return "unknown"
	}
}

// MetricIDs returns every defined counter ID in declaration order.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, metricCount)
	for id := MetricID(0); id < metricCount; id++ {
		ids = append(ids, id)
	}
	return ids
}
