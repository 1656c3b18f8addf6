package authfront

import (
	"context"
	"strings"
	"sync"
)

// FlagScope selects the storage tier a flag lives in.
type FlagScope uint8

const (
	// ScopeDurable survives browser restarts. Used for facts that must
	// outlive the tab, e.g. mfaVerified.
	ScopeDurable FlagScope = iota
	// ScopeEphemeral survives only the current tab context. Used for
	// mid-flow continuation state, e.g. the linking attempt.
	ScopeEphemeral
)

// Durable flag keys. Each flag has exactly one owning component; flags are a
// cache of derived truth and the live backend session wins on ambiguity.
const (
	// FlagMFAVerified is owned by the MFA machine. Set on backend
	// confirmation so a reload immediately after verification does not
	// re-prompt; cleared on every fresh sign-in and on sign-out.
	FlagMFAVerified = "mfaVerified"
	// FlagAuthStage is owned by the event reducer; records the last applied
	// stage for reload diagnostics.
	FlagAuthStage = "authStage"
	// FlagPasswordChanged is owned by the password-recovery path. Its
	// presence forces sign-out on the next guard evaluation.
	FlagPasswordChanged = "passwordChanged"
	// FlagForceLogout is owned by the event reducer; same guard effect as
	// FlagPasswordChanged.
	FlagForceLogout = "forceLogout"
	// FlagPasswordResetInProgress is owned by the recovery flow; while set,
	// the reset page is reachable regardless of any other auth state.
	FlagPasswordResetInProgress = "passwordResetInProgress"
)

// Ephemeral flag keys.
const (
	// FlagLinkingFlow holds the encoded LinkingAttempt record. Owned by the
	// linking machine; cleared on completion, cancel, or TTL expiry.
	FlagLinkingFlow = "linkingFlow"
	// FlagLinkingEmail mirrors the attempt email for quick guard reads.
	FlagLinkingEmail = "linkingEmail"
	// FlagLinkingProvider mirrors the attempt provider.
	FlagLinkingProvider = "linkingProvider"
	// FlagLinkingStartedAt mirrors the attempt start time (unix seconds).
	FlagLinkingStartedAt = "linkingStartedAt"
	// FlagSSOAttempt marks that a provider redirect was issued from this
	// tab. Owned by the callback processor; cleared once the callback is
	// processed.
	FlagSSOAttempt = "ssoAttempt"
	// FlagMFASuccess marks a just-completed verification for the landing
	// screen. Owned by the MFA machine.
	FlagMFASuccess = "mfaSuccess"
	// FlagCachedSession holds the encoded Session mirror. Owned by the
	// event reducer.
	FlagCachedSession = "sessionCache"

	// linkingFlagPrefix groups every linking key for ClearAll.
	linkingFlagPrefix = "linking"
)

// FlagStore is the single source of truth for cross-reload auth facts. No
// validation of contents happens here; callers own semantics. Writes are
// immediately visible to reads within the same tab. Cross-tab visibility is
// not guaranteed and must not be relied upon.
type FlagStore interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string, scope FlagScope) (string, bool, error)
	// Set writes the value in the given scope.
	Set(ctx context.Context, key, value string, scope FlagScope) error
	// Clear removes one key. Clearing an absent key is not an error.
	Clear(ctx context.Context, key string, scope FlagScope) error
	// ClearAll removes every key in the scope sharing prefix.
	ClearAll(ctx context.Context, prefix string, scope FlagScope) error
}

// MemoryFlagStore is an in-memory FlagStore for tests and embedded use. It
// honors tab namespacing of the ephemeral scope the same way the redis store
// does.
type MemoryFlagStore struct {
	mu        sync.Mutex
	durable   map[string]string
	ephemeral map[string]string // "<tab>\x00<key>"
}

// NewMemoryFlagStore returns an empty MemoryFlagStore.
func NewMemoryFlagStore() *MemoryFlagStore {
	return &MemoryFlagStore{
		durable:   make(map[string]string),
		ephemeral: make(map[string]string),
	}
}

func (m *MemoryFlagStore) ephemeralKey(ctx context.Context, key string) string {
	return tabIDFromContext(ctx) + "\x00" + key
}

// Get implements FlagStore.
func (m *MemoryFlagStore) Get(ctx context.Context, key string, scope FlagScope) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if scope == ScopeDurable {
		v, ok := m.durable[key]
		return v, ok, nil
	}
	v, ok := m.ephemeral[m.ephemeralKey(ctx, key)]
	return v, ok, nil
}

// Set implements FlagStore.
func (m *MemoryFlagStore) Set(ctx context.Context, key, value string, scope FlagScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if scope == ScopeDurable {
		m.durable[key] = value
		return nil
	}
	m.ephemeral[m.ephemeralKey(ctx, key)] = value
	return nil
}

// Clear implements FlagStore.
func (m *MemoryFlagStore) Clear(ctx context.Context, key string, scope FlagScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if scope == ScopeDurable {
		delete(m.durable, key)
		return nil
	}
	delete(m.ephemeral, m.ephemeralKey(ctx, key))
	return nil
}

// ClearAll implements FlagStore.
func (m *MemoryFlagStore) ClearAll(ctx context.Context, prefix string, scope FlagScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if scope == ScopeDurable {
		for k := range m.durable {
			if strings.HasPrefix(k, prefix) {
				delete(m.durable, k)
			}
		}
		return nil
	}
	tabPrefix := m.ephemeralKey(ctx, prefix)
	for k := range m.ephemeral {
		if strings.HasPrefix(k, tabPrefix) {
			delete(m.ephemeral, k)
		}
	}
	return nil
}
