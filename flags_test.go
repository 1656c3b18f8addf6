package authfront

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryFlagStoreDurableAndEphemeralAreDistinct(t *testing.T) {
	store := NewMemoryFlagStore()
	ctx := context.Background()

	if err := store.Set(ctx, FlagMFAVerified, "true", ScopeDurable); err != nil {
		t.Fatalf("Set durable failed: %v", err)
	}
	if err := store.Set(ctx, FlagMFAVerified, "ephemeral-value", ScopeEphemeral); err != nil {
		t.Fatalf("Set ephemeral failed: %v", err)
	}

	durable, ok, err := store.Get(ctx, FlagMFAVerified, ScopeDurable)
	if err != nil || !ok || durable != "true" {
		t.Fatalf("durable read = (%q, %v, %v), want (true, true, nil)", durable, ok, err)
	}
	ephemeral, ok, err := store.Get(ctx, FlagMFAVerified, ScopeEphemeral)
	if err != nil || !ok || ephemeral != "ephemeral-value" {
		t.Fatalf("ephemeral read = (%q, %v, %v)", ephemeral, ok, err)
	}

	if err := store.Clear(ctx, FlagMFAVerified, ScopeEphemeral); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, FlagMFAVerified, ScopeEphemeral); ok {
		t.Fatal("expected ephemeral key cleared")
	}
	if _, ok, _ := store.Get(ctx, FlagMFAVerified, ScopeDurable); !ok {
		t.Fatal("expected durable key to survive ephemeral clear")
	}
}

func TestMemoryFlagStoreEphemeralIsTabScoped(t *testing.T) {
	store := NewMemoryFlagStore()
	tabA := WithTabID(context.Background(), "tab-a")
	tabB := WithTabID(context.Background(), "tab-b")

	if err := store.Set(tabA, FlagSSOAttempt, "attempt-1", ScopeEphemeral); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, ok, _ := store.Get(tabB, FlagSSOAttempt, ScopeEphemeral); ok {
		t.Fatal("expected tab B not to see tab A's ephemeral flag")
	}
	if v, ok, _ := store.Get(tabA, FlagSSOAttempt, ScopeEphemeral); !ok || v != "attempt-1" {
		t.Fatalf("tab A read = (%q, %v)", v, ok)
	}
}

func TestMemoryFlagStoreClearAllPrefix(t *testing.T) {
	store := NewMemoryFlagStore()
	ctx := context.Background()

	for _, key := range []string{FlagLinkingFlow, FlagLinkingEmail, FlagLinkingProvider, FlagLinkingStartedAt} {
		if err := store.Set(ctx, key, "x", ScopeEphemeral); err != nil {
			t.Fatalf("Set %s failed: %v", key, err)
		}
	}
	if err := store.Set(ctx, FlagSSOAttempt, "keep", ScopeEphemeral); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := store.ClearAll(ctx, linkingFlagPrefix, ScopeEphemeral); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	for _, key := range []string{FlagLinkingFlow, FlagLinkingEmail, FlagLinkingProvider, FlagLinkingStartedAt} {
		if _, ok, _ := store.Get(ctx, key, ScopeEphemeral); ok {
			t.Fatalf("expected %s cleared", key)
		}
	}
	if v, ok, _ := store.Get(ctx, FlagSSOAttempt, ScopeEphemeral); !ok || v != "keep" {
		t.Fatalf("expected unrelated key to survive, got (%q, %v)", v, ok)
	}
}

func TestEngineOverRedisStore(t *testing.T) {
	backend := newFakeBackend()
	engine, rdb, done := newRedisEngine(t, testConfig(), backend)
	defer done()
	initEngine(t, engine)
	ctx := WithTabID(context.Background(), "tab-1")

	if _, err := engine.SignInWithPassword(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}

	if n := rdb.Exists(ctx, "af:d:"+FlagAuthStage).Val(); n != 1 {
		t.Fatal("expected durable authStage key in redis")
	}
	if n := rdb.Exists(ctx, "af:e:tab-1:"+FlagCachedSession).Val(); n != 1 {
		t.Fatal("expected tab-scoped session mirror in redis")
	}

	if err := engine.SignOut(ctx); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if n := rdb.Exists(ctx, "af:e:tab-1:"+FlagCachedSession).Val(); n != 0 {
		t.Fatal("expected session mirror deleted on sign-out")
	}
}

func newRedisFlagStore(t *testing.T) (*RedisFlagStore, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisFlagStore(rdb, "af", 0)
	return store, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestRedisFlagStoreRoundTrip(t *testing.T) {
	store, _, done := newRedisFlagStore(t)
	defer done()
	ctx := WithTabID(context.Background(), "tab-1")

	if _, ok, err := store.Get(ctx, FlagAuthStage, ScopeDurable); err != nil || ok {
		t.Fatalf("expected missing key to be (_, false, nil), got ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, FlagAuthStage, "verified", ScopeDurable); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, err := store.Get(ctx, FlagAuthStage, ScopeDurable)
	if err != nil || !ok || v != "verified" {
		t.Fatalf("Get = (%q, %v, %v)", v, ok, err)
	}

	if err := store.Clear(ctx, FlagAuthStage, ScopeDurable); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, FlagAuthStage, ScopeDurable); ok {
		t.Fatal("expected cleared key to be absent")
	}
	// Clearing twice is not an error.
	if err := store.Clear(ctx, FlagAuthStage, ScopeDurable); err != nil {
		t.Fatalf("second Clear failed: %v", err)
	}
}

func TestRedisFlagStoreEphemeralTabNamespacing(t *testing.T) {
	store, rdb, done := newRedisFlagStore(t)
	defer done()

	tabA := WithTabID(context.Background(), "tab-a")
	tabB := WithTabID(context.Background(), "tab-b")

	if err := store.Set(tabA, FlagLinkingEmail, "alice@example.com", ScopeEphemeral); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok, _ := store.Get(tabB, FlagLinkingEmail, ScopeEphemeral); ok {
		t.Fatal("expected no cross-tab visibility")
	}

	if n := rdb.Exists(context.Background(), "af:e:tab-a:"+FlagLinkingEmail).Val(); n != 1 {
		t.Fatal("expected tab-namespaced redis key")
	}
}

func TestRedisFlagStoreClearAll(t *testing.T) {
	store, _, done := newRedisFlagStore(t)
	defer done()
	ctx := WithTabID(context.Background(), "tab-1")

	for _, key := range []string{FlagLinkingFlow, FlagLinkingEmail, FlagLinkingProvider} {
		if err := store.Set(ctx, key, "x", ScopeEphemeral); err != nil {
			t.Fatalf("Set %s failed: %v", key, err)
		}
	}
	if err := store.Set(ctx, FlagMFASuccess, "true", ScopeEphemeral); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := store.ClearAll(ctx, linkingFlagPrefix, ScopeEphemeral); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	for _, key := range []string{FlagLinkingFlow, FlagLinkingEmail, FlagLinkingProvider} {
		if _, ok, _ := store.Get(ctx, key, ScopeEphemeral); ok {
			t.Fatalf("expected %s cleared", key)
		}
	}
	if _, ok, _ := store.Get(ctx, FlagMFASuccess, ScopeEphemeral); !ok {
		t.Fatal("expected non-linking key to survive")
	}
}
