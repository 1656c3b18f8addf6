package authfront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func auditedEngine(t *testing.T, backend *fakeBackend, sink AuditSink) *Engine {
	t.Helper()

	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64

	engine, err := New().
		WithConfig(cfg).
		WithFlagStore(NewMemoryFlagStore()).
		WithBackend(backend).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return engine
}

func collectEvents(t *testing.T, sink *ChannelSink, want int) []AuditEvent {
	t.Helper()

	var events []AuditEvent
	deadline := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case event := <-sink.Events():
			events = append(events, event)
		case <-deadline:
			t.Fatalf("timed out after %d of %d events", len(events), want)
		}
	}
	return events
}

func TestAuditSignInEvents(t *testing.T) {
	backend := newFakeBackend()
	sink := NewChannelSink(64)
	engine := auditedEngine(t, backend, sink)
	initEngine(t, engine)

	ctx := WithClientIP(WithTabID(context.Background(), "tab-9"), "10.0.0.1")
	if _, err := engine.SignInWithPassword(ctx, "alice@example.com", "wrong"); err == nil {
		t.Fatal("expected rejection")
	}
	if _, err := engine.SignInWithPassword(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	engine.Close()

	events := collectEvents(t, sink, 2)
	failure, success := events[0], events[1]

	if failure.EventType != "signin_failure" || failure.Success {
		t.Fatalf("unexpected first event: %+v", failure)
	}
	if failure.Error != string(auditErrInternal) {
		t.Fatalf("expected internal error code, got %q", failure.Error)
	}
	if success.EventType != "signin_success" || !success.Success {
		t.Fatalf("unexpected second event: %+v", success)
	}
	if success.TabID != "tab-9" || success.IP != "10.0.0.1" {
		t.Fatalf("expected context enrichment, got tab=%q ip=%q", success.TabID, success.IP)
	}
	if success.UserID != "u1" || success.Email != "alice@example.com" {
		t.Fatalf("expected identity fields, got %+v", success)
	}
}

func TestAuditErrorCodesMapSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrNoSuchAccount, auditErrNoSuchAccount},
		{ErrInvalidOrExpiredCode, auditErrInvalidCode},
		{ErrProviderConflict, auditErrProviderConflict},
		{ErrSessionExchangeFailed, auditErrSessionExchange},
		{ErrBackendUnavailable, auditErrBackend},
		{ErrMalformedCallback, auditErrMalformedCallback},
		{errors.New("anything else"), auditErrInternal},
	}
	for _, tc := range cases {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Errorf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newMemoryEngine(t, testConfig(), backend) // audit disabled in testConfig
	initEngine(t, engine)

	if _, err := engine.SignInWithPassword(context.Background(), "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	if engine.AuditDropped() != 0 {
		t.Fatal("disabled dispatcher must report zero drops")
	}
}

func TestAuditDropIfFullCountsDrops(t *testing.T) {
	cfg := AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}

	block := make(chan struct{})
	d := newAuditDispatcher(cfg, blockingSink{release: block})
	defer func() {
		close(block)
		d.Close()
	}()

	// Saturate the single-slot buffer, then overflow it.
	for i := 0; i < 8; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "x"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops once the buffer filled")
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Emit(ctx context.Context, event AuditEvent) {
	<-s.release
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		EventType: "signin_success",
		UserID:    "u1",
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{
		EventType: "signout",
		Success:   true,
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("line 1 is not valid JSON: %v", err)
	}
	if decoded.EventType != "signin_success" || decoded.UserID != "u1" {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}

func TestAuditDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16, DropIfFull: false}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "e"})
	}
	d.Close()

	received := 0
	for {
		select {
		case <-sink.Events():
			received++
			if received == 5 {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("expected 5 events after close, got %d", received)
		}
	}
}

func TestAuditMFARequiredEmittedOnEnrolledSignIn(t *testing.T) {
	backend := newFakeBackend()
	backend.user = enrolledUser()
	sink := NewChannelSink(64)
	engine := auditedEngine(t, backend, sink)
	initEngine(t, engine)

	ctx := context.Background()
	if _, err := engine.SignInWithPassword(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	engine.Close()

	events := collectEvents(t, sink, 2)
	required, success := events[0], events[1]

	if required.EventType != "mfa_required" || !required.Success {
		t.Fatalf("unexpected first event: %+v", required)
	}
	if required.UserID != "u1" || required.Email != "alice@example.com" {
		t.Fatalf("expected enrolled user on mfa_required event, got %+v", required)
	}
	if success.EventType != "signin_success" {
		t.Fatalf("unexpected second event: %+v", success)
	}
}
