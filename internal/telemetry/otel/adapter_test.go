package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"tenant-iam/backend/internal/events"
)

type recordCapture struct {
	rec   otellog.Record
	calls int
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
	r.calls++
}

func attributes(rec otellog.Record) map[string]string {
	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	return attrs
}

func TestNewEventPublisher_NilProvider_ReturnsNoop(t *testing.T) {
	p := NewEventPublisher(nil)
	if _, ok := p.(events.Noop); !ok {
		t.Fatalf("NewEventPublisher(nil) = %T, want events.Noop", p)
	}
	if err := p.Publish(context.Background(), events.Event{Name: events.SessionCreated}); err != nil {
		t.Errorf("noop Publish: %v", err)
	}
}

func TestNewEventPublisher_WithProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	if err := NewEventPublisher(provider).Publish(context.Background(), events.Event{Name: events.LoginFailed}); err != nil {
		t.Errorf("Publish: %v", err)
	}
}

func TestPublish_AttributeMapping(t *testing.T) {
	cap := &recordCapture{}
	p := &logPublisher{logger: cap}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := events.Event{
		Name:       events.SessionRevoked,
		TenantID:   "tenant-1",
		UserID:     "user-1",
		SessionID:  "sess-1",
		OccurredAt: at,
		Attributes: map[string]string{"reason": "logout"},
	}
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if cap.calls != 1 {
		t.Fatalf("Emit called %d times", cap.calls)
	}
	if got := cap.rec.Body().AsString(); got != events.SessionRevoked {
		t.Errorf("body = %q", got)
	}
	if !cap.rec.Timestamp().Equal(at) {
		t.Errorf("timestamp = %v, want %v", cap.rec.Timestamp(), at)
	}
	want := map[string]string{
		"event_name": events.SessionRevoked, "tenant_id": "tenant-1", "user_id": "user-1",
		"session_id": "sess-1", "reason": "logout",
	}
	attrs := attributes(cap.rec)
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestPublish_EmptyFieldsOmitted(t *testing.T) {
	cap := &recordCapture{}
	p := &logPublisher{logger: cap}
	before := time.Now().UTC()
	if err := p.Publish(context.Background(), events.Event{Name: events.LoginLocked, TenantID: "t1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	attrs := attributes(cap.rec)
	if _, ok := attrs["user_id"]; ok {
		t.Error("user_id should not be set")
	}
	if _, ok := attrs["session_id"]; ok {
		t.Error("session_id should not be set")
	}
	if cap.rec.Timestamp().Before(before) {
		t.Errorf("timestamp = %v, want >= %v", cap.rec.Timestamp(), before)
	}
}
