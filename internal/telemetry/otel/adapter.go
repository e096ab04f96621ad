package otel

import (
	"context"
	"sort"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"tenant-iam/backend/internal/events"
)

const instrumentationName = "tenant-iam.events"

// recordEmitter is the part of otellog.Logger used by the publisher.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventPublisher returns an events.Publisher that sends domain events as OTel log records
// via the given LoggerProvider. If provider is nil, returns events.Noop.
func NewEventPublisher(provider *sdklog.LoggerProvider) events.Publisher {
	if provider == nil {
		return events.Noop{}
	}
	return &logPublisher{logger: provider.Logger(instrumentationName)}
}

type logPublisher struct {
	logger recordEmitter
}

// Publish converts the event to a log record. Empty identifiers are omitted.
func (p *logPublisher) Publish(ctx context.Context, e events.Event) error {
	rec := otellog.Record{}
	ts := e.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue(e.Name))
	rec.AddAttributes(otellog.String("event_name", e.Name))
	if e.TenantID != "" {
		rec.AddAttributes(otellog.String("tenant_id", e.TenantID))
	}
	if e.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", e.UserID))
	}
	if e.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", e.SessionID))
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec.AddAttributes(otellog.String(k, e.Attributes[k]))
	}
	p.logger.Emit(ctx, rec)
	return nil
}
