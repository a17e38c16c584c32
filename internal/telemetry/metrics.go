package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics holds the counters for sync activity across all three write
// channels. With telemetry disabled the instruments come from the no-op
// provider and every Add is free.
type SyncMetrics struct {
	WebhookEvents   metric.Int64Counter
	OutboundPushes  metric.Int64Counter
	ReconcileRuns   metric.Int64Counter
	ReconcileWrites metric.Int64Counter
	ReconcileErrors metric.Int64Counter
}

// NewSyncMetrics registers the sync counters against the current provider.
func NewSyncMetrics() *SyncMetrics {
	m := Meter()
	webhookEvents, _ := m.Int64Counter("reqsync.webhook.events",
		metric.WithDescription("Inbound webhook deliveries by outcome"),
	)
	pushes, _ := m.Int64Counter("reqsync.outbound.pushes",
		metric.WithDescription("Outbound tracker calls by operation and outcome"),
	)
	runs, _ := m.Int64Counter("reqsync.reconcile.runs",
		metric.WithDescription("Reconciliation passes completed"),
	)
	writes, _ := m.Int64Counter("reqsync.reconcile.writes",
		metric.WithDescription("Drift corrections written by the reconciler"),
	)
	errs, _ := m.Int64Counter("reqsync.reconcile.errors",
		metric.WithDescription("Per-item reconciliation failures"),
	)
	return &SyncMetrics{
		WebhookEvents:   webhookEvents,
		OutboundPushes:  pushes,
		ReconcileRuns:   runs,
		ReconcileWrites: writes,
		ReconcileErrors: errs,
	}
}

// CountWebhook records one webhook delivery with its outcome
// ("applied", "ignored", "rejected", "error").
func (m *SyncMetrics) CountWebhook(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// CountReconcileRun records one completed reconciliation pass.
func (m *SyncMetrics) CountReconcileRun(ctx context.Context) {
	if m == nil {
		return
	}
	m.ReconcileRuns.Add(ctx, 1)
}

// CountReconcileWrite records one drift correction.
func (m *SyncMetrics) CountReconcileWrite(ctx context.Context) {
	if m == nil {
		return
	}
	m.ReconcileWrites.Add(ctx, 1)
}

// CountReconcileError records one per-item reconciliation failure.
func (m *SyncMetrics) CountReconcileError(ctx context.Context) {
	if m == nil {
		return
	}
	m.ReconcileErrors.Add(ctx, 1)
}

// CountPush records one outbound tracker call.
func (m *SyncMetrics) CountPush(ctx context.Context, op string, ok bool) {
	if m == nil {
		return
	}
	m.OutboundPushes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("ok", ok),
	))
}
