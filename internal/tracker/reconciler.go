package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/clubworks/reqsync/internal/github"
	"github.com/clubworks/reqsync/internal/storage"
	"github.com/clubworks/reqsync/internal/telemetry"
	"github.com/clubworks/reqsync/internal/types"
)

// ErrRunInProgress is returned when a pass is requested while the previous
// one is still going.
var ErrRunInProgress = errors.New("reconciliation already running")

// ErrNotLinked is returned by ResyncOne in strict mode for requests without
// an external issue.
var ErrNotLinked = errors.New("request is not linked to an external issue")

// Default timing for the reconciler.
const (
	DefaultInterval     = 15 * time.Minute
	DefaultStartupDelay = 10 * time.Second

	// DefaultCallDelay is inserted between external calls during a bulk
	// pass to avoid bursting the tracker API.
	DefaultCallDelay = 250 * time.Millisecond
)

// Reconciler periodically walks all linked requests, pulls current external
// snapshots and re-applies the status mapping to correct drift. It also
// drains outbox markers left behind by failed outbound pushes.
type Reconciler struct {
	Store storage.RequestStore
	Port  OutboundSyncPort

	Interval     time.Duration
	StartupDelay time.Duration
	CallDelay    time.Duration

	// Callbacks for operator feedback (optional).
	OnMessage func(msg string)
	OnWarning func(msg string)

	Metrics *telemetry.SyncMetrics

	// inFlight is the lease that keeps ticks from overlapping when one
	// pass outlasts the interval.
	inFlight atomic.Bool
}

// NewReconciler creates a reconciler with default timing.
func NewReconciler(store storage.RequestStore, port OutboundSyncPort) *Reconciler {
	return &Reconciler{
		Store:        store,
		Port:         port,
		Interval:     DefaultInterval,
		StartupDelay: DefaultStartupDelay,
		CallDelay:    DefaultCallDelay,
	}
}

// Run executes one pass shortly after start, then one per interval, until
// the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(r.StartupDelay):
	}
	r.runAndReport(ctx)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runAndReport(ctx)
		}
	}
}

func (r *Reconciler) runAndReport(ctx context.Context) {
	summary, err := r.RunOnce(ctx)
	if errors.Is(err, ErrRunInProgress) {
		r.msg("skipping reconciliation pass: previous run still in progress")
		return
	}
	if err != nil {
		r.warn("reconciliation pass failed: %v", err)
		return
	}
	r.msg("reconciliation pass: %s", summary)
}

// RunOnce performs a single reconciliation pass: drain pending outbound
// pushes first, then pull snapshots for every linked request and write back
// only on detected drift. Per-item failures are counted, not propagated.
func (r *Reconciler) RunOnce(ctx context.Context) (*Summary, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.inFlight.Store(false)

	summary := &Summary{}
	if !r.Port.Enabled() {
		return summary, nil
	}

	r.Metrics.CountReconcileRun(ctx)

	// Outbox first: local changes awaiting delivery must land before the
	// pull pass, or a stale snapshot would overwrite them.
	r.drainOutbox(ctx, summary)
	r.pullLinked(ctx, summary)

	return summary, nil
}

// drainOutbox retries the outbound push for every request flagged
// sync_pending: creation for unlinked rows, a full detail push for linked
// ones. Success clears the marker and the recorded sync error.
func (r *Reconciler) drainOutbox(ctx context.Context, summary *Summary) {
	pending, err := r.Store.List(ctx, types.RequestFilter{SyncPending: true})
	if err != nil {
		r.warn("listing pending pushes: %v", err)
		summary.Errors++
		return
	}

	for _, req := range pending {
		if ctx.Err() != nil {
			return
		}

		if !req.Linked() {
			ref := r.Port.Create(ctx, req)
			if ref == nil {
				summary.Errors++
				r.pause(ctx)
				continue
			}
			err = r.Store.Update(ctx, req.ID, map[string]interface{}{
				"external_issue_number": ref.Number,
				"external_issue_url":    ref.URL,
				"external_state":        "open",
				"sync_pending":          false,
				"last_sync_error":       nil,
				"last_synced_at":        time.Now().UTC(),
			})
			if err != nil {
				r.warn("recording external link for %s: %v", req.ID, err)
				summary.Errors++
			} else {
				summary.Created++
			}
			r.pause(ctx)
			continue
		}

		state := github.ToExternalState(req.Status)
		title := req.Title
		body := BuildIssueBody(req)
		issue := r.Port.UpdateDetails(ctx, *req.ExternalIssueNumber, DetailUpdate{
			Title:  &title,
			Body:   &body,
			Labels: github.BuildLabelSet(req.Status, req.Type, req.Priority),
			State:  &state,
		})
		if issue == nil {
			summary.Errors++
			r.pause(ctx)
			continue
		}
		err = r.Store.Update(ctx, req.ID, map[string]interface{}{
			"external_state":  issue.State,
			"sync_pending":    false,
			"last_sync_error": nil,
			"last_synced_at":  time.Now().UTC(),
		})
		if err != nil {
			r.warn("clearing sync marker for %s: %v", req.ID, err)
			summary.Errors++
		} else {
			summary.Drained++
		}
		r.pause(ctx)
	}
}

// pullLinked fetches the current snapshot for every linked request and
// writes status/state back only when they differ from the stored values,
// so no-op cycles never churn updated_at.
func (r *Reconciler) pullLinked(ctx context.Context, summary *Summary) {
	linked, err := r.Store.List(ctx, types.RequestFilter{LinkedOnly: true})
	if err != nil {
		r.warn("listing linked requests: %v", err)
		summary.Errors++
		return
	}

	for _, req := range linked {
		if ctx.Err() != nil {
			return
		}
		// A failed drain leaves the local change authoritative; pulling
		// now would overwrite it with a snapshot we know is behind.
		if req.SyncPending {
			continue
		}

		summary.Checked++
		wrote, err := r.reconcileOne(ctx, req)
		if err != nil {
			r.warn("reconciling %s: %v", req.ID, err)
			r.Metrics.CountReconcileError(ctx)
			summary.Errors++
		} else if wrote {
			summary.Updated++
		}
		r.pause(ctx)
	}
}

// reconcileOne applies one snapshot to one request. Returns true if a drift
// write happened.
func (r *Reconciler) reconcileOne(ctx context.Context, req *types.DevelopmentRequest) (bool, error) {
	snapshot := r.Port.FetchStatus(ctx, *req.ExternalIssueNumber)
	if snapshot == nil {
		return false, fmt.Errorf("no snapshot for issue #%d", *req.ExternalIssueNumber)
	}

	candidate := github.ToLocalStatus(snapshot.State, snapshot.Labels)
	stateChanged := req.ExternalState == nil || *req.ExternalState != snapshot.State
	if candidate == req.Status && !stateChanged {
		return false, nil
	}

	err := r.Store.Update(ctx, req.ID, map[string]interface{}{
		"status":         candidate,
		"external_state": snapshot.State,
		"last_synced_at": time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("writing drift correction: %w", err)
	}
	r.Metrics.CountReconcileWrite(ctx)
	return true, nil
}

// ResyncOne reconciles a single request immediately, bypassing the
// scheduler interval. Unlinked requests are a no-op success unless strict
// is set, in which case they are rejected as invalid input.
func (r *Reconciler) ResyncOne(ctx context.Context, id string, strict bool) error {
	req, err := r.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !req.Linked() {
		if strict {
			return fmt.Errorf("%s: %w", id, ErrNotLinked)
		}
		return nil
	}
	if _, err := r.reconcileOne(ctx, req); err != nil {
		return err
	}
	return nil
}

// pause inserts the inter-call delay during bulk passes.
func (r *Reconciler) pause(ctx context.Context) {
	if r.CallDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(r.CallDelay):
	}
}

func (r *Reconciler) msg(format string, args ...interface{}) {
	if r.OnMessage != nil {
		r.OnMessage(fmt.Sprintf(format, args...))
	}
}

func (r *Reconciler) warn(format string, args ...interface{}) {
	if r.OnWarning != nil {
		r.OnWarning(fmt.Sprintf(format, args...))
	}
}
