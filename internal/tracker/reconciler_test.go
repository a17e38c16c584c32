package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/clubworks/reqsync/internal/github"
	"github.com/clubworks/reqsync/internal/storage/memory"
	"github.com/clubworks/reqsync/internal/types"
)

// fakePort scripts external tracker behavior per issue number.
type fakePort struct {
	snapshots  map[int]*github.IssueSnapshot
	nextNumber int
	failCreate bool
	failUpdate bool

	creates int
	updates int
	fetches int
}

var _ OutboundSyncPort = (*fakePort)(nil)

func newFakePort() *fakePort {
	return &fakePort{snapshots: make(map[int]*github.IssueSnapshot), nextNumber: 100}
}

func (f *fakePort) Enabled() bool { return true }

func (f *fakePort) Create(_ context.Context, req *types.DevelopmentRequest) *IssueRef {
	f.creates++
	if f.failCreate {
		return nil
	}
	f.nextNumber++
	f.snapshots[f.nextNumber] = &github.IssueSnapshot{
		State:  "open",
		Labels: github.BuildLabelSet(req.Status, req.Type, req.Priority),
	}
	return &IssueRef{Number: f.nextNumber, URL: "https://example.test/issues"}
}

func (f *fakePort) UpdateDetails(_ context.Context, number int, upd DetailUpdate) *github.Issue {
	f.updates++
	if f.failUpdate {
		return nil
	}
	state := "open"
	if upd.State != nil {
		state = *upd.State
	}
	f.snapshots[number] = &github.IssueSnapshot{State: state, Closed: state == "closed", Labels: upd.Labels}
	return &github.Issue{Number: number, State: state}
}

func (f *fakePort) UpdateStatus(_ context.Context, number int, state string, labels []string) *github.Issue {
	f.updates++
	if f.failUpdate {
		return nil
	}
	f.snapshots[number] = &github.IssueSnapshot{State: state, Closed: state == "closed", Labels: labels}
	return &github.Issue{Number: number, State: state}
}

func (f *fakePort) Close(_ context.Context, number int, _ string) bool {
	if snap, ok := f.snapshots[number]; ok {
		snap.State = "closed"
		snap.Closed = true
	}
	return !f.failUpdate
}

func (f *fakePort) Comment(context.Context, int, string) bool { return true }

func (f *fakePort) FetchStatus(_ context.Context, number int) *github.IssueSnapshot {
	f.fetches++
	return f.snapshots[number]
}

func testReconciler(store *memory.Store, port OutboundSyncPort) *Reconciler {
	r := NewReconciler(store, port)
	r.CallDelay = 0
	return r
}

func linkedRequest(id string, number int, status types.Status) *types.DevelopmentRequest {
	state := github.ToExternalState(status)
	return &types.DevelopmentRequest{
		ID:                  id,
		Title:               "req " + id,
		Type:                types.TypeBug,
		Priority:            types.PriorityMedium,
		Status:              status,
		ExternalIssueNumber: &number,
		ExternalState:       &state,
	}
}

func TestRunOnceWritesOnDrift(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	port := newFakePort()

	if err := store.Create(ctx, linkedRequest("dr-a", 10, types.StatusPending)); err != nil {
		t.Fatal(err)
	}
	port.snapshots[10] = &github.IssueSnapshot{State: "closed", Closed: true, Labels: []string{"status-done"}}

	r := testReconciler(store, port)
	summary, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if summary.Checked != 1 || summary.Updated != 1 || summary.Errors != 0 {
		t.Errorf("summary = %s", summary)
	}

	got, _ := store.Get(ctx, "dr-a")
	if got.Status != types.StatusDone {
		t.Errorf("Status = %q, want done", got.Status)
	}
	if got.ExternalState == nil || *got.ExternalState != "closed" {
		t.Errorf("ExternalState = %v", got.ExternalState)
	}
	if got.LastSyncedAt == nil {
		t.Error("LastSyncedAt not set by drift write")
	}
}

func TestRunOnceSkipsConvergedRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	port := newFakePort()

	if err := store.Create(ctx, linkedRequest("dr-a", 10, types.StatusInProgress)); err != nil {
		t.Fatal(err)
	}
	port.snapshots[10] = &github.IssueSnapshot{State: "open", Labels: []string{"status-in_progress"}}

	r := testReconciler(store, port)
	before, _ := store.Get(ctx, "dr-a")

	summary, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Checked != 1 || summary.Updated != 0 {
		t.Errorf("summary = %s", summary)
	}

	after, _ := store.Get(ctx, "dr-a")
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("converged record was written anyway")
	}
}

func TestDrainOutboxCreatesUnlinked(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	port := newFakePort()

	req := &types.DevelopmentRequest{
		ID: "dr-a", Title: "new", Type: types.TypeFeature,
		Priority: types.PriorityHigh, Status: types.StatusPending, SyncPending: true,
	}
	if err := store.Create(ctx, req); err != nil {
		t.Fatal(err)
	}

	r := testReconciler(store, port)
	summary, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Created != 1 || summary.Errors != 0 {
		t.Errorf("summary = %s", summary)
	}

	got, _ := store.Get(ctx, "dr-a")
	if !got.Linked() {
		t.Fatal("request not linked after drain")
	}
	if got.SyncPending {
		t.Error("sync marker not cleared")
	}
	if got.ExternalIssueURL == nil {
		t.Error("URL not recorded with issue number")
	}
}

func TestDrainOutboxPushesLinkedChanges(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	port := newFakePort()

	req := linkedRequest("dr-a", 10, types.StatusDone)
	req.SyncPending = true
	if err := store.Create(ctx, req); err != nil {
		t.Fatal(err)
	}
	// External side still shows the pre-change status.
	port.snapshots[10] = &github.IssueSnapshot{State: "open", Labels: []string{"status-pending"}}

	r := testReconciler(store, port)
	summary, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Drained != 1 {
		t.Errorf("summary = %s", summary)
	}

	got, _ := store.Get(ctx, "dr-a")
	if got.SyncPending {
		t.Error("sync marker not cleared after push")
	}
	if got.Status != types.StatusDone {
		t.Errorf("local status lost: %q", got.Status)
	}
	if snap := port.snapshots[10]; snap.State != "closed" {
		t.Errorf("external state after drain = %q, want closed", snap.State)
	}
}

// A failed drain must leave the local change authoritative: the stale
// external snapshot may not overwrite it in the same pass.
func TestStaleSnapshotDoesNotOverridePendingPush(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	port := newFakePort()
	port.failUpdate = true

	req := linkedRequest("dr-a", 10, types.StatusDone)
	req.SyncPending = true
	if err := store.Create(ctx, req); err != nil {
		t.Fatal(err)
	}
	port.snapshots[10] = &github.IssueSnapshot{State: "open", Labels: []string{"status-pending"}}

	r := testReconciler(store, port)
	summary, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Errors == 0 {
		t.Error("failed push not counted as error")
	}
	if summary.Updated != 0 {
		t.Errorf("pull pass wrote over a pending push: %s", summary)
	}

	got, _ := store.Get(ctx, "dr-a")
	if got.Status != types.StatusDone {
		t.Errorf("local status overwritten by stale snapshot: %q", got.Status)
	}
	if !got.SyncPending {
		t.Error("sync marker cleared despite failed push")
	}
}

func TestPerItemErrorIsolation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	port := newFakePort()

	if err := store.Create(ctx, linkedRequest("dr-a", 10, types.StatusPending)); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, linkedRequest("dr-b", 20, types.StatusPending)); err != nil {
		t.Fatal(err)
	}
	// No snapshot for issue 10: its fetch fails. Issue 20 has drifted.
	port.snapshots[20] = &github.IssueSnapshot{State: "closed", Closed: true, Labels: []string{"status-cancelled"}}

	r := testReconciler(store, port)
	summary, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Errors != 1 || summary.Updated != 1 {
		t.Errorf("summary = %s", summary)
	}

	got, _ := store.Get(ctx, "dr-b")
	if got.Status != types.StatusCancelled {
		t.Errorf("dr-b not reconciled past dr-a's failure: %q", got.Status)
	}
}

func TestRunOnceLease(t *testing.T) {
	store := memory.New()
	r := testReconciler(store, newFakePort())

	r.inFlight.Store(true)
	_, err := r.RunOnce(context.Background())
	if !errors.Is(err, ErrRunInProgress) {
		t.Errorf("RunOnce() with lease held = %v, want ErrRunInProgress", err)
	}

	r.inFlight.Store(false)
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Errorf("RunOnce() after release = %v", err)
	}
}

func TestRunOnceDisabledPort(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	if err := store.Create(ctx, linkedRequest("dr-a", 10, types.StatusPending)); err != nil {
		t.Fatal(err)
	}

	r := testReconciler(store, NoopPort{})
	summary, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Checked != 0 {
		t.Errorf("disabled port still reconciled: %s", summary)
	}
}

func TestResyncOne(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	port := newFakePort()

	if err := store.Create(ctx, linkedRequest("dr-a", 10, types.StatusPending)); err != nil {
		t.Fatal(err)
	}
	port.snapshots[10] = &github.IssueSnapshot{State: "closed", Closed: true, Labels: []string{"status-done"}}

	unlinked := &types.DevelopmentRequest{
		ID: "dr-b", Title: "local only", Type: types.TypeBug,
		Priority: types.PriorityLow, Status: types.StatusPending,
	}
	if err := store.Create(ctx, unlinked); err != nil {
		t.Fatal(err)
	}

	r := testReconciler(store, port)

	if err := r.ResyncOne(ctx, "dr-a", false); err != nil {
		t.Fatalf("ResyncOne(linked) error: %v", err)
	}
	got, _ := store.Get(ctx, "dr-a")
	if got.Status != types.StatusDone {
		t.Errorf("Status = %q after resync", got.Status)
	}

	if err := r.ResyncOne(ctx, "dr-b", false); err != nil {
		t.Errorf("ResyncOne(unlinked, lenient) = %v, want nil", err)
	}
	if err := r.ResyncOne(ctx, "dr-b", true); !errors.Is(err, ErrNotLinked) {
		t.Errorf("ResyncOne(unlinked, strict) = %v, want ErrNotLinked", err)
	}
}
