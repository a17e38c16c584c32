// Package tracker keeps development requests consistent with their external
// tracker issues: a best-effort outbound client plus the periodic
// reconciler that corrects drift and drains pending pushes.
package tracker

import (
	"context"

	"github.com/clubworks/reqsync/internal/github"
	"github.com/clubworks/reqsync/internal/types"
)

// IssueRef identifies a freshly created external issue. Number and URL are
// always set together.
type IssueRef struct {
	Number int
	URL    string
}

// DetailUpdate is a partial issue update. Nil fields are left unchanged
// server-side; only explicitly supplied fields are sent.
type DetailUpdate struct {
	Title  *string
	Body   *string
	Labels []string // nil = unchanged, empty slice = clear managed labels
	State  *string
}

// OutboundSyncPort wraps all writes and reads against the external tracker.
//
// Every method is best-effort and non-throwing past this boundary: failures
// resolve to the nil/false sentinel plus a warning, never an error that
// could block the request lifecycle that triggered the call. Callers treat
// a nil return as "no external side-effect happened, try again later".
type OutboundSyncPort interface {
	// Enabled reports whether the port actually talks to a tracker.
	Enabled() bool

	// Create builds title/body/labels from the request and creates the
	// issue. Returns nil when unconfigured, the repository is unreachable,
	// or the API rejects the call.
	Create(ctx context.Context, req *types.DevelopmentRequest) *IssueRef

	// UpdateDetails patches the issue with partial-update semantics.
	UpdateDetails(ctx context.Context, number int, upd DetailUpdate) *github.Issue

	// UpdateStatus sets state and the managed label set in one call.
	UpdateStatus(ctx context.Context, number int, state string, labels []string) *github.Issue

	// Close sets state=closed with an optional reason ("completed" or
	// "not_planned"). Empty reason lets the tracker pick its default.
	Close(ctx context.Context, number int, reason string) bool

	// Comment posts a comment on the issue.
	Comment(ctx context.Context, number int, body string) bool

	// FetchStatus returns a read-only snapshot for reconciliation.
	FetchStatus(ctx context.Context, number int) *github.IssueSnapshot
}

// NoopPort is the implementation selected at startup when no tracker is
// configured. Requests stay permanently unlinked and the rest of the
// application is unaffected.
type NoopPort struct{}

var _ OutboundSyncPort = NoopPort{}

func (NoopPort) Enabled() bool { return false }

func (NoopPort) Create(context.Context, *types.DevelopmentRequest) *IssueRef { return nil }

func (NoopPort) UpdateDetails(context.Context, int, DetailUpdate) *github.Issue { return nil }

func (NoopPort) UpdateStatus(context.Context, int, string, []string) *github.Issue { return nil }

func (NoopPort) Close(context.Context, int, string) bool { return false }

func (NoopPort) Comment(context.Context, int, string) bool { return false }

func (NoopPort) FetchStatus(context.Context, int) *github.IssueSnapshot { return nil }
