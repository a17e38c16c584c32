package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/clubworks/reqsync/internal/github"
	"github.com/clubworks/reqsync/internal/telemetry"
	"github.com/clubworks/reqsync/internal/types"
)

// GitHubPort implements OutboundSyncPort against the GitHub REST API.
type GitHubPort struct {
	Client *github.Client

	// OnWarning receives failure messages (optional).
	OnWarning func(msg string)

	Metrics *telemetry.SyncMetrics

	// probeMu guards the repository reachability probe: it runs before
	// each create until it succeeds, and only success is cached. A
	// transient probe failure must not disable creates for the rest of
	// the process, or the reconciler's outbox retries could never link.
	probeMu sync.Mutex
	probeOK bool
}

var _ OutboundSyncPort = (*GitHubPort)(nil)

// NewGitHubPort wraps a configured client. Callers should use NewPort, which
// falls back to NoopPort when configuration is absent.
func NewGitHubPort(client *github.Client) *GitHubPort {
	return &GitHubPort{Client: client}
}

// NewPort selects the real or no-op implementation once, from configuration.
// Missing credentials or repository coordinates mean sync is silently
// disabled; nothing else in the application changes behavior.
func NewPort(token, owner, repo string, warn func(msg string)) OutboundSyncPort {
	if token == "" || owner == "" || repo == "" {
		if warn != nil {
			warn("github sync disabled: token or repository not configured")
		}
		return NoopPort{}
	}
	p := NewGitHubPort(github.NewClient(token, owner, repo))
	p.OnWarning = warn
	return p
}

func (p *GitHubPort) Enabled() bool { return true }

// Create probes the repository before creating the issue with the managed
// label set built from the request fields. The probe repeats until it
// succeeds; a failed probe leaves the request unlinked for a later retry.
func (p *GitHubPort) Create(ctx context.Context, req *types.DevelopmentRequest) *IssueRef {
	if !p.probeRepository(ctx) {
		p.Metrics.CountPush(ctx, "create", false)
		return nil
	}

	labels := github.BuildLabelSet(req.Status, req.Type, req.Priority)
	issue, err := p.Client.CreateIssue(ctx, req.Title, BuildIssueBody(req), labels)
	if err != nil {
		p.warn("create issue for %s: %v", req.ID, err)
		p.Metrics.CountPush(ctx, "create", false)
		return nil
	}

	p.Metrics.CountPush(ctx, "create", true)
	return &IssueRef{Number: issue.Number, URL: issue.HTMLURL}
}

// UpdateDetails patches only the supplied fields. When labels are supplied,
// the current unmanaged labels on the issue are preserved and only the
// managed namespace is replaced.
func (p *GitHubPort) UpdateDetails(ctx context.Context, number int, upd DetailUpdate) *github.Issue {
	updates := make(map[string]interface{})
	if upd.Title != nil {
		updates["title"] = *upd.Title
	}
	if upd.Body != nil {
		updates["body"] = *upd.Body
	}
	if upd.State != nil {
		updates["state"] = *upd.State
	}
	if upd.Labels != nil {
		updates["labels"] = p.mergedLabels(ctx, number, upd.Labels)
	}
	if len(updates) == 0 {
		return nil
	}

	issue, err := p.Client.UpdateIssue(ctx, number, updates)
	if err != nil {
		p.warn("update issue #%d: %v", number, err)
		p.Metrics.CountPush(ctx, "update_details", false)
		return nil
	}
	p.Metrics.CountPush(ctx, "update_details", true)
	return issue
}

// UpdateStatus atomically sets state and the full managed label set.
func (p *GitHubPort) UpdateStatus(ctx context.Context, number int, state string, labels []string) *github.Issue {
	issue, err := p.Client.UpdateIssue(ctx, number, map[string]interface{}{
		"state":  state,
		"labels": p.mergedLabels(ctx, number, labels),
	})
	if err != nil {
		p.warn("update status for issue #%d: %v", number, err)
		p.Metrics.CountPush(ctx, "update_status", false)
		return nil
	}
	p.Metrics.CountPush(ctx, "update_status", true)
	return issue
}

// Close sets state=closed with an optional completion reason.
func (p *GitHubPort) Close(ctx context.Context, number int, reason string) bool {
	updates := map[string]interface{}{"state": "closed"}
	if reason != "" {
		updates["state_reason"] = reason
	}
	if _, err := p.Client.UpdateIssue(ctx, number, updates); err != nil {
		p.warn("close issue #%d: %v", number, err)
		p.Metrics.CountPush(ctx, "close", false)
		return false
	}
	p.Metrics.CountPush(ctx, "close", true)
	return true
}

// Comment posts a comment on the issue.
func (p *GitHubPort) Comment(ctx context.Context, number int, body string) bool {
	if _, err := p.Client.CreateComment(ctx, number, body); err != nil {
		p.warn("comment on issue #%d: %v", number, err)
		p.Metrics.CountPush(ctx, "comment", false)
		return false
	}
	p.Metrics.CountPush(ctx, "comment", true)
	return true
}

// FetchStatus returns the snapshot the reconciler compares against.
func (p *GitHubPort) FetchStatus(ctx context.Context, number int) *github.IssueSnapshot {
	issue, err := p.Client.FetchIssue(ctx, number)
	if err != nil {
		p.warn("fetch issue #%d: %v", number, err)
		return nil
	}
	return issue.Snapshot()
}

// mergedLabels fetches the issue's current labels and merges the managed
// set into them, so labels humans added externally survive the push. If the
// fetch fails the managed set is sent alone rather than skipping the push.
func (p *GitHubPort) mergedLabels(ctx context.Context, number int, managed []string) []string {
	issue, err := p.Client.FetchIssue(ctx, number)
	if err != nil {
		p.warn("fetch labels for issue #%d: %v", number, err)
		return managed
	}
	return github.MergeLabels(github.LabelNames(issue.Labels), managed)
}

// probeRepository checks the repository is reachable. Success is cached;
// failure is not, so the next create tries again.
func (p *GitHubPort) probeRepository(ctx context.Context) bool {
	p.probeMu.Lock()
	defer p.probeMu.Unlock()
	if p.probeOK {
		return true
	}
	if _, err := p.Client.FetchRepository(ctx); err != nil {
		p.warn("repository probe failed: %v", err)
		return false
	}
	p.probeOK = true
	return true
}

func (p *GitHubPort) warn(format string, args ...interface{}) {
	if p.OnWarning != nil {
		p.OnWarning(fmt.Sprintf(format, args...))
	}
}

// BuildIssueBody composes the outbound issue body from local fields.
func BuildIssueBody(req *types.DevelopmentRequest) string {
	body := req.Description
	if body != "" {
		body += "\n\n"
	}
	body += fmt.Sprintf("---\nType: %s | Priority: %s\nDevelopment request %s", req.Type, req.Priority, req.ID)
	return body
}
