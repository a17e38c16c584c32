package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clubworks/reqsync/internal/github"
	"github.com/clubworks/reqsync/internal/types"
)

func TestNewPortSelection(t *testing.T) {
	tests := []struct {
		name               string
		token, owner, repo string
		wantEnabled        bool
	}{
		{"fully configured", "tok", "clubworks", "members", true},
		{"missing token", "", "clubworks", "members", false},
		{"missing owner", "tok", "", "members", false},
		{"missing repo", "tok", "clubworks", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var warned bool
			port := NewPort(tt.token, tt.owner, tt.repo, func(string) { warned = true })
			if port.Enabled() != tt.wantEnabled {
				t.Errorf("Enabled() = %v, want %v", port.Enabled(), tt.wantEnabled)
			}
			if !tt.wantEnabled && !warned {
				t.Error("disabled port selected without a warning")
			}
		})
	}
}

// Unconfigured sync must degrade to sentinel returns, never errors.
func TestNoopPortSentinels(t *testing.T) {
	ctx := context.Background()
	port := NoopPort{}

	req := &types.DevelopmentRequest{ID: "dr-a", Title: "x", Type: types.TypeBug, Priority: types.PriorityLow, Status: types.StatusPending}
	if ref := port.Create(ctx, req); ref != nil {
		t.Errorf("Create() = %v, want nil", ref)
	}
	if issue := port.UpdateStatus(ctx, 1, "closed", nil); issue != nil {
		t.Errorf("UpdateStatus() = %v, want nil", issue)
	}
	if port.Close(ctx, 1, "") {
		t.Error("Close() = true, want false")
	}
	if snap := port.FetchStatus(ctx, 1); snap != nil {
		t.Errorf("FetchStatus() = %v, want nil", snap)
	}
}

func TestUpdateStatusPreservesUnmanagedLabels(t *testing.T) {
	var patched map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `{"number": 5, "state": "open", "labels": [{"name": "help wanted"}, {"name": "bug"}, {"name": "status-pending"}, {"name": "priority-low"}]}`)
		case http.MethodPatch:
			_ = json.NewDecoder(r.Body).Decode(&patched)
			fmt.Fprint(w, `{"number": 5, "state": "closed"}`)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	port := NewGitHubPort(github.NewClient("tok", "clubworks", "members").WithBaseURL(srv.URL))

	managed := github.BuildLabelSet(types.StatusDone, types.TypeBug, types.PriorityHigh)
	issue := port.UpdateStatus(context.Background(), 5, "closed", managed)
	if issue == nil {
		t.Fatal("UpdateStatus() returned nil")
	}

	raw, ok := patched["labels"].([]interface{})
	if !ok {
		t.Fatalf("no labels in patch body: %v", patched)
	}
	var labels []string
	for _, l := range raw {
		labels = append(labels, l.(string))
	}
	joined := strings.Join(labels, ",")

	if !strings.Contains(joined, "help wanted") {
		t.Errorf("unmanaged label dropped: %v", labels)
	}
	if strings.Contains(joined, "status-pending") || strings.Contains(joined, "priority-low") {
		t.Errorf("stale managed labels survived: %v", labels)
	}
	if !strings.Contains(joined, "status-done") || !strings.Contains(joined, "priority-high") {
		t.Errorf("new managed labels missing: %v", labels)
	}
}

func TestCreateFailsClosedOnProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}))
	defer srv.Close()

	var warnings []string
	port := NewGitHubPort(github.NewClient("tok", "clubworks", "gone").WithBaseURL(srv.URL))
	port.OnWarning = func(msg string) { warnings = append(warnings, msg) }

	req := &types.DevelopmentRequest{ID: "dr-a", Title: "x", Type: types.TypeBug, Priority: types.PriorityLow, Status: types.StatusPending}
	if ref := port.Create(context.Background(), req); ref != nil {
		t.Errorf("Create() = %v against unreachable repo, want nil", ref)
	}
	if len(warnings) == 0 {
		t.Error("probe failure not warned about")
	}
}

// A transient probe failure must not stick: the next create probes again
// and links once the repository is reachable.
func TestCreateRetriesProbeAfterTransientFailure(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `{"id": 1, "name": "members", "full_name": "clubworks/members"}`)
		case http.MethodPost:
			fmt.Fprint(w, `{"number": 12, "state": "open", "html_url": "https://github.com/clubworks/members/issues/12"}`)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	port := NewGitHubPort(github.NewClient("tok", "clubworks", "members").WithBaseURL(srv.URL))
	port.OnWarning = func(string) {}

	req := &types.DevelopmentRequest{ID: "dr-a", Title: "x", Type: types.TypeBug, Priority: types.PriorityLow, Status: types.StatusPending}
	if ref := port.Create(context.Background(), req); ref != nil {
		t.Fatalf("Create() = %v while repo unreachable, want nil", ref)
	}

	ref := port.Create(context.Background(), req)
	if ref == nil {
		t.Fatal("Create() = nil after repo recovered, want issue ref")
	}
	if ref.Number != 12 {
		t.Errorf("Create() number = %d, want 12", ref.Number)
	}
}

func TestBuildIssueBody(t *testing.T) {
	req := &types.DevelopmentRequest{
		ID: "dr-9", Title: "x", Description: "The login page 500s.",
		Type: types.TypeBug, Priority: types.PriorityCritical, Status: types.StatusPending,
	}
	body := BuildIssueBody(req)
	for _, want := range []string{"The login page 500s.", "Type: bug", "Priority: critical", "dr-9"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}
