package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/clubworks/reqsync/internal/github"
)

// IssueEvent is the subset of GitHub's "issues" event payload the handler
// consumes. Fields GitHub sends beyond these are ignored.
type IssueEvent struct {
	Action string        `json:"action"`
	Issue  *github.Issue `json:"issue"`
}

// handledActions are the issue actions that can change local state. Label
// and assignment churn arrives as separate actions and is dropped here;
// the reconciler picks up label-only status changes on its next pass.
var handledActions = map[string]bool{
	"opened":   true,
	"edited":   true,
	"closed":   true,
	"reopened": true,
}

// ParseIssueEvent decodes and validates an issues event body. A payload
// that parses but lacks the fields needed for correlation is malformed,
// not ignorable: the sender should see the 400.
func ParseIssueEvent(body []byte) (*IssueEvent, error) {
	var ev IssueEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if ev.Action == "" {
		return nil, fmt.Errorf("missing action")
	}
	if ev.Issue == nil || ev.Issue.Number <= 0 {
		return nil, fmt.Errorf("missing issue number")
	}
	if ev.Issue.State != "" && !github.IsValidState(ev.Issue.State) {
		return nil, fmt.Errorf("unknown issue state %q", ev.Issue.State)
	}
	return &ev, nil
}
