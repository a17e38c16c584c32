// Package github provides a client and data types for the GitHub REST API,
// plus the bidirectional mapping between the local request status domain and
// GitHub's state + label-set domain.
package github

import (
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for rate-limited requests.
	MaxRetries = 3
)

// Client provides methods to interact with the GitHub REST API.
type Client struct {
	Token      string       // Personal access token
	Owner      string       // Repository owner (user or org)
	Repo       string       // Repository name
	BaseURL    string       // API base URL (default: https://api.github.com)
	HTTPClient *http.Client // Optional custom HTTP client
}

// Issue represents an issue from the GitHub API.
type Issue struct {
	ID        int        `json:"id"`     // Global unique ID
	Number    int        `json:"number"` // Repository-scoped issue number
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"` // "open" or "closed"
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Labels    []Label    `json:"labels"`
	HTMLURL   string     `json:"html_url"`
}

// Label represents a GitHub label.
type Label struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// Repository represents a GitHub repository (for the existence probe).
type Repository struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
	Private  bool   `json:"private"`
}

// Comment represents an issue comment.
type Comment struct {
	ID      int    `json:"id"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url,omitempty"`
}

// IssueSnapshot is the read-only view the reconciler needs: raw state,
// whether the issue is closed, and the current label names.
type IssueSnapshot struct {
	State  string
	Closed bool
	Labels []string
}

// Close reasons accepted by the GitHub issues API.
const (
	CloseCompleted  = "completed"
	CloseNotPlanned = "not_planned"
)

// validStates for GitHub issues.
var validStates = map[string]bool{
	"open":   true,
	"closed": true,
}

// IsValidState checks if a GitHub state string is valid.
func IsValidState(state string) bool {
	return validStates[state]
}

// LabelNames extracts label name strings from a slice of Label structs.
func LabelNames(labels []Label) []string {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}
	return names
}

// Snapshot converts an Issue to the reconciler's snapshot view.
func (i *Issue) Snapshot() *IssueSnapshot {
	return &IssueSnapshot{
		State:  i.State,
		Closed: i.State == "closed",
		Labels: LabelNames(i.Labels),
	}
}
