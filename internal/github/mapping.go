package github

import (
	"strings"

	"github.com/clubworks/reqsync/internal/types"
)

// The local status domain has four values but GitHub only has open/closed,
// so the exact status rides across the boundary in a "status-<value>" label.
// That label, not the raw state, is the authoritative signal when mapping
// back inward.

// StatusLabelPrefix prefixes the label that carries the exact local status.
const StatusLabelPrefix = "status-"

// PriorityLabelPrefix prefixes the managed priority label.
const PriorityLabelPrefix = "priority-"

// typeLabels maps request types to their GitHub label names. GitHub's
// conventional label for feature work is "enhancement".
var typeLabels = map[types.RequestType]string{
	types.TypeBug:     "bug",
	types.TypeFeature: "enhancement",
}

// legacyStatusTokens are bare labels recognized for backward compatibility
// with issues labeled before the status- prefix was adopted. Checked in this
// fixed priority order.
var legacyStatusTokens = []types.Status{
	types.StatusInProgress,
	types.StatusDone,
	types.StatusCancelled,
	types.StatusPending,
}

// ToExternalState maps a local status onto GitHub's two-value state space.
// Lossy: done and cancelled both map to closed, pending and in_progress
// both map to open.
func ToExternalState(status types.Status) string {
	switch status {
	case types.StatusDone, types.StatusCancelled:
		return "closed"
	default:
		return "open"
	}
}

// ToLocalStatus reconstructs the local status from a GitHub state string and
// label set. Resolution is three-tiered: an explicit "status-<value>" label
// wins, then bare legacy tokens, then coarse inference from the raw state
// (closed ↦ done, open ↦ pending). Total: always returns one of the four
// recognized values.
func ToLocalStatus(state string, labels []string) types.Status {
	for _, l := range labels {
		if !strings.HasPrefix(l, StatusLabelPrefix) {
			continue
		}
		s := types.Status(strings.TrimPrefix(l, StatusLabelPrefix))
		if s.IsValid() {
			return s
		}
	}

	for _, tok := range legacyStatusTokens {
		for _, l := range labels {
			if l == string(tok) {
				return tok
			}
		}
	}

	if state == "closed" {
		return types.StatusDone
	}
	return types.StatusPending
}

// BuildLabelSet returns the managed label set for a request: exactly one
// type label, one priority label, and one status label.
func BuildLabelSet(status types.Status, reqType types.RequestType, priority types.Priority) []string {
	typeLabel, ok := typeLabels[reqType]
	if !ok {
		typeLabel = "bug"
	}
	return []string{
		typeLabel,
		PriorityLabelPrefix + string(priority),
		StatusLabelPrefix + string(status),
	}
}

// IsManagedLabel reports whether this subsystem owns the given label.
// Managed labels are the type labels plus anything under the priority- and
// status- prefixes. Labels humans add outside that namespace are never
// touched by outbound pushes.
func IsManagedLabel(label string) bool {
	if label == "bug" || label == "enhancement" {
		return true
	}
	return strings.HasPrefix(label, PriorityLabelPrefix) ||
		strings.HasPrefix(label, StatusLabelPrefix)
}

// MergeLabels combines the current external label set with a freshly built
// managed set: unmanaged labels are preserved as-is, managed labels are
// replaced wholesale. Order is stable (unmanaged first, then managed).
func MergeLabels(current, managed []string) []string {
	merged := make([]string, 0, len(current)+len(managed))
	for _, l := range current {
		if !IsManagedLabel(l) {
			merged = append(merged, l)
		}
	}
	return append(merged, managed...)
}
