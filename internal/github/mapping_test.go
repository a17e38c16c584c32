package github

import (
	"reflect"
	"testing"

	"github.com/clubworks/reqsync/internal/types"
)

func TestToExternalState(t *testing.T) {
	tests := []struct {
		status types.Status
		want   string
	}{
		{types.StatusPending, "open"},
		{types.StatusInProgress, "open"},
		{types.StatusDone, "closed"},
		{types.StatusCancelled, "closed"},
	}
	for _, tt := range tests {
		if got := ToExternalState(tt.status); got != tt.want {
			t.Errorf("ToExternalState(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestToLocalStatus(t *testing.T) {
	tests := []struct {
		name   string
		state  string
		labels []string
		want   types.Status
	}{
		{"status label wins over open state", "open", []string{"status-done"}, types.StatusDone},
		{"status label wins over closed state", "closed", []string{"status-in_progress"}, types.StatusInProgress},
		{"status label wins over other labels", "open", []string{"bug", "priority-high", "status-cancelled"}, types.StatusCancelled},
		{"legacy bare token", "open", []string{"in_progress"}, types.StatusInProgress},
		{"legacy token order prefers in_progress", "open", []string{"pending", "in_progress"}, types.StatusInProgress},
		{"closed without labels infers done", "closed", nil, types.StatusDone},
		{"open without labels infers pending", "open", nil, types.StatusPending},
		{"unknown status label falls through", "closed", []string{"status-bogus"}, types.StatusDone},
		{"unmanaged labels ignored", "open", []string{"help wanted", "good first issue"}, types.StatusPending},
		{"empty state infers pending", "", nil, types.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToLocalStatus(tt.state, tt.labels); got != tt.want {
				t.Errorf("ToLocalStatus(%q, %v) = %q, want %q", tt.state, tt.labels, got, tt.want)
			}
		})
	}
}

// The mapping must be total: whatever GitHub sends, the result is one of
// the four recognized statuses.
func TestToLocalStatusTotality(t *testing.T) {
	states := []string{"open", "closed", "", "garbage"}
	labelSets := [][]string{
		nil,
		{},
		{"status-"},
		{"status-nonsense"},
		{"wontfix", "duplicate"},
		{"status-done", "status-pending"},
		{"priority-high"},
	}
	for _, state := range states {
		for _, labels := range labelSets {
			got := ToLocalStatus(state, labels)
			if !got.IsValid() {
				t.Errorf("ToLocalStatus(%q, %v) = %q, not a recognized status", state, labels, got)
			}
		}
	}
}

// Pushing a status out and reading it back must round-trip exactly, even
// for the two statuses that share the closed state.
func TestStatusRoundTrip(t *testing.T) {
	for _, status := range types.Statuses {
		labels := BuildLabelSet(status, types.TypeBug, types.PriorityMedium)
		state := ToExternalState(status)
		if got := ToLocalStatus(state, labels); got != status {
			t.Errorf("round trip %q -> (%q, %v) -> %q", status, state, labels, got)
		}
	}
}

func TestBuildLabelSet(t *testing.T) {
	tests := []struct {
		name     string
		status   types.Status
		reqType  types.RequestType
		priority types.Priority
		want     []string
	}{
		{"bug", types.StatusInProgress, types.TypeBug, types.PriorityHigh,
			[]string{"bug", "priority-high", "status-in_progress"}},
		{"feature maps to enhancement", types.StatusPending, types.TypeFeature, types.PriorityLow,
			[]string{"enhancement", "priority-low", "status-pending"}},
		{"unknown type falls back to bug", types.StatusDone, types.RequestType("task"), types.PriorityMedium,
			[]string{"bug", "priority-medium", "status-done"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildLabelSet(tt.status, tt.reqType, tt.priority)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildLabelSet() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsManagedLabel(t *testing.T) {
	managed := []string{"bug", "enhancement", "priority-critical", "status-pending", "status-"}
	for _, l := range managed {
		if !IsManagedLabel(l) {
			t.Errorf("IsManagedLabel(%q) = false, want true", l)
		}
	}
	unmanaged := []string{"help wanted", "good first issue", "wontfix", "Priority-high", "statuses"}
	for _, l := range unmanaged {
		if IsManagedLabel(l) {
			t.Errorf("IsManagedLabel(%q) = true, want false", l)
		}
	}
}

func TestMergeLabels(t *testing.T) {
	current := []string{"help wanted", "bug", "priority-low", "status-pending", "design"}
	managed := BuildLabelSet(types.StatusDone, types.TypeFeature, types.PriorityHigh)

	got := MergeLabels(current, managed)
	want := []string{"help wanted", "design", "enhancement", "priority-high", "status-done"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeLabels() = %v, want %v", got, want)
	}
}

func TestMergeLabelsEmptyCurrent(t *testing.T) {
	managed := BuildLabelSet(types.StatusPending, types.TypeBug, types.PriorityMedium)
	got := MergeLabels(nil, managed)
	if !reflect.DeepEqual(got, managed) {
		t.Errorf("MergeLabels(nil, managed) = %v, want %v", got, managed)
	}
}
