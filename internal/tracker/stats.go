package tracker

import "fmt"

// Summary reports the outcome of one reconciliation pass. Partial failure
// is the expected steady state when the tracker is flaky, so a non-zero
// error count never fails the pass.
type Summary struct {
	Checked int `json:"checked"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Drained int `json:"drained"`
	Errors  int `json:"errors"`
}

func (s *Summary) String() string {
	return fmt.Sprintf("checked %d, created %d, updated %d, drained %d, errors %d",
		s.Checked, s.Created, s.Updated, s.Drained, s.Errors)
}
