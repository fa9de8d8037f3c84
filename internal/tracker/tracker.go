// Package tracker holds the per-site status state machine.
//
// The only subtle rule is the outage latch: DownSince is stamped on the
// transition into DOWN and then held until the next success, no matter how
// many failures follow.
package tracker

import (
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

type State struct {
	Status    domain.Status
	DownSince *time.Time
}

// Of extracts the stored state of a site.
func Of(s domain.Site) State {
	return State{Status: s.Status, DownSince: s.DownSince}
}

// Transition computes the next state from the previous one and a probe
// outcome observed at now. It does no I/O.
func Transition(prev State, outcome domain.Outcome, now time.Time) State {
	if outcome == domain.OutcomeSuccess {
		return State{Status: domain.StatusUp}
	}
	if prev.Status == domain.StatusDown && prev.DownSince != nil {
		since := *prev.DownSince
		return State{Status: domain.StatusDown, DownSince: &since}
	}
	// up, never checked, or a down row that lost its start time
	start := now
	return State{Status: domain.StatusDown, DownSince: &start}
}

// Changed reports whether next flips the reachability of prev. Leaving the
// unknown state counts as a change.
func Changed(prev, next State) bool {
	return prev.Status != next.Status
}
