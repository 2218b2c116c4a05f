package game

import (
	"time"

	"github.com/whitecards/server/pkg/protocol"
)

const (
	defaultVoteTimeout = 30 // seconds

	voteYes     = "yes"
	voteUnknown = "unknown"
)

// vote is the at-most-one pending poll of a session. All access happens
// inside the session loop; only the timer callback runs elsewhere, and
// it does nothing but post a generation-stamped message back in.
type vote struct {
	title    string
	timeout  int
	required int
	votes    map[string]string
	args     protocol.VoteArgs
	timer    *time.Timer
}

// quorum is ceil(present/2), fixed at vote start.
func quorum(present int) int {
	return (present + 1) / 2
}

// resolution returns the first ballot choice that has reached quorum,
// ignoring unknown. Choices partition the ballots, so at most one can
// resolve.
func (v *vote) resolution() (outcome string, ok bool) {
	counts := make(map[string]int)
	for _, choice := range v.votes {
		if choice != voteUnknown {
			counts[choice]++
		}
	}
	for choice, n := range counts {
		if n >= v.required {
			return choice, true
		}
	}
	return "", false
}

// state copies the vote into its public wire form.
func (v *vote) state() *protocol.VoteState {
	votes := make(map[string]string, len(v.votes))
	for id, choice := range v.votes {
		votes[id] = choice
	}
	return &protocol.VoteState{
		Title:    v.title,
		Timeout:  v.timeout,
		Required: v.required,
		Votes:    votes,
		Args:     v.args,
	}
}
