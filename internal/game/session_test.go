package game

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/whitecards/server/internal/deck"
	"github.com/whitecards/server/pkg/protocol"
)

func newPools(blacks []string, whites int) *deck.Pools {
	w := make([]string, whites)
	for i := range w {
		w[i] = fmt.Sprintf("white %03d", i)
	}
	return &deck.Pools{Black: blacks, White: w}
}

func newTestSession(t *testing.T, pools *deck.Pools) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewSession(ctx, "demo1", "a", []string{"Base"}, pools, NewNameStore(), zaptest.NewLogger(t))
}

func join(s *Session, id string) chan protocol.ServerMessage {
	out := make(chan protocol.ServerMessage, 256)
	s.Inbox() <- Join{PlayerID: id, Outbox: out}
	return out
}

// recvEvent drains the outbox until the wanted event arrives, so tests
// never depend on how many broadcasts precede it.
func recvEvent(t *testing.T, ch <-chan protocol.ServerMessage, event string) protocol.ServerMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-ch:
			if m.Event == event {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", event)
			return protocol.ServerMessage{} // unreachable
		}
	}
}

func recvNoEvent(t *testing.T, ch <-chan protocol.ServerMessage, event string, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case m := <-ch:
			if m.Event == event {
				t.Fatalf("expected no %q within %v, but got one", event, within)
			}
		case <-deadline:
			return
		}
	}
}

func getView(t *testing.T, s *Session) View {
	t.Helper()
	reply := make(chan View, 1)
	s.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func playerByID(t *testing.T, v View, id string) PlayerView {
	t.Helper()
	for _, p := range v.Players {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("player %q not in roster %+v", id, v.Players)
	return PlayerView{} // unreachable
}

func TestJoin_FirstPlayerBecomesCzar(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1", "b2"}, 30))
	out := join(s, "p1")

	// Ten draw_card events then the snapshot.
	for i := 0; i < handSize; i++ {
		recvEvent(t, out, protocol.EventDrawCard)
	}
	msg := recvEvent(t, out, protocol.EventGameUpdate)
	snap, ok := msg.Game.(*protocol.GameSnapshot)
	require.True(t, ok)
	assert.Equal(t, "demo1", snap.ID)
	assert.Equal(t, "p1", snap.Czar)
	assert.Equal(t, StatePlay, snap.State)
	assert.Equal(t, "b2", snap.BlackCard, "black card is drawn from the end")
	require.Len(t, snap.Players, 1)
	assert.True(t, snap.Players[0].Czar)
	assert.Len(t, snap.Players[0].Cards, handSize)
}

func TestJoin_RejoinPreservesPlayer(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1"}, 30))
	join(s, "p1")
	s.Inbox() <- SetPlayerName{PlayerID: "p1", Name: "Alice"}
	s.Inbox() <- Disconnect{PlayerID: "p1"}

	v := getView(t, s)
	require.Len(t, v.Players, 1)
	assert.True(t, v.Players[0].Away)

	join(s, "p1")
	v = getView(t, s)
	require.Len(t, v.Players, 1, "rejoin must not add a roster entry")
	p := v.Players[0]
	assert.False(t, p.Away)
	assert.Equal(t, "Alice", p.Name)
	assert.Len(t, p.Cards, handSize)
	assert.True(t, p.Czar)
}

func TestJoin_NameCacheRestoresName(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	names := NewNameStore()
	names.Set("p1", "Bob")

	s := NewSession(ctx, "g", "p1", nil, newPools([]string{"b1"}, 20), names, zaptest.NewLogger(t))
	join(s, "p1")
	join(s, "p2")

	v := getView(t, s)
	assert.Equal(t, "Bob", playerByID(t, v, "p1").Name)
	assert.Equal(t, "Player 2", playerByID(t, v, "p2").Name)
}

func TestTopUpHand_ExhaustedPoolLeavesHandShort(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1"}, 7))
	join(s, "p1")

	v := getView(t, s)
	assert.Len(t, v.Players[0].Cards, 7)
	assert.Zero(t, v.WhiteRemaining)
}

func TestPlayCard_ReplacesPlayedCards(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1"}, 30))
	join(s, "p1")

	v := getView(t, s)
	card := v.Players[0].Cards[0]
	s.Inbox() <- PlayCard{PlayerID: "p1", Cards: []string{card}}

	v = getView(t, s)
	assert.Equal(t, []string{card}, v.Players[0].PlayedCards)
	assert.Equal(t, StatePlay, v.State, "play_card does not change phase")

	// A card that is not in the hand is logged but still recorded.
	s.Inbox() <- PlayCard{PlayerID: "p1", Cards: []string{"not in hand"}}
	v = getView(t, s)
	assert.Equal(t, []string{"not in hand"}, v.Players[0].PlayedCards)
}

func TestEndRound_TransitionsEvenForNonCzar(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1"}, 30))
	join(s, "p1")
	join(s, "p2")

	s.Inbox() <- EndRound{PlayerID: "p2"} // p1 is czar; logged, not rejected
	v := getView(t, s)
	assert.Equal(t, StateChooseWinner, v.State)
}

func TestChooseWinner_FullRound(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1", "b2", "b3"}, 40))
	outA := join(s, "a")
	join(s, "b")

	recvEvent(t, outA, protocol.EventGameUpdate)
	before := getView(t, s)
	require.Equal(t, "a", before.Czar)
	firstBlack := before.BlackCard

	s.Inbox() <- PlayCard{PlayerID: "a", Cards: []string{playerByID(t, before, "a").Cards[0]}}
	s.Inbox() <- PlayCard{PlayerID: "b", Cards: []string{playerByID(t, before, "b").Cards[0]}}
	s.Inbox() <- EndRound{PlayerID: "a"}
	s.Inbox() <- ChooseWinner{PlayerID: "a", WinnerID: "b"}

	v := getView(t, s)
	assert.Equal(t, 1, playerByID(t, v, "b").Score)
	assert.Equal(t, 0, playerByID(t, v, "a").Score)
	assert.Len(t, playerByID(t, v, "a").Cards, handSize)
	assert.Len(t, playerByID(t, v, "b").Cards, handSize)
	assert.Empty(t, playerByID(t, v, "a").PlayedCards)
	assert.Equal(t, StatePlay, v.State)
	assert.Equal(t, "b", v.Czar, "czar rotates to the next player")
	assert.NotEqual(t, firstBlack, v.BlackCard)
}

func TestChooseWinner_PlayedCardLeavesHand(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1", "b2"}, 40))
	join(s, "a")

	v := getView(t, s)
	played := v.Players[0].Cards[0]
	s.Inbox() <- PlayCard{PlayerID: "a", Cards: []string{played}}
	s.Inbox() <- ChooseWinner{PlayerID: "a", WinnerID: "a"}

	v = getView(t, s)
	assert.NotContains(t, v.Players[0].Cards, played)
	assert.Len(t, v.Players[0].Cards, handSize, "hand is topped back up")
}

func TestCzarRotation_SkipsAwayAndWraps(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1", "b2", "b3", "b4"}, 60))
	join(s, "a")
	join(s, "b")
	join(s, "c")
	s.Inbox() <- Disconnect{PlayerID: "b"}

	s.Inbox() <- ChooseWinner{PlayerID: "a", WinnerID: "c"}
	v := getView(t, s)
	assert.Equal(t, "c", v.Czar, "away player is skipped")

	s.Inbox() <- ChooseWinner{PlayerID: "c", WinnerID: "a"}
	v = getView(t, s)
	assert.Equal(t, "a", v.Czar, "rotation wraps to the first roster entry")
}

func TestCzarRotation_SingleMemberKeepsCzar(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1", "b2"}, 30))
	join(s, "a")
	s.Inbox() <- ChooseWinner{PlayerID: "a", WinnerID: "a"}
	v := getView(t, s)
	assert.Equal(t, "a", v.Czar)
}

func TestVote_SkipCardPassesAtQuorum(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1", "b2", "b3"}, 80))
	outs := map[string]chan protocol.ServerMessage{}
	for _, id := range []string{"a", "b", "c", "d"} {
		outs[id] = join(s, id)
	}
	before := getView(t, s)
	s.Inbox() <- PlayCard{PlayerID: "b", Cards: []string{playerByID(t, before, "b").Cards[0]}}

	s.Inbox() <- StartVote{PlayerID: "a", Title: "Skip this card", Args: protocol.VoteArgs{Type: protocol.VoteSkipCard, Timeout: 60}}
	start := recvEvent(t, outs["b"], protocol.EventVoteStart)
	require.NotNil(t, start.Args)
	assert.Equal(t, 2, start.Args.Required, "quorum is ceil(4/2)")
	assert.Equal(t, voteYes, start.Args.Votes["a"], "initiator counts as yes")
	assert.Equal(t, voteUnknown, start.Args.Votes["b"])

	blackBefore := getView(t, s).BlackRemaining

	// A second yes reaches quorum; the remaining unknowns don't block.
	s.Inbox() <- CastVote{PlayerID: "b", Choice: voteYes}
	recvEvent(t, outs["c"], protocol.EventVoteUpdate)
	recvEvent(t, outs["c"], protocol.EventVotePassed)

	v := getView(t, s)
	assert.False(t, v.VoteActive)
	assert.Equal(t, StatePlay, v.State)
	assert.Equal(t, blackBefore-1, v.BlackRemaining, "exactly one new black card drawn")
	for _, p := range v.Players {
		assert.Empty(t, p.PlayedCards)
	}

	// The vote is gone; further ballots are no-ops. Drain d's outbox past
	// the resolution broadcasts so only new events are observed below.
	recvEvent(t, outs["d"], protocol.EventVotePassed)
	s.Inbox() <- CastVote{PlayerID: "c", Choice: voteYes}
	recvNoEvent(t, outs["d"], protocol.EventVoteUpdate, 200*time.Millisecond)
}

func TestVote_FailsWhenNoReachesQuorum(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1", "b2"}, 80))
	outs := map[string]chan protocol.ServerMessage{}
	for _, id := range []string{"a", "b", "c", "d"} {
		outs[id] = join(s, id)
	}
	blackBefore := getView(t, s).BlackRemaining

	s.Inbox() <- StartVote{PlayerID: "a", Title: "Skip", Args: protocol.VoteArgs{Type: protocol.VoteSkipCard, Timeout: 60}}
	s.Inbox() <- CastVote{PlayerID: "b", Choice: "no"}
	s.Inbox() <- CastVote{PlayerID: "c", Choice: "no"}
	recvEvent(t, outs["d"], protocol.EventVoteFailed)

	v := getView(t, s)
	assert.False(t, v.VoteActive)
	assert.Equal(t, blackBefore, v.BlackRemaining, "failed vote changes nothing")
}

func TestVote_KickPlayerRemovesTargetAndRotatesCzar(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1", "b2"}, 40))
	join(s, "a")
	outB := join(s, "b")

	s.Inbox() <- StartVote{PlayerID: "b", Title: "Kick a", Args: protocol.VoteArgs{Type: protocol.VoteKickPlayer, Player: "a", Timeout: 60}}
	s.Inbox() <- CastVote{PlayerID: "b", Choice: voteYes}
	recvEvent(t, outB, protocol.EventVotePassed)

	v := getView(t, s)
	require.Len(t, v.Players, 1)
	assert.Equal(t, "b", v.Players[0].ID)
	assert.Equal(t, "b", v.Czar, "czar handed off before removal")
}

func TestVote_SecondStartIsIgnored(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1"}, 40))
	outA := join(s, "a")
	join(s, "b")

	s.Inbox() <- StartVote{PlayerID: "a", Title: "first", Args: protocol.VoteArgs{Type: protocol.VoteSkipCard, Timeout: 60}}
	recvEvent(t, outA, protocol.EventVoteStart)
	s.Inbox() <- StartVote{PlayerID: "b", Title: "second", Args: protocol.VoteArgs{Type: protocol.VoteSkipCard, Timeout: 60}}
	recvNoEvent(t, outA, protocol.EventVoteStart, 200*time.Millisecond)
}

func TestVote_TimesOut(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1"}, 40))
	outA := join(s, "a")
	join(s, "b")

	s.Inbox() <- StartVote{PlayerID: "a", Title: "Skip", Args: protocol.VoteArgs{Type: protocol.VoteSkipCard, Timeout: 1}}
	recvEvent(t, outA, protocol.EventVoteStart)

	msg := recvEvent(t, outA, protocol.EventVoteFailed)
	assert.Equal(t, "Vote expired", msg.Text)
	assert.False(t, getView(t, s).VoteActive)
}

func TestVote_TimerAfterResolutionHasNoEffect(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1", "b2"}, 40))
	outA := join(s, "a")
	join(s, "b")

	s.Inbox() <- StartVote{PlayerID: "a", Title: "Skip", Args: protocol.VoteArgs{Type: protocol.VoteSkipCard, Timeout: 1}}
	s.Inbox() <- CastVote{PlayerID: "b", Choice: voteYes}
	recvEvent(t, outA, protocol.EventVotePassed)

	// The timer from the resolved vote fires into the void.
	recvNoEvent(t, outA, protocol.EventVoteFailed, 1500*time.Millisecond)
}

func TestDisconnect_KeepsRosterEntry(t *testing.T) {
	s := newTestSession(t, newPools([]string{"b1"}, 40))
	join(s, "a")
	outB := join(s, "b")

	s.Inbox() <- Disconnect{PlayerID: "a"}
	recvEvent(t, outB, protocol.EventGameUpdate)

	v := getView(t, s)
	require.Len(t, v.Players, 2)
	assert.True(t, playerByID(t, v, "a").Away)
}

func TestBlackPoolExhaustion_LeavesCardUnset(t *testing.T) {
	s := newTestSession(t, newPools([]string{"only"}, 40))
	join(s, "a")

	s.Inbox() <- ChooseWinner{PlayerID: "a", WinnerID: "a"}
	v := getView(t, s)
	assert.Empty(t, v.BlackCard)
	assert.Equal(t, StatePlay, v.State, "exhaustion is a stall, not a crash")
}
