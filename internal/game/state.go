package game

import (
	"slices"

	"github.com/whitecards/server/pkg/protocol"
)

// Round phases, as they appear on the wire.
const (
	StatePlay         = "play"
	StateChooseWinner = "choose_winner"
)

const handSize = 10

type Player struct {
	ID          string
	Name        string
	Away        bool
	Score       int
	Cards       []string
	PlayedCards []string

	// outbox is a weak reference to the connection's write channel,
	// owned by the ws handler. nil while the player is away.
	outbox chan<- protocol.ServerMessage
}

// nextCzar returns the id of the roster member following current,
// skipping away players and wrapping to the first roster entry when no
// eligible member follows. A single-member roster keeps its czar, and an
// unknown current id leaves the czar unchanged.
func nextCzar(players []*Player, current string) string {
	idx := slices.IndexFunc(players, func(p *Player) bool { return p.ID == current })
	if idx < 0 {
		return current
	}
	for i := idx + 1; i < len(players); i++ {
		if !players[i].Away {
			return players[i].ID
		}
	}
	return players[0].ID
}

// presentCount is the number of non-away roster members.
func presentCount(players []*Player) int {
	n := 0
	for _, p := range players {
		if !p.Away {
			n++
		}
	}
	return n
}

func findPlayer(players []*Player, id string) *Player {
	for _, p := range players {
		if p.ID == id {
			return p
		}
	}
	return nil
}
