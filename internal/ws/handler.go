// Package ws bridges websocket connections to session operations. Each
// connection gets a reader loop and one writer goroutine draining an
// outbox of server envelopes; inbound envelopes are converted to typed
// session messages at this boundary.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whitecards/server/internal/game"
	"github.com/whitecards/server/internal/registry"
	"github.com/whitecards/server/pkg/protocol"
)

const writeTimeout = 3 * time.Second

// joinRef remembers a session this connection joined, so the player can
// be marked away when the connection drops.
type joinRef struct {
	session  *game.Session
	playerID string
}

func Handler(reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		logger := log.With(zap.String("conn", uuid.NewString()[:8]))
		logger.Info("client connected")

		out := make(chan protocol.ServerMessage, 32)
		joined := make(map[string]joinRef)

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writer(writeCtx, conn, out)

		defer func() {
			logger.Info("client disconnected")
			for _, ref := range joined {
				ref.session.Inbox() <- game.Disconnect{PlayerID: ref.playerID}
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Clean close or otherwise, the deferred Disconnects run.
				return
			}

			var m protocol.ClientMessage
			if err := json.Unmarshal(data, &m); err != nil {
				logger.Warn("bad envelope", zap.Error(err))
				continue
			}
			dispatch(reg, logger, out, joined, m)
		}
	}
}

// dispatch routes one inbound envelope. create_game and join_game run
// before session lookup since no session may exist yet; any other event
// on an unknown game answers invalid_game to the sender only.
func dispatch(reg *registry.Registry, logger *zap.Logger, out chan protocol.ServerMessage, joined map[string]joinRef, m protocol.ClientMessage) {
	if m.Event == protocol.EventCreateGame {
		reply := make(chan *game.Session, 1)
		reg.Inbox() <- registry.Create{ID: m.Game, Decks: m.Decks, Owner: m.Player, Reply: reply}
		s := <-reply
		deliver(logger, out, protocol.ServerMessage{Event: protocol.EventGameCreated, Game: s.ID()})
		return
	}

	s := lookup(reg, m.Game)
	if s == nil {
		logger.Warn("invalid game", zap.String("game", m.Game), zap.String("event", m.Event))
		deliver(logger, out, protocol.ServerMessage{Event: protocol.EventInvalidGame})
		return
	}

	if m.Event == protocol.EventJoinGame {
		s.Inbox() <- game.Join{PlayerID: m.Player, Outbox: out}
		joined[m.Game] = joinRef{session: s, playerID: m.Player}
		return
	}

	msg, ok := toSessionMsg(m)
	if !ok {
		logger.Warn("unknown event", zap.String("event", m.Event))
		return
	}
	s.Inbox() <- msg
}

// toSessionMsg converts an envelope into the session's closed message
// set. Unknown tags are reported to the caller, not guessed at.
func toSessionMsg(m protocol.ClientMessage) (game.Msg, bool) {
	switch m.Event {
	case protocol.EventPlayCard:
		return game.PlayCard{PlayerID: m.Player, Cards: m.Cards}, true
	case protocol.EventEndRound:
		return game.EndRound{PlayerID: m.Player}, true
	case protocol.EventChooseWinner:
		return game.ChooseWinner{PlayerID: m.Player, WinnerID: m.Winner}, true
	case protocol.EventSetPlayerName:
		return game.SetPlayerName{PlayerID: m.Player, Name: m.Text}, true
	case protocol.EventStartVote:
		var args protocol.VoteArgs
		if m.Args != nil {
			args = *m.Args
		}
		return game.StartVote{PlayerID: m.Player, Title: m.Text, Args: args}, true
	case protocol.EventVote:
		return game.CastVote{PlayerID: m.Player, Choice: m.Text}, true
	default:
		return nil, false
	}
}

func lookup(reg *registry.Registry, id string) *game.Session {
	reply := make(chan *game.Session, 1)
	reg.Inbox() <- registry.Get{ID: id, Reply: reply}
	return <-reply
}

// deliver queues a message for this connection's writer; a full outbox
// drops the message rather than stalling the reader.
func deliver(logger *zap.Logger, out chan protocol.ServerMessage, msg protocol.ServerMessage) {
	select {
	case out <- msg:
	default:
		logger.Warn("dropping message for slow client", zap.String("event", msg.Event))
	}
}

func writer(ctx context.Context, conn *websocket.Conn, out <-chan protocol.ServerMessage) {
	for {
		select {
		case msg := <-out:
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			_ = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}
