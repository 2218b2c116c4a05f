// Package game holds the per-session state machine. Each Session runs
// one goroutine; every mutation, timer fire, and idle check enters
// through the inbox, so operations on one session are strictly
// serialized.
package game

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/whitecards/server/internal/deck"
	"github.com/whitecards/server/pkg/protocol"
)

type Msg interface{ isSessionMsg() }

// Join registers or re-binds a player. Outbox is where this player's
// connection wants server messages delivered.
type Join struct {
	PlayerID string
	Outbox   chan<- protocol.ServerMessage
}

// Disconnect marks the player away and drops its outbox. The roster
// entry survives for reconnection.
type Disconnect struct{ PlayerID string }

type PlayCard struct {
	PlayerID string
	Cards    []string
}

type EndRound struct{ PlayerID string }

type ChooseWinner struct {
	PlayerID string
	WinnerID string
}

type SetPlayerName struct {
	PlayerID string
	Name     string
}

type StartVote struct {
	PlayerID string
	Title    string
	Args     protocol.VoteArgs
}

type CastVote struct {
	PlayerID string
	Choice   string
}

// IdleSince reports the last-activity timestamp for the registry sweep.
type IdleSince struct{ Reply chan time.Time }

// GetState is a test-only hook reflecting internal state without races.
type GetState struct{ Reply chan View }

type Shutdown struct{}

// voteExpired is posted by the vote timer. Stale generations (vote
// already resolved or replaced) are ignored.
type voteExpired struct{ gen int }

func (Join) isSessionMsg()          {}
func (Disconnect) isSessionMsg()    {}
func (PlayCard) isSessionMsg()      {}
func (EndRound) isSessionMsg()      {}
func (ChooseWinner) isSessionMsg()  {}
func (SetPlayerName) isSessionMsg() {}
func (StartVote) isSessionMsg()     {}
func (CastVote) isSessionMsg()      {}
func (IdleSince) isSessionMsg()     {}
func (GetState) isSessionMsg()      {}
func (Shutdown) isSessionMsg()      {}
func (voteExpired) isSessionMsg()   {}

type View struct {
	ID             string
	Owner          string
	BlackCard      string
	Czar           string
	State          string
	Players        []PlayerView
	BlackRemaining int
	WhiteRemaining int
	VoteActive     bool
	VoteRequired   int
	VoteBallots    map[string]string
	LastAction     time.Time
}

type PlayerView struct {
	ID          string
	Name        string
	Away        bool
	Score       int
	Czar        bool
	Cards       []string
	PlayedCards []string
}

type Session struct {
	inbox chan Msg

	id         string
	owner      string
	decks      []string
	pools      *deck.Pools
	black      string
	czar       string
	state      string
	players    []*Player
	vote       *vote
	voteGen    int
	lastAction time.Time

	names *NameStore
	log   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewSession(parent context.Context, id, owner string, decks []string, pools *deck.Pools, names *NameStore, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:      make(chan Msg, 64),
		id:         id,
		owner:      owner,
		decks:      decks,
		pools:      pools,
		state:      StatePlay,
		lastAction: time.Now(),
		names:      names,
		log:        log.With(zap.String("game", id)),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.drawBlackCard()
	s.log.Info("created game",
		zap.Strings("decks", decks),
		zap.Int("black_cards", len(pools.Black)),
		zap.Int("white_cards", len(pools.White)))
	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

// Inbox is how the ws layer, the registry, and tests talk to a session.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.handleJoin(msg)
			case Disconnect:
				s.handleDisconnect(msg)
			case PlayCard:
				s.handlePlayCard(msg)
			case EndRound:
				s.handleEndRound(msg)
			case ChooseWinner:
				s.handleChooseWinner(msg)
			case SetPlayerName:
				s.handleSetPlayerName(msg)
			case StartVote:
				s.handleStartVote(msg)
			case CastVote:
				s.handleCastVote(msg)
			case voteExpired:
				s.handleVoteExpired(msg)
			case IdleSince:
				msg.Reply <- s.lastAction
			case GetState:
				msg.Reply <- s.view()
			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) shutdown() {
	if s.vote != nil {
		s.vote.timer.Stop()
		s.vote = nil
	}
	// Outboxes are owned by their connections; they are dropped, not
	// closed, since one connection may sit in several sessions.
	for _, p := range s.players {
		p.outbox = nil
	}
	s.cancel()
}

func (s *Session) handleJoin(msg Join) {
	p := findPlayer(s.players, msg.PlayerID)
	if p == nil {
		p = &Player{
			ID:   msg.PlayerID,
			Name: fmt.Sprintf("Player %d", len(s.players)+1),
		}
		if cached := s.names.Get(p.ID); cached != "" {
			p.Name = cached
		}
		p.outbox = msg.Outbox
		s.players = append(s.players, p)
		if len(s.players) == 1 {
			s.czar = p.ID
		}
		s.log.Info("player joined", zap.String("player", p.ID), zap.String("name", p.Name))
	} else {
		p.Away = false
		p.outbox = msg.Outbox
		s.log.Info("player rejoined", zap.String("player", p.ID))
	}
	s.topUpHand(p)
	s.broadcastGame()
}

func (s *Session) handleDisconnect(msg Disconnect) {
	p := findPlayer(s.players, msg.PlayerID)
	if p == nil {
		return
	}
	p.Away = true
	p.outbox = nil
	s.log.Info("player away", zap.String("player", p.ID))
	s.broadcastGame()
}

func (s *Session) handlePlayCard(msg PlayCard) {
	if p := findPlayer(s.players, msg.PlayerID); p != nil {
		for _, card := range msg.Cards {
			if !slices.Contains(p.Cards, card) {
				s.log.Warn("played card not in hand",
					zap.String("player", p.ID), zap.String("card", card))
				break
			}
		}
		if slots := deck.Slots(s.black); len(msg.Cards) != slots {
			s.log.Warn("played wrong number of cards",
				zap.String("player", p.ID),
				zap.Int("played", len(msg.Cards)), zap.Int("slots", slots))
		}
		p.PlayedCards = msg.Cards
	}
	s.broadcastGame()
}

func (s *Session) handleEndRound(msg EndRound) {
	if s.czar != msg.PlayerID {
		s.log.Warn("non-czar ended round",
			zap.String("player", msg.PlayerID), zap.String("czar", s.czar))
	}
	s.state = StateChooseWinner
	s.broadcastGame()
}

func (s *Session) handleChooseWinner(msg ChooseWinner) {
	if s.czar != msg.PlayerID {
		s.log.Warn("non-czar chose winner",
			zap.String("player", msg.PlayerID), zap.String("czar", s.czar))
	}
	for _, p := range s.players {
		for _, played := range p.PlayedCards {
			p.Cards = slices.DeleteFunc(p.Cards, func(c string) bool { return c == played })
		}
		p.PlayedCards = nil
		s.topUpHand(p)
		if p.ID == msg.WinnerID {
			p.Score++
		}
	}
	s.czar = nextCzar(s.players, s.czar)
	s.state = StatePlay
	s.drawBlackCard()
	s.broadcastGame()
}

func (s *Session) handleSetPlayerName(msg SetPlayerName) {
	if p := findPlayer(s.players, msg.PlayerID); p != nil {
		p.Name = msg.Name
		s.names.Set(p.ID, msg.Name)
	}
	s.broadcastGame()
}

func (s *Session) handleStartVote(msg StartVote) {
	if s.vote != nil {
		s.log.Warn("vote already in progress", zap.String("player", msg.PlayerID))
		return
	}
	timeout := msg.Args.Timeout
	if timeout <= 0 {
		timeout = defaultVoteTimeout
	}
	v := &vote{
		title:    msg.Title,
		timeout:  timeout,
		required: quorum(presentCount(s.players)),
		votes:    make(map[string]string),
		args:     msg.Args,
	}
	for _, p := range s.players {
		if !p.Away {
			v.votes[p.ID] = voteUnknown
		}
	}
	v.votes[msg.PlayerID] = voteYes
	s.vote = v
	s.voteGen++
	gen := s.voteGen
	s.broadcast(protocol.ServerMessage{Event: protocol.EventVoteStart, Args: v.state()})
	v.timer = time.AfterFunc(time.Duration(timeout)*time.Second, func() {
		select {
		case s.inbox <- voteExpired{gen: gen}:
		case <-s.ctx.Done():
		}
	})
	s.log.Info("vote started",
		zap.String("title", v.title), zap.Int("required", v.required))
}

func (s *Session) handleCastVote(msg CastVote) {
	v := s.vote
	if v == nil {
		return
	}
	v.votes[msg.PlayerID] = msg.Choice
	s.broadcast(protocol.ServerMessage{Event: protocol.EventVoteUpdate, Args: v.state()})
	outcome, ok := v.resolution()
	if !ok {
		return
	}
	v.timer.Stop()
	s.vote = nil
	s.log.Info("vote resolved", zap.String("title", v.title), zap.String("outcome", outcome))
	if outcome != voteYes {
		s.broadcast(protocol.ServerMessage{Event: protocol.EventVoteFailed, Text: "Vote failed"})
		return
	}
	switch v.args.Type {
	case protocol.VoteKickPlayer:
		s.kick(v.args.Player)
	case protocol.VoteSkipCard:
		for _, p := range s.players {
			p.PlayedCards = nil
		}
		s.state = StatePlay
		s.drawBlackCard()
		s.broadcastGame()
	}
	s.broadcast(protocol.ServerMessage{Event: protocol.EventVotePassed, Text: "Vote passed"})
}

func (s *Session) handleVoteExpired(msg voteExpired) {
	if s.vote == nil || msg.gen != s.voteGen {
		return
	}
	s.log.Info("vote timed out", zap.String("title", s.vote.title))
	s.vote = nil
	s.broadcast(protocol.ServerMessage{Event: protocol.EventVoteFailed, Text: "Vote expired"})
}

// kick removes the target from the roster, handing off czar duties
// first when the target holds them.
func (s *Session) kick(targetID string) {
	if s.czar == targetID {
		s.czar = nextCzar(s.players, s.czar)
	}
	s.players = slices.DeleteFunc(s.players, func(p *Player) bool { return p.ID == targetID })
	s.log.Info("player kicked", zap.String("player", targetID))
	s.broadcastGame()
}

func (s *Session) drawBlackCard() {
	card, ok := s.pools.DrawBlack()
	if !ok {
		s.log.Warn("no more black cards")
		s.black = ""
		return
	}
	s.black = card
}

// topUpHand draws white cards until the hand holds ten or the pool runs
// dry, telling the player about each draw.
func (s *Session) topUpHand(p *Player) {
	for len(p.Cards) < handSize {
		card, ok := s.pools.DrawWhite()
		if !ok {
			s.log.Warn("no more white cards")
			return
		}
		p.Cards = append(p.Cards, card)
		s.send(p, protocol.ServerMessage{Event: protocol.EventDrawCard, Card: card})
	}
}

// send delivers to one player, fire-and-forget. A full outbox drops the
// message rather than blocking the session loop or touching state.
func (s *Session) send(p *Player, msg protocol.ServerMessage) {
	if p.outbox == nil {
		return
	}
	select {
	case p.outbox <- msg:
	default:
		s.log.Warn("dropping message for slow client",
			zap.String("player", p.ID), zap.String("event", msg.Event))
	}
}

func (s *Session) broadcast(msg protocol.ServerMessage) {
	for _, p := range s.players {
		s.send(p, msg)
	}
}

// broadcastGame sends the full snapshot to every connected member and
// refreshes the idle clock.
func (s *Session) broadcastGame() {
	s.lastAction = time.Now()
	s.broadcast(protocol.ServerMessage{Event: protocol.EventGameUpdate, Game: s.snapshot()})
}

func (s *Session) snapshot() *protocol.GameSnapshot {
	snap := &protocol.GameSnapshot{
		ID:        s.id,
		Owner:     s.owner,
		BlackCard: s.black,
		Czar:      s.czar,
		State:     s.state,
		Players:   make([]protocol.PlayerSnapshot, 0, len(s.players)),
	}
	for _, p := range s.players {
		snap.Players = append(snap.Players, protocol.PlayerSnapshot{
			ID:          p.ID,
			Name:        p.Name,
			Away:        p.Away,
			Score:       p.Score,
			Czar:        p.ID == s.czar,
			Cards:       append([]string{}, p.Cards...),
			PlayedCards: append([]string{}, p.PlayedCards...),
		})
	}
	return snap
}

func (s *Session) view() View {
	v := View{
		ID:             s.id,
		Owner:          s.owner,
		BlackCard:      s.black,
		Czar:           s.czar,
		State:          s.state,
		BlackRemaining: len(s.pools.Black),
		WhiteRemaining: len(s.pools.White),
		LastAction:     s.lastAction,
	}
	for _, p := range s.players {
		v.Players = append(v.Players, PlayerView{
			ID:          p.ID,
			Name:        p.Name,
			Away:        p.Away,
			Score:       p.Score,
			Czar:        p.ID == s.czar,
			Cards:       append([]string{}, p.Cards...),
			PlayedCards: append([]string{}, p.PlayedCards...),
		})
	}
	if s.vote != nil {
		v.VoteActive = true
		v.VoteRequired = s.vote.required
		v.VoteBallots = make(map[string]string, len(s.vote.votes))
		for id, choice := range s.vote.votes {
			v.VoteBallots[id] = choice
		}
	}
	return v
}
