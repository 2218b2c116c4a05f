// Package registry owns every live session, keyed by game id. A single
// goroutine serves create/get/remove and runs the idle sweep, so the
// session map is never touched concurrently.
package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/whitecards/server/internal/deck"
	"github.com/whitecards/server/internal/game"
)

type Msg interface{ isRegistryMsg() }

// Create builds a session for an unseen id. For a known id it logs the
// conflict and replies with the existing session untouched, so client
// retries of create_game stay idempotent.
type Create struct {
	ID    string
	Decks []string
	Owner string
	Reply chan *game.Session
}

// Get replies with the session or nil.
type Get struct {
	ID    string
	Reply chan *game.Session
}

type Remove struct{ ID string }

type Shutdown struct{}

// sweep is posted by the internal ticker.
type sweep struct{}

func (Create) isRegistryMsg()   {}
func (Get) isRegistryMsg()      {}
func (Remove) isRegistryMsg()   {}
func (Shutdown) isRegistryMsg() {}
func (sweep) isRegistryMsg()    {}

type Options struct {
	SweepInterval time.Duration // how often idle sessions are checked
	IdleAfter     time.Duration // how long without activity before expiry
}

func (o *Options) withDefaults() {
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Second
	}
	if o.IdleAfter <= 0 {
		o.IdleAfter = time.Hour
	}
}

type Registry struct {
	inbox    chan Msg
	sessions map[string]*game.Session
	catalog  *deck.Catalog
	names    *game.NameStore
	opts     Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(parent context.Context, catalog *deck.Catalog, names *game.NameStore, opts Options, log *zap.Logger) *Registry {
	opts.withDefaults()
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		inbox:    make(chan Msg, 64),
		sessions: make(map[string]*game.Session),
		catalog:  catalog,
		names:    names,
		opts:     opts,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go r.loop()
	return r
}

func (r *Registry) Inbox() chan<- Msg { return r.inbox }

func (r *Registry) loop() {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-ticker.C:
			r.sweepIdle()

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Create:
				if s := r.sessions[msg.ID]; s != nil {
					r.log.Warn("attempt to recreate game", zap.String("game", msg.ID))
					msg.Reply <- s
					break
				}
				s := game.NewSession(r.ctx, msg.ID, msg.Owner, msg.Decks,
					r.catalog.Pools(msg.Decks), r.names, r.log)
				r.sessions[msg.ID] = s
				msg.Reply <- s

			case Get:
				msg.Reply <- r.sessions[msg.ID] // may be nil

			case Remove:
				delete(r.sessions, msg.ID)

			case sweep:
				r.sweepIdle()

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

// sweepIdle asks each session for its last-activity timestamp and shuts
// down the ones idle past the threshold. The reply channel keeps the
// read serialized with the session's own mutations.
func (r *Registry) sweepIdle() {
	cutoff := time.Now().Add(-r.opts.IdleAfter)
	for id, s := range r.sessions {
		reply := make(chan time.Time, 1)
		select {
		case s.Inbox() <- game.IdleSince{Reply: reply}:
		case <-r.ctx.Done():
			return
		}
		var last time.Time
		select {
		case last = <-reply:
		case <-r.ctx.Done():
			return
		}
		if last.Before(cutoff) {
			r.log.Info("expiring idle game", zap.String("game", id))
			s.Inbox() <- game.Shutdown{}
			delete(r.sessions, id)
		}
	}
}

func (r *Registry) shutdown() {
	for id, s := range r.sessions {
		s.Inbox() <- game.Shutdown{}
		delete(r.sessions, id)
	}
	r.cancel()
}
