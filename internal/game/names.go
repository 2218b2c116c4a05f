package game

import "sync"

// NameStore caches player display names across sessions, so a returning
// player keeps their name instead of an ordinal placeholder. It is built
// once at startup and injected; sessions on different goroutines share
// it, hence the lock.
type NameStore struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewNameStore() *NameStore {
	return &NameStore{names: make(map[string]string)}
}

func (n *NameStore) Get(id string) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.names[id]
}

func (n *NameStore) Set(id, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.names[id] = name
}
