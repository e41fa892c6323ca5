package conversation

import (
	"sync"
	"time"

	"golang.org/x/exp/maps"
)

// DefaultStalenessWindow is how long an unfinished flow stays resumable.
const DefaultStalenessWindow = 5 * time.Minute

type entry struct {
	state     State
	createdAt time.Time
}

// Store holds at most one flow state per user. Expiry is lazy: a stale entry
// is cleared on the next read and reported as Idle. Nothing here needs a
// background timer since only the same user's next message ever reads it.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	window  time.Duration
	now     func() time.Time
}

// NewStore creates a store with the given staleness window.
// A non-positive window falls back to the default.
func NewStore(window time.Duration) *Store {
	if window <= 0 {
		window = DefaultStalenessWindow
	}
	return &Store{
		entries: make(map[string]entry),
		window:  window,
		now:     time.Now,
	}
}

// Get returns the user's current state, or Idle when nothing is stored.
// A state older than the staleness window is dropped as a side effect and
// reported as Idle, so abandoned flows silently restart.
func (s *Store) Get(user string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[user]
	if !ok {
		return Idle{}
	}

	if s.now().Sub(e.createdAt) > s.window {
		delete(s.entries, user)
		return Idle{}
	}

	return e.state
}

// Set replaces the user's flow state. Storing Idle is equivalent to Clear.
func (s *Store) Set(user string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := state.(Idle); ok {
		delete(s.entries, user)
		return
	}

	s.entries[user] = entry{state: state, createdAt: s.now()}
}

// Clear drops the user's flow state, if any.
func (s *Store) Clear(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, user)
}

// ActiveUsers lists users with a stored (possibly stale) flow state.
func (s *Store) ActiveUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Keys(s.entries)
}
