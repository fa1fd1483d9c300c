package memory

import (
	"sync"

	"finsight/internal/chat/schema"
)

// DefaultWindow is how many of the most recent turns a conversation keeps.
const DefaultWindow = 4

const shardCount = 16

// Key identifies one conversation thread. Memory is keyed per
// (user, company): retrieval is already scope-filtered, but a per-user
// thread would let one company's phrasing bleed into another company's
// answer context, so each company the user discusses gets its own thread.
type Key struct {
	UserID    uint
	CompanyID uint
}

type shard struct {
	mu            sync.RWMutex
	conversations map[Key][]schema.Turn
	locks         map[Key]*sync.Mutex
}

// Store holds bounded, in-process conversation history. It is created
// lazily per key, cleared on logout, and intentionally not persisted:
// losing history on restart is an accepted non-goal, not a bug.
//
// Map access is sharded; in addition each key owns a mutex that callers
// acquire around the history-read / compose / append critical section so
// concurrent requests for the same conversation serialize instead of
// interleaving turns.
type Store struct {
	shards [shardCount]*shard
	window int
}

// NewStore creates a Store retaining at most window turns per key.
// A non-positive window falls back to DefaultWindow.
func NewStore(window int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	s := &Store{window: window}
	for i := range s.shards {
		s.shards[i] = &shard{
			conversations: make(map[Key][]schema.Turn),
			locks:         make(map[Key]*sync.Mutex),
		}
	}
	return s
}

func (s *Store) shardFor(key Key) *shard {
	h := key.UserID*31 + key.CompanyID
	return s.shards[h%shardCount]
}

// Lock acquires the per-key serialization lock and returns the unlock
// function. The lock outlives Clear so a conversation restarted after
// logout still serializes correctly.
func (s *Store) Lock(key Key) func() {
	sh := s.shardFor(key)

	sh.mu.Lock()
	mu, ok := sh.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		sh.locks[key] = mu
	}
	sh.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// History returns the retained turns for the key, oldest first. The
// returned slice is a copy; mutating it does not affect the store.
func (s *Store) History(key Key) []schema.Turn {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	turns := sh.conversations[key]
	if len(turns) == 0 {
		return nil
	}
	out := make([]schema.Turn, len(turns))
	copy(out, turns)
	return out
}

// Append records a completed exchange, evicting the oldest turn once the
// window is full. Overflow is silent.
func (s *Store) Append(key Key, question, answer string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	turns := append(sh.conversations[key], schema.Turn{Question: question, Answer: answer})
	if len(turns) > s.window {
		turns = turns[len(turns)-s.window:]
	}
	sh.conversations[key] = turns
}

// Len reports how many turns the key currently retains.
func (s *Store) Len(key Key) int {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.conversations[key])
}

// Clear removes all turns for the key.
func (s *Store) Clear(key Key) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.conversations, key)
}

// ClearUser removes every conversation the user holds, across all
// companies. Used on logout.
func (s *Store) ClearUser(userID uint) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key := range sh.conversations {
			if key.UserID == userID {
				delete(sh.conversations, key)
			}
		}
		sh.mu.Unlock()
	}
}
