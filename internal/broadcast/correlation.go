package broadcast

import (
	"fmt"
	"sync"
)

// Key identifies one outstanding reply. It packs the chat address into the
// high word and the delivered message id into the low word of a 128-bit
// value, so distinct (chat, message) pairs never collide.
type Key struct {
	hi uint64
	lo uint64
}

func MakeKey(chatID int64, messageID int) Key {
	return Key{hi: uint64(chatID), lo: uint64(int64(messageID))}
}

func (k Key) ChatID() int64  { return int64(k.hi) }
func (k Key) MessageID() int { return int(int64(k.lo)) }

func (k Key) String() string { return fmt.Sprintf("%016x%016x", k.hi, k.lo) }

// slot is a single-use handoff holding at most one Outcome.
type slot chan Outcome

func newSlot() slot { return make(slot, 1) }

// resolve never blocks: only the goroutine that removed the slot from the
// store may call it, so the buffer is always free.
func (s slot) resolve(o Outcome) {
	select {
	case s <- o:
	default:
	}
}

// Store maps outstanding keys to their reply slots under one mutex.
// A key is present while its reply is outstanding. Insert and Remove are the
// only mutations; Remove is the sole way to claim a slot.
type Store struct {
	mu sync.Mutex
	m  map[Key]slot
}

func NewStore() *Store {
	return &Store{m: make(map[Key]slot)}
}

// Insert adds s under k. It reports whether an existing slot was overwritten,
// which means two outstanding prompts produced the same key.
func (s *Store) Insert(k Key, sl slot) (replaced bool) {
	s.mu.Lock()
	_, replaced = s.m[k]
	s.m[k] = sl
	s.mu.Unlock()
	return replaced
}

// Remove deletes k and returns its slot. At most one caller gets ok=true per insert.
func (s *Store) Remove(k Key) (sl slot, ok bool) {
	s.mu.Lock()
	sl, ok = s.m[k]
	if ok {
		delete(s.m, k)
	}
	s.mu.Unlock()
	return sl, ok
}

// Len returns the number of outstanding replies.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
