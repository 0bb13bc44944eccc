package cache

import (
	"container/list"
	"sync"
	"time"
)

// Ephemeral tier defaults.
const (
	DefaultCapacity = 1024
	DefaultTTL      = time.Hour
)

// Ephemeral is the in-memory first cache tier: exact-match O(1)
// lookups, LRU eviction once the entry cap is reached, and lazy TTL
// expiry checked on access. It is the one structure mutated from
// multiple scheduler goroutines in overlapped mode, so every operation
// takes the internal lock.
type Ephemeral struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[Key]*list.Element
	lru      *list.List // front = most recently used

	// now is swappable for TTL tests.
	now func() time.Time
}

// NewEphemeral creates the tier. Non-positive capacity or TTL select
// the defaults.
func NewEphemeral(capacity int, ttl time.Duration) *Ephemeral {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ephemeral{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[Key]*list.Element),
		lru:      list.New(),
		now:      time.Now,
	}
}

// Lookup returns the live entry for key. An entry older than the TTL
// is evicted on this access and reported as a miss.
func (e *Ephemeral) Lookup(key Key) (*Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	el, ok := e.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*Entry)
	if e.now().Sub(entry.InsertedAt) > e.ttl {
		e.lru.Remove(el)
		delete(e.entries, key)
		return nil, false
	}
	entry.LastAccess = e.now()
	e.lru.MoveToFront(el)
	return entry, true
}

// Insert stores or refreshes an entry, evicting from the LRU tail once
// the capacity is exceeded.
func (e *Ephemeral) Insert(entry *Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if el, ok := e.entries[entry.Key]; ok {
		el.Value = entry
		e.lru.MoveToFront(el)
		return
	}
	e.entries[entry.Key] = e.lru.PushFront(entry)

	for e.lru.Len() > e.capacity {
		oldest := e.lru.Back()
		e.lru.Remove(oldest)
		delete(e.entries, oldest.Value.(*Entry).Key)
	}
}

// Len returns the current entry count.
func (e *Ephemeral) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lru.Len()
}
