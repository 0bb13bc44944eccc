// Package cache implements the two translation cache tiers consulted
// before the translate stage's primary operation: an ephemeral
// LRU-with-TTL store for session repeats, and a persistent SQLite
// learned-translation store for high-confidence results that survive
// restarts. Repeated text costs O(1) regardless of how often it recurs.
package cache

import (
	"strings"
	"sync/atomic"
	"time"
)

// DefaultLearnThreshold is the confidence at or above which a
// translation is auto-learned into the persistent tier.
const DefaultLearnThreshold = 0.8

// Key identifies one cached translation: normalized source text plus
// the language pair.
type Key struct {
	Text       string
	SourceLang string
	TargetLang string
}

// NewKey normalizes text (whitespace collapsed and trimmed) and builds
// the cache key.
func NewKey(text, sourceLang, targetLang string) Key {
	return Key{
		Text:       Normalize(text),
		SourceLang: sourceLang,
		TargetLang: targetLang,
	}
}

// Normalize collapses runs of whitespace to single spaces and trims.
// OCR output is noisy around spacing; everything else is preserved.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Entry is one cached translation.
type Entry struct {
	Key        Key
	Value      string
	Confidence float64
	InsertedAt time.Time
	LastAccess time.Time
}

// Cache is the two-tier lookup consulted by the translate stage:
// ephemeral first, then learned. A learned hit is promoted into the
// ephemeral tier so the next occurrence is a first-tier hit.
type Cache struct {
	eph     *Ephemeral
	learned *Learned

	hits   atomic.Int64
	misses atomic.Int64
}

// New composes the two tiers. learned may be nil for a purely
// ephemeral cache (tests, cache-disabled runs).
func New(eph *Ephemeral, learned *Learned) *Cache {
	return &Cache{eph: eph, learned: learned}
}

// Lookup consults the tiers in their fixed order.
func (c *Cache) Lookup(text, sourceLang, targetLang string) (*Entry, bool) {
	key := NewKey(text, sourceLang, targetLang)

	if e, ok := c.eph.Lookup(key); ok {
		c.hits.Add(1)
		return e, true
	}
	if c.learned != nil {
		if e, ok := c.learned.Lookup(key); ok {
			c.eph.Insert(e)
			c.hits.Add(1)
			return e, true
		}
	}
	c.misses.Add(1)
	return nil, false
}

// Insert records a translation result. It always lands in the
// ephemeral tier; the learned tier takes it only when confidence meets
// its learning threshold.
func (c *Cache) Insert(text, sourceLang, targetLang, translation string, confidence float64) {
	now := time.Now()
	e := &Entry{
		Key:        NewKey(text, sourceLang, targetLang),
		Value:      translation,
		Confidence: confidence,
		InsertedAt: now,
		LastAccess: now,
	}
	c.eph.Insert(e)
	if c.learned != nil {
		c.learned.Insert(e)
	}
}

// HitRate returns the fraction of lookups served from either tier.
func (c *Cache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
