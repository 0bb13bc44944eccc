package translate

import (
	"sync/atomic"

	"github.com/ayusman/yavanika/internal/cache"
)

// Cached wraps a Translator with the two cache tiers. Lookups hit the
// ephemeral tier, then the learned store, and only then the primary
// engine; results confident enough to learn are written back to both
// tiers. This makes repeated text O(1) for the rest of the session.
type Cached struct {
	inner Translator
	cache *cache.Cache

	primaryCalls atomic.Int64
}

// NewCached wraps inner with c.
func NewCached(inner Translator, c *cache.Cache) *Cached {
	return &Cached{inner: inner, cache: c}
}

// Translate serves from cache when possible.
func (t *Cached) Translate(text, sourceLang, targetLang string) (Result, error) {
	if e, ok := t.cache.Lookup(text, sourceLang, targetLang); ok {
		return Result{Text: e.Value, Confidence: e.Confidence}, nil
	}

	t.primaryCalls.Add(1)
	res, err := t.inner.Translate(text, sourceLang, targetLang)
	if err != nil {
		return Result{}, err
	}
	t.cache.Insert(text, sourceLang, targetLang, res.Text, res.Confidence)
	return res, nil
}

// PrimaryCalls reports how many translations reached the inner engine.
func (t *Cached) PrimaryCalls() int64 {
	return t.primaryCalls.Load()
}

// Close closes the inner translator.
func (t *Cached) Close() error {
	return t.inner.Close()
}
