package frame

// Well-known context keys. Stages and plugins agree on these names;
// anything else in the context is free-form plugin state.
const (
	KeyFrame        = "frame"
	KeySkip         = "skip"
	KeyRegions      = "regions"
	KeyTranslations = "translations"
)

// Context is the mutable record that travels with one frame through the
// pipeline. It is an ordered string-to-value map: iteration follows
// insertion order, which keeps plugin-added keys deterministic.
//
// A Context is owned by whichever stage currently processes it and is
// never shared between goroutines. Ownership transfers at stage
// boundaries; overlapped mode overlaps different frames' contexts, not
// concurrent access to one.
type Context struct {
	keys   []string
	values map[string]any
}

// NewContext creates a context carrying the given frame.
// A nil frame is allowed; the capture stage fills it in.
func NewContext(f *Frame) *Context {
	c := &Context{values: make(map[string]any)}
	if f != nil {
		c.Set(KeyFrame, f)
	}
	return c
}

// Set stores a value under key, preserving first-insertion order.
func (c *Context) Set(key string, value any) {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Get returns the value stored under key, or nil if absent.
func (c *Context) Get(key string) any {
	return c.values[key]
}

// Has reports whether key is present.
func (c *Context) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Delete removes key from the context.
func (c *Context) Delete(key string) {
	if _, ok := c.values[key]; !ok {
		return
	}
	delete(c.values, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the context keys in insertion order.
func (c *Context) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Frame returns the frame carried by this context, or nil.
func (c *Context) Frame() *Frame {
	f, _ := c.values[KeyFrame].(*Frame)
	return f
}

// SetFrame stores the frame for this context.
func (c *Context) SetFrame(f *Frame) {
	c.Set(KeyFrame, f)
}

// Skip reports whether the skip flag is set. Once set by any stage it
// is honored by every subsequent stage in the same traversal.
func (c *Context) Skip() bool {
	s, _ := c.values[KeySkip].(bool)
	return s
}

// SetSkip sets or clears the skip flag.
func (c *Context) SetSkip(skip bool) {
	c.Set(KeySkip, skip)
}

// Regions returns the recognized text regions, or nil.
func (c *Context) Regions() []Region {
	r, _ := c.values[KeyRegions].([]Region)
	return r
}

// SetRegions stores the recognized text regions.
func (c *Context) SetRegions(r []Region) {
	c.Set(KeyRegions, r)
}

// Translations returns the translated regions, or nil.
func (c *Context) Translations() []Translation {
	t, _ := c.values[KeyTranslations].([]Translation)
	return t
}

// SetTranslations stores the translated regions.
func (c *Context) SetTranslations(t []Translation) {
	c.Set(KeyTranslations, t)
}
