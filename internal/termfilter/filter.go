// Package termfilter removes terminal query responses and scrollback-clearing
// sequences from raw output chunks before they reach the render target.
package termfilter

import (
	"fmt"
	"regexp"
	"sync"
)

// Filter is one pure transform over an output chunk. Apply must be idempotent
// and side-effect-free.
type Filter struct {
	ID    string
	Apply func(string) string
}

// Chain is an ordered, registerable list of filters. The zero value is not
// usable; construct with NewChain.
type Chain struct {
	mu      sync.RWMutex
	filters []Filter
}

// NewChain constructs a chain with the default query-response filter
// registered.
func NewChain() *Chain {
	c := &Chain{}
	_ = c.Register(Filter{ID: "query-responses", Apply: StripQueryResponses})
	return c
}

// Register appends a filter. Filter ids must be unique within the chain.
func (c *Chain) Register(f Filter) error {
	if f.ID == "" || f.Apply == nil {
		return fmt.Errorf("filter requires an id and an apply function")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.filters {
		if existing.ID == f.ID {
			return fmt.Errorf("filter %q already registered", f.ID)
		}
	}
	c.filters = append(c.filters, f)
	return nil
}

// Unregister removes the filter with the given id, if present.
func (c *Chain) Unregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, f := range c.filters {
		if f.ID == id {
			c.filters = append(c.filters[:i], c.filters[i+1:]...)
			return
		}
	}
}

// IDs returns the registered filter ids in application order.
func (c *Chain) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.filters))
	for _, f := range c.filters {
		ids = append(ids, f.ID)
	}
	return ids
}

// Apply runs every registered filter over the chunk in order.
func (c *Chain) Apply(chunk string) string {
	c.mu.RLock()
	filters := c.filters
	c.mu.RUnlock()
	for _, f := range filters {
		chunk = f.Apply(chunk)
	}
	return chunk
}

// Terminal query responses. These are the terminal's replies to queries the
// running program issued; they are not output the user should see.
var (
	// OSC 10-12 color reports: ESC ] 1[0-2] ; rgb:RRRR/GGGG/BBBB (BEL | ESC \).
	oscColorReport = regexp.MustCompile(`\x1b\]1[0-2];rgb:[0-9a-fA-F]{1,4}/[0-9a-fA-F]{1,4}/[0-9a-fA-F]{1,4}(?:\x07|\x1b\\)`)
	// Device Attributes reports: ESC [ ? ... c.
	deviceAttrReport = regexp.MustCompile(`\x1b\[\?[0-9;]*c`)
	// Cursor Position Reports: ESC [ row ; col R.
	cursorPosReport = regexp.MustCompile(`\x1b\[[0-9]+;[0-9]+R`)
	// Bare fragments of the above surviving a malformed echo (ESC lost).
	bareColorReport      = regexp.MustCompile(`\]?1[0-2];rgb:[0-9a-fA-F]{1,4}/[0-9a-fA-F]{1,4}/[0-9a-fA-F]{1,4}\x07?`)
	bareDeviceAttrReport = regexp.MustCompile(`\[\?[0-9;]*c`)

	// ESC [ 3 J clears scrollback; honoring it would make the viewport jump on
	// reattachment. ESC [ 2 J and ESC c pass through.
	clearScrollback = regexp.MustCompile(`\x1b\[3J`)
)

// StripQueryResponses removes OSC color reports, Device Attributes reports,
// Cursor Position Reports, and bare fragments of each.
func StripQueryResponses(chunk string) string {
	chunk = oscColorReport.ReplaceAllString(chunk, "")
	chunk = deviceAttrReport.ReplaceAllString(chunk, "")
	chunk = cursorPosReport.ReplaceAllString(chunk, "")
	chunk = bareColorReport.ReplaceAllString(chunk, "")
	chunk = bareDeviceAttrReport.ReplaceAllString(chunk, "")
	return chunk
}

// StripClearScrollback removes ESC [ 3 J unconditionally. Applied before
// buffering, independent of chain registration.
func StripClearScrollback(chunk string) string {
	return clearScrollback.ReplaceAllString(chunk, "")
}
