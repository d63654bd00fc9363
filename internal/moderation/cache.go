package moderation

import (
	"log/slog"
	"sync"
)

// CompileCache memoizes compiled matchers by pattern. It must be Reset
// whenever the rule set changes. A nil *CompileCache compiles every time.
type CompileCache struct {
	mu       sync.RWMutex
	matchers map[string]Matcher
}

func NewCompileCache() *CompileCache {
	return &CompileCache{matchers: make(map[string]Matcher)}
}

// Get returns the matcher for pattern and whether it came from the cache.
func (c *CompileCache) Get(pattern string) (Matcher, bool) {
	if c == nil {
		return Compile(pattern), false
	}

	c.mu.RLock()
	m, ok := c.matchers[pattern]
	c.mu.RUnlock()
	if ok {
		return m, true
	}

	m = Compile(pattern)
	if m.Mode() == ModeLiteral {
		slog.Debug("pattern is not a valid regex, matching literally", "pattern", pattern)
	}

	c.mu.Lock()
	if existing, ok := c.matchers[pattern]; ok {
		m = existing
	} else {
		c.matchers[pattern] = m
	}
	c.mu.Unlock()
	return m, false
}

// Reset drops every cached matcher.
func (c *CompileCache) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.matchers = make(map[string]Matcher)
	c.mu.Unlock()
}

// Len returns the number of cached matchers.
func (c *CompileCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.matchers)
}
