package engine

import (
	"log/slog"
	"time"
)

// coalescer collects keys over a time window and flushes them as one batch.
// A single timer is armed when the queue goes from empty to non-empty; new
// keys never push it back. It runs on the engine loop and is not safe for
// concurrent use.
type coalescer struct {
	name    string
	logger  *slog.Logger
	window  time.Duration
	after   func(time.Duration, func()) Timer
	flushFn func(keys []string)

	queued map[string]bool
	order  []string
	armed  bool
}

func newCoalescer(name string, logger *slog.Logger, window time.Duration, after func(time.Duration, func()) Timer, flushFn func([]string)) *coalescer {
	return &coalescer{
		name:    name,
		logger:  logger.With("queue", name),
		window:  window,
		after:   after,
		flushFn: flushFn,
		queued:  make(map[string]bool),
	}
}

// Add queues key. Returns false if it was already queued.
func (c *coalescer) Add(key string) bool {
	if c.queued[key] {
		return false
	}
	c.queued[key] = true
	c.order = append(c.order, key)
	if !c.armed {
		c.armed = true
		c.after(c.window, c.flush)
	}
	return true
}

func (c *coalescer) Has(key string) bool {
	return c.queued[key]
}

func (c *coalescer) Len() int {
	return len(c.order)
}

// Remove drops key from the queue without flushing it
func (c *coalescer) Remove(key string) {
	if !c.queued[key] {
		return
	}
	delete(c.queued, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *coalescer) flush() {
	keys := c.order
	c.order = nil
	c.queued = make(map[string]bool)
	c.armed = false

	if len(keys) == 0 {
		return
	}

	c.logger.Debug("flushing batch", "keys", len(keys))
	c.flushFn(keys)
}
