// Package correlator implements the tag-to-waiter registry that
// correlates outbound frames with their inbound replies
// (SPEC_FULL.md §4.4). It is deliberately ignorant of the wire format:
// callers hand it a tag and get back a Future that resolves with
// whatever Deliver is called with.
package correlator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brinkwave/wawire/internal/metrics"
)

// ErrDuplicateTag is returned by Register when a waiter already exists
// for the given tag.
var ErrDuplicateTag = errors.New("correlator: duplicate tag")

// ErrCancelled is the result error of a Future whose waiter was removed
// by Cancel rather than resolved.
var ErrCancelled = errors.New("correlator: cancelled")

// ErrTimeout is the result error of a Future whose per-request deadline
// elapsed before a reply arrived.
var ErrTimeout = errors.New("correlator: timeout")

// Result is delivered to a Future exactly once.
type Result struct {
	Message any
	Err     error
}

// Future is returned by Register and resolves when the waiter is
// delivered, cancelled, timed out, or failed by FailAll.
type Future struct {
	ch <-chan Result
}

// Wait blocks until the Future resolves or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case r := <-f.ch:
		return r.Message, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type waiter struct {
	requiresPhone bool
	ch            chan Result
	timer         *time.Timer
	once          sync.Once
}

func (w *waiter) resolve(r Result) {
	w.once.Do(func() {
		if w.timer != nil {
			w.timer.Stop()
		}
		w.ch <- r
	})
}

// Correlator is a registry from wire tag to pending waiter. The zero
// value is not usable; construct with New. All methods are safe for
// concurrent use, though SPEC_FULL.md's concurrency model expects a
// single owning goroutine to call Register immediately before sending
// the corresponding frame.
type Correlator struct {
	mu      sync.Mutex
	waiters map[string]*waiter
	metrics *metrics.Collector
}

// New creates an empty Correlator. metrics may be nil.
func New(m *metrics.Collector) *Correlator {
	return &Correlator{
		waiters: make(map[string]*waiter),
		metrics: m,
	}
}

// Register inserts a waiter for tag with an optional timeout (zero
// means no deadline). It must be called before the corresponding frame
// is sent, so that an in-flight reply can never arrive unregistered.
func (c *Correlator) Register(tag string, requiresPhone bool, timeout time.Duration) (*Future, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.waiters[tag]; exists {
		return nil, ErrDuplicateTag
	}

	w := &waiter{requiresPhone: requiresPhone, ch: make(chan Result, 1)}
	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, func() { c.timeoutTag(tag) })
	}
	c.waiters[tag] = w
	c.setPendingMetric()
	return &Future{ch: w.ch}, nil
}

// Deliver resolves and removes the waiter for tag. If no waiter is
// registered, the reply is considered late: it reports false so the
// caller can fall back to publishing a TAG:<tag> event, and the
// message is otherwise dropped.
func (c *Correlator) Deliver(tag string, message any) bool {
	c.mu.Lock()
	w, ok := c.waiters[tag]
	if ok {
		delete(c.waiters, tag)
		c.setPendingMetric()
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	w.resolve(Result{Message: message})
	return true
}

// DeliverError rejects the waiter for tag with err instead of
// resolving it with a message, for inbound frames that parsed far
// enough to recover their tag but failed before yielding a message
// (e.g. a binary frame that fails HMAC verification). Reports false,
// same as Deliver, if no waiter is registered for tag.
func (c *Correlator) DeliverError(tag string, err error) bool {
	c.mu.Lock()
	w, ok := c.waiters[tag]
	if ok {
		delete(c.waiters, tag)
		c.setPendingMetric()
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	w.resolve(Result{Err: err})
	return true
}

// Cancel removes the waiter for tag without resolving it with a
// message; its Future resolves with ErrCancelled.
func (c *Correlator) Cancel(tag string) {
	c.mu.Lock()
	w, ok := c.waiters[tag]
	if ok {
		delete(c.waiters, tag)
		c.setPendingMetric()
	}
	c.mu.Unlock()

	if ok {
		w.resolve(Result{Err: ErrCancelled})
	}
}

// FailAll rejects every registered waiter with reason and clears the
// registry. Called on socket close.
func (c *Correlator) FailAll(reason error) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = make(map[string]*waiter)
	c.setPendingMetric()
	c.mu.Unlock()

	for _, w := range waiters {
		w.resolve(Result{Err: reason})
	}
}

// HasPhoneWaiter reports whether any currently registered waiter
// requires the phone to be connected.
func (c *Correlator) HasPhoneWaiter() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.waiters {
		if w.requiresPhone {
			return true
		}
	}
	return false
}

// Len returns the number of currently pending waiters.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *Correlator) timeoutTag(tag string) {
	c.mu.Lock()
	w, ok := c.waiters[tag]
	if ok {
		delete(c.waiters, tag)
		c.setPendingMetric()
	}
	c.mu.Unlock()

	if ok {
		w.resolve(Result{Err: ErrTimeout})
	}
}

// setPendingMetric must be called with c.mu held.
func (c *Correlator) setPendingMetric() {
	if c.metrics != nil {
		c.metrics.SetPendingRequests(len(c.waiters))
	}
}
