// Package liveness implements two of the timers that keep a connection
// alive and honest: the phone-probe interval and the idle-debounce
// timer (SPEC_FULL.md §4.6). It has no keep-alive timer and no hook for
// cancelling one. None of these timers make reconnect decisions;
// they only emit signals the Connection State Machine interprets.
package liveness

import (
	"sync"
	"time"

	"github.com/brinkwave/wawire/internal/metrics"
)

// PhoneProbeFunc sends the ["admin","test"] frame used to provoke a
// phone-connectivity reply.
type PhoneProbeFunc func()

// PhoneChangeFunc is invoked with the optimistic phoneConnected value
// every time the probe interval fires.
type PhoneChangeFunc func(connected bool)

// IdleTimeoutFunc is invoked once when the idle-debounce timer expires.
type IdleTimeoutFunc func()

// Controller owns the phone-probe interval and the idle-debounce
// timer. The zero value is not usable; construct with New.
type Controller struct {
	phoneResponseMs time.Duration
	onProbe         PhoneProbeFunc
	onPhoneChange   PhoneChangeFunc
	onIdleTimeout   IdleTimeoutFunc
	metrics         *metrics.Collector

	mu         sync.Mutex
	probeTimer *time.Ticker
	probeStop  chan struct{}
	idleTimer  *time.Timer
}

// New creates a Controller. phoneResponseMs is the phone-probe
// interval; onProbe sends the admin/test frame; onPhoneChange reports
// the optimistic connectivity flip; onIdleTimeout fires when the idle
// debounce elapses. metrics may be nil.
func New(phoneResponseMs time.Duration, onProbe PhoneProbeFunc, onPhoneChange PhoneChangeFunc, onIdleTimeout IdleTimeoutFunc, m *metrics.Collector) *Controller {
	return &Controller{
		phoneResponseMs: phoneResponseMs,
		onProbe:         onProbe,
		onPhoneChange:   onPhoneChange,
		onIdleTimeout:   onIdleTimeout,
		metrics:         m,
	}
}

// ArmPhoneProbe starts the phone-probe interval if it is not already
// running. Safe to call repeatedly; a second call while already armed
// is a no-op.
func (c *Controller) ArmPhoneProbe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probeTimer != nil {
		return
	}
	if c.phoneResponseMs <= 0 {
		return
	}
	c.probeTimer = time.NewTicker(c.phoneResponseMs)
	c.probeStop = make(chan struct{})
	ticker := c.probeTimer
	stop := c.probeStop
	go c.runPhoneProbe(ticker, stop)
}

func (c *Controller) runPhoneProbe(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-ticker.C:
			start := time.Now()
			if c.onProbe != nil {
				c.onProbe()
			}
			if c.onPhoneChange != nil {
				c.onPhoneChange(false)
			}
			if c.metrics != nil {
				c.metrics.ObservePhoneProbeRTT(time.Since(start).Seconds())
			}
		case <-stop:
			return
		}
	}
}

// DisarmPhoneProbe stops the phone-probe interval, if armed.
func (c *Controller) DisarmPhoneProbe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probeTimer == nil {
		return
	}
	c.probeTimer.Stop()
	close(c.probeStop)
	c.probeTimer = nil
	c.probeStop = nil
}

// StartDebounce (re)arms the idle-debounce timer for maxIdle. Calling
// it again before expiry resets the deadline.
func (c *Controller) StartDebounce(maxIdle time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(maxIdle, func() {
		if c.onIdleTimeout != nil {
			c.onIdleTimeout()
		}
	})
}

// StopDebounce cancels the idle-debounce timer without firing it.
func (c *Controller) StopDebounce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

// Release cancels every timer the Controller owns. Called on state
// exit from open, per SPEC_FULL.md §4.6.
func (c *Controller) Release() {
	c.DisarmPhoneProbe()
	c.StopDebounce()
}
