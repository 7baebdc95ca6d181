package wawire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/brinkwave/wawire/internal/correlator"
	"github.com/brinkwave/wawire/internal/crypto"
	"github.com/brinkwave/wawire/internal/eventbus"
	"github.com/brinkwave/wawire/internal/framer"
	"github.com/brinkwave/wawire/internal/liveness"
	"github.com/brinkwave/wawire/internal/lockmap"
	"github.com/brinkwave/wawire/internal/logging"
	"github.com/brinkwave/wawire/internal/metrics"
	"github.com/brinkwave/wawire/internal/tag"
	"github.com/brinkwave/wawire/internal/transport"
)

// Connection is the connection engine's public handle: one WebSocket,
// one correlator registry, one set of liveness timers, all serialized
// behind mu per SPEC_FULL.md §5's single-owning-goroutine model
// rendered as a mutex rather than an actor loop.
type Connection struct {
	url    string
	header http.Header
	opts   ConnectOptions
	mode   ReconnectMode
	logger logging.Logger

	bus     *eventbus.Bus
	metrics *metrics.Collector

	mu        sync.Mutex
	state     ConnectionState
	authInfo  *AuthInfo
	sock      *transport.Socket
	tagger    *tag.Tagger
	framer    *framer.Framer
	corr      *correlator.Correlator
	live      *liveness.Controller
	waiters   []chan error
	reconnect *time.Timer

	// tagLocks serializes Register+send for any caller-supplied tag, so
	// two Query calls racing on the same pending-request slot (spec.md
	// §4.5's explicit-Tag override path) can't interleave their
	// Correlator registration with their frame write.
	tagLocks *lockmap.Map[string]
}

// NewConnection creates a Connection. authInfo may be nil (no binary
// queries can be sent until LoadAuthInfo supplies one); metrics and
// logger may be nil/Nop.
func NewConnection(url string, header http.Header, opts ConnectOptions, mode ReconnectMode, authInfo *AuthInfo, m *metrics.Collector, logger logging.Logger) *Connection {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Connection{
		url:      url,
		header:   header,
		opts:     opts,
		mode:     mode,
		authInfo: authInfo,
		logger:   logger,
		metrics:  m,
		bus:      eventbus.New(),
		state:    StateClosed,
	}
}

// Bus returns the event bus external collaborators subscribe to.
func (c *Connection) Bus() *eventbus.Bus { return c.bus }

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AuthInfo returns the currently loaded credentials, or nil.
func (c *Connection) AuthInfo() *AuthInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authInfo
}

// LoadAuthInfo replaces the stored credentials. External callers use it
// to hand over credentials obtained from the (out of scope) pairing
// flow.
func (c *Connection) LoadAuthInfo(info *AuthInfo) {
	c.mu.Lock()
	c.authInfo = info
	c.mu.Unlock()
}

// Connect transitions closed -> connecting and dials the socket. It
// returns once the dial attempt has started; completion is reported
// through the open/close events on the Bus, not through this method's
// return value, matching spec.md §4.7's event-driven transition table.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return fmt.Errorf("wawire: Connect called from state %s", c.state)
	}
	c.state = StateConnecting
	c.tagger = tag.New()
	sock := transport.New(c.onText, c.onBinary)
	c.sock = sock
	c.corr = correlator.New(c.metrics)
	if c.tagLocks == nil {
		c.tagLocks = lockmap.New[string]()
	}
	c.framer = framer.New(c.tagger, sock, c.metrics)
	c.live = liveness.New(
		time.Duration(c.opts.PhoneResponseMs)*time.Millisecond,
		c.onPhoneProbeTick,
		c.onPhoneChange,
		c.onIdleTimeout,
		c.metrics,
	)
	c.mu.Unlock()

	go c.dial(ctx, sock)
	return nil
}

func (c *Connection) dial(ctx context.Context, sock *transport.Socket) {
	if err := sock.Dial(ctx, c.url, c.header); err != nil {
		c.closeSocket(err)
		return
	}
	c.handleSocketOpen()
	if err := sock.ReadLoop(ctx); err != nil {
		c.closeSocket(err)
	}
}

func (c *Connection) handleSocketOpen() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateOpen
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	c.bus.Emit("open", nil)
	for _, w := range waiters {
		w <- nil
	}
}

func (c *Connection) onText(data []byte) {
	tg, payload, err := framer.ParseJSON(data)
	if err != nil {
		c.logger.Warn("wawire: dropping malformed json frame", "error", err)
		return
	}
	c.routeReply(tg, payload, "json")
}

func (c *Connection) onBinary(data []byte) {
	c.mu.Lock()
	info := c.authInfo
	c.mu.Unlock()
	if !info.HasKeys() {
		c.logger.Warn("wawire: dropping binary frame, no auth keys loaded")
		return
	}
	tg, node, err := framer.ParseBinary(data, info.EncKey, info.MacKey)
	if err != nil {
		if tg != "" && errors.Is(err, crypto.ErrBadMac) {
			c.mu.Lock()
			corr := c.corr
			c.mu.Unlock()
			if corr != nil && corr.DeliverError(tg, ErrBadMac) {
				return
			}
		}
		c.logger.Warn("wawire: dropping malformed binary frame", "error", err)
		return
	}
	c.routeReply(tg, node, "binary")
}

func (c *Connection) routeReply(tg string, payload any, kind string) {
	if c.metrics != nil {
		c.metrics.FrameReceived(kind)
	}
	if !c.corr.Deliver(tg, payload) {
		c.bus.Emit("TAG:"+tg, payload)
	}
}

// UnexpectedDisconnect reports a disconnect noticed while the
// connection believed itself open (spec.md §4.7). It is exported so
// the Query façade can trigger the BadSession auto-retry cycle.
func (c *Connection) UnexpectedDisconnect(reason error) {
	c.closeSocket(reason)
}

// Close closes the connection intentionally; it does not reconnect.
func (c *Connection) Close(ctx context.Context) error {
	return c.shutdown(ctx, false)
}

// Logout sends the admin disconnect frame before closing intentionally
// and clearing AuthInfo.
func (c *Connection) Logout(ctx context.Context) error {
	return c.shutdown(ctx, true)
}

func (c *Connection) shutdown(ctx context.Context, logout bool) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	fr := c.framer
	tg := c.tagger
	c.mu.Unlock()

	if logout && fr != nil && tg != nil {
		payload, _ := json.Marshal([]any{"admin", "Conn", "disconnect"})
		_ = fr.SendJSON(ctx, tg.NextTag(false), payload)
		c.mu.Lock()
		c.authInfo = nil
		c.mu.Unlock()
	}

	c.closeSocket(&Intentional{})
	return nil
}

// closeSocket is the single exit path for every SocketClose and
// UnexpectedDisconnect transition: fail every waiter, release timers,
// emit ws-close then close, and schedule a reconnect if the policy and
// reason allow it (never after an Intentional close).
func (c *Connection) closeSocket(reason error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	sock := c.sock
	corr := c.corr
	live := c.live
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	if sock != nil {
		_ = sock.Close(1000, "")
	}
	if corr != nil {
		corr.FailAll(reason)
	}
	if live != nil {
		live.Release()
	}

	c.bus.Emit("ws-close", map[string]any{"reason": reason})

	_, intentional := reason.(*Intentional)
	willReconnect := !intentional && c.decide(reason)
	c.bus.Emit("close", map[string]any{"reason": reason, "isReconnecting": willReconnect})

	if _, invalid := reason.(*InvalidSession); invalid {
		c.mu.Lock()
		c.authInfo = nil
		c.mu.Unlock()
	}

	rejectWaiters := isRejectingReason(reason)
	for _, w := range waiters {
		if rejectWaiters {
			w <- reason
		} else {
			c.mu.Lock()
			c.waiters = append(c.waiters, w)
			c.mu.Unlock()
		}
	}

	if willReconnect {
		if c.metrics != nil {
			c.metrics.ReconnectScheduled()
		}
		c.mu.Lock()
		c.reconnect = time.AfterFunc(time.Duration(c.opts.ConnectCooldownMs)*time.Millisecond, func() {
			_ = c.Connect(context.Background())
		})
		c.mu.Unlock()
	}
}

func isRejectingReason(reason error) bool {
	switch reason.(type) {
	case *InvalidSession, *Intentional:
		return true
	default:
		return false
	}
}

// decide implements spec.md §4.7's reconnect policy table.
func (c *Connection) decide(reason error) bool {
	switch c.mode {
	case Off:
		return false
	case OnAllErrors:
		_, invalid := reason.(*InvalidSession)
		return !invalid
	case OnConnectionLost:
		_, replaced := reason.(*Replaced)
		_, invalid := reason.(*InvalidSession)
		return !replaced && !invalid
	default:
		return false
	}
}

// WaitForConnection resolves when the state becomes open, rejects when
// close fires with InvalidSession or Intentional, and otherwise keeps
// waiting through reconnect attempts. timeoutMs nil waits forever; <=0
// fails immediately with Closed{428}; >0 fails after that many ms with
// Timeout.
func (c *Connection) WaitForConnection(ctx context.Context, timeoutMs *int) error {
	c.mu.Lock()
	if c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	if timeoutMs != nil && *timeoutMs <= 0 {
		c.mu.Unlock()
		return &Closed{Code: 428}
	}
	ch := make(chan error, 1)
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	var timeoutCh <-chan time.Time
	if timeoutMs != nil {
		timer := time.NewTimer(time.Duration(*timeoutMs) * time.Millisecond)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case err := <-ch:
		return err
	case <-timeoutCh:
		return &Timeout{}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) onPhoneProbeTick() {
	go c.sendPhoneProbe()
}

func (c *Connection) sendPhoneProbe() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q := NewQuery([]any{"admin", "test"})
	q.WaitForOpen = false
	q.RequiresPhone = false
	q.TimeoutMs = 5000
	if _, err := c.Query(ctx, q); err == nil {
		c.bus.Emit("connection-phone-change", map[string]any{"connected": true})
	}
}

func (c *Connection) onPhoneChange(connected bool) {
	c.bus.Emit("connection-phone-change", map[string]any{"connected": connected})
}

func (c *Connection) onIdleTimeout() {
	c.UnexpectedDisconnect(&TimedOut{})
}
