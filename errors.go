package wawire

import (
	"errors"
	"fmt"
)

// Timeout is returned when a per-request or WaitForConnection deadline
// elapses before a reply arrives.
type Timeout struct{ Query string }

func (e *Timeout) Error() string {
	if e.Query == "" {
		return "wawire: timeout"
	}
	return fmt.Sprintf("wawire: timeout waiting for %s", e.Query)
}

// Closed is returned when an operation is rejected because the
// connection state is not open, carrying the numeric code the caller
// would have seen over HTTP for the equivalent condition (e.g. 428).
type Closed struct{ Code int }

func (e *Closed) Error() string { return fmt.Sprintf("wawire: closed (%d)", e.Code) }

// BadSession is the mapped reason for an HTTP-like 599 status from the
// server; it triggers one automatic disconnect+reconnect+retry cycle.
type BadSession struct{}

func (*BadSession) Error() string { return "wawire: bad session (599)" }

// InvalidSession means the server rejected stored credentials; the
// core clears AuthInfo and does not reconnect.
type InvalidSession struct{}

func (*InvalidSession) Error() string { return "wawire: invalid session" }

// Replaced means another device took over the session.
type Replaced struct{}

func (*Replaced) Error() string { return "wawire: replaced by another device" }

// Intentional means the caller closed the connection on purpose.
type Intentional struct{}

func (*Intentional) Error() string { return "wawire: intentional close" }

// TimedOut means the idle-debounce timer expired.
type TimedOut struct{}

func (*TimedOut) Error() string { return "wawire: idle timeout" }

// ServerError carries a non-2xx status from a reply whose query
// required one.
type ServerError struct {
	Status     int
	StatusText string
	Query      string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("wawire: server error %d %s for %s", e.Status, e.StatusText, e.Query)
}

// ErrBadMac is returned when a binary frame's HMAC fails verification.
var ErrBadMac = errors.New("wawire: bad mac")

// ErrDuplicateTag means Register was called twice for the same tag
// before the first waiter resolved.
var ErrDuplicateTag = errors.New("wawire: duplicate tag")

// ErrNotConnected is returned by operations that require an open
// socket when none is present.
var ErrNotConnected = errors.New("wawire: not connected")
