// Package wawire implements the WhatsApp Web wire-protocol connection
// engine: framing, message tagging and response correlation, the
// authentication-credential lifecycle, liveness/keep-alive machinery,
// and the disconnect/reconnect state machine. Pairing, chat decoding,
// media transfer, and higher-level query builders (presence, status,
// profile picture, block list) are external collaborators that consume
// the two surfaces this package exposes: Query and the event bus.
package wawire

// ConnectionState is one of the four states the Connection state
// machine can be in.
type ConnectionState int

const (
	StateClosed ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s ConnectionState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// ReconnectMode governs which UnexpectedDisconnect reasons trigger an
// automatic reconnect attempt.
type ReconnectMode int

const (
	// OnAllErrors reconnects on every reason except InvalidSession.
	OnAllErrors ReconnectMode = iota
	// OnConnectionLost reconnects on every reason except Replaced and
	// InvalidSession.
	OnConnectionLost
	// Off never reconnects automatically.
	Off
)

// Binary frame metric and flag bytes, the server-defined single-byte
// route selectors prefixed to every outbound binary frame (spec.md §6,
// Glossary). spec.md §8 scenario 6 pins the wire bytes for a
// group/ignore "set" frame to 0x05 0x00, so MetricGroup and FlagIgnore
// carry those exact values; the rest of each enum is assigned around
// that fixed point.
const (
	MetricQueryContact byte = 0x01
	MetricPresence     byte = 0x02
	MetricPicture      byte = 0x03
	MetricBlock        byte = 0x04
	MetricGroup        byte = 0x05
	MetricQueryStatus  byte = 0x06
)

const (
	FlagIgnore      byte = 0x00
	FlagAvailable   byte = 0x01
	FlagUnavailable byte = 0x02
)

// ConnectOptions configures one connect attempt. Immutable once
// Connect is underway (spec.md §3).
type ConnectOptions struct {
	MaxIdleMs         int
	MaxRetries        int
	ConnectCooldownMs int
	PhoneResponseMs   int
	AlwaysUseTakeover bool
}
