// Package transport wraps the raw WebSocket connection the state
// machine drives. It owns dialing and the read loop; it holds no
// reconnect policy of its own — that is the Connection State Machine's
// job (SPEC_FULL.md §4.7). A ReadLoop returning an error is reported
// upward as a plain socket-close signal.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"nhooyr.io/websocket"
)

// TextHandler is called for every incoming text frame with its raw
// bytes — the Framer is responsible for splitting off the leading tag.
type TextHandler func(data []byte)

// BinaryHandler is called for every incoming binary frame.
type BinaryHandler func(data []byte)

// Socket is a single WebSocket connection. The zero value is not
// usable; create one with New.
type Socket struct {
	onText   TextHandler
	onBinary BinaryHandler

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a Socket. Call Dial to establish the connection, then
// ReadLoop to start dispatching inbound frames.
func New(onText TextHandler, onBinary BinaryHandler) *Socket {
	return &Socket{onText: onText, onBinary: onBinary}
}

// Dial connects to url, sending header on the handshake request.
func (s *Socket) Dial(ctx context.Context, url string, header http.Header) error {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("transport: dial: %w", err)
	}
	s.setConn(conn)
	return nil
}

// ReadLoop blocks, dispatching inbound frames to the configured
// handlers until the connection errors or ctx is cancelled. The
// returned error is always non-nil (ctx.Err() on cancellation).
func (s *Socket) ReadLoop(ctx context.Context) error {
	conn := s.getConn()
	if conn == nil {
		return fmt.Errorf("transport: not connected")
	}
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		switch msgType {
		case websocket.MessageText:
			if s.onText != nil {
				s.onText(data)
			}
		case websocket.MessageBinary:
			if s.onBinary != nil {
				s.onBinary(data)
			}
		}
	}
}

// WriteText sends a text frame. Safe to call concurrently with itself
// and with WriteBinary.
func (s *Socket) WriteText(ctx context.Context, data []byte) error {
	conn := s.getConn()
	if conn == nil {
		return fmt.Errorf("transport: not connected")
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// WriteBinary sends a binary frame.
func (s *Socket) WriteBinary(ctx context.Context, data []byte) error {
	conn := s.getConn()
	if conn == nil {
		return fmt.Errorf("transport: not connected")
	}
	return conn.Write(ctx, websocket.MessageBinary, data)
}

// Close closes the underlying connection, if any, with the given
// WebSocket close code and reason.
func (s *Socket) Close(code websocket.StatusCode, reason string) error {
	conn := s.getConn()
	s.setConn(nil)
	if conn == nil {
		return nil
	}
	return conn.Close(code, reason)
}

// Connected reports whether a connection is currently set.
func (s *Socket) Connected() bool {
	return s.getConn() != nil
}

func (s *Socket) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Socket) getConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
