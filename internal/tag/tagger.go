// Package tag generates the per-frame correlation tags echoed back by
// the server on matching replies.
package tag

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Tagger produces monotonic tags scoped to a single connection's
// lifetime. The counter resets whenever a new Tagger is created, which
// callers do once per reconnect.
type Tagger struct {
	referenceTime time.Time
	msgCount      atomic.Uint64
}

// New creates a Tagger referencing the current time.
func New() *Tagger {
	return &Tagger{referenceTime: time.Now()}
}

// NextTag returns a new tag of the form "<seconds>.--<msgCount>" when
// long is true, or "<seconds mod 1000>.--<msgCount>" otherwise. It does
// not increment msgCount itself — see Advance.
func (t *Tagger) NextTag(long bool) string {
	seconds := t.referenceTime.Unix()
	if !long {
		seconds %= 1000
	}
	return fmt.Sprintf("%d.--%d", seconds, t.msgCount.Load())
}

// Advance increments msgCount by exactly one and returns the new value.
// The Framer calls this once per successfully sent frame, never the
// Tagger itself — see SPEC_FULL.md §4.1.
func (t *Tagger) Advance() uint64 {
	return t.msgCount.Add(1)
}

// Count returns the current msgCount without mutating it.
func (t *Tagger) Count() uint64 {
	return t.msgCount.Load()
}
