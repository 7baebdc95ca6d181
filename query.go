package wawire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/brinkwave/wawire/internal/binary"
	"github.com/brinkwave/wawire/internal/correlator"
)

// explicitTagLock returns a no-op unlock for auto-assigned tags (query
// serializes those under its own shared lock) and a real lockmap
// release for caller-supplied tags, guarding the Register-then-send window against a second Query
// call racing on the same slot.
func (c *Connection) explicitTagLock(tg string, explicit bool) func() {
	if !explicit {
		return func() {}
	}
	c.mu.Lock()
	locks := c.tagLocks
	c.mu.Unlock()
	if locks == nil {
		return func() {}
	}
	return locks.Lock(tg)
}

// QueryRequest is the input to Query (spec.md §4.5). Construct with
// NewQuery, which fills in the documented defaults
// (WaitForOpen=true, RequiresPhone=true).
type QueryRequest struct {
	// JSON is marshaled and sent as the JSON frame payload when
	// UseBinary is false.
	JSON any

	// UseBinary, Node, BinaryMetric, BinaryFlag select the binary
	// frame path: Node is encoded, sealed under the connection's
	// current AuthInfo, and sent with the given metric/flag bytes.
	UseBinary    bool
	Node         binary.Node
	BinaryMetric byte
	BinaryFlag   byte

	// Tag overrides the auto-assigned correlator tag.
	Tag string
	// LongTag selects NextTag's long form.
	LongTag bool

	// TimeoutMs is the Correlator registration deadline; 0 means no
	// deadline.
	TimeoutMs int
	// WaitTimeoutMs is passed to WaitForConnection when WaitForOpen is
	// set; nil waits forever.
	WaitTimeoutMs *int

	Expect2xx     bool
	WaitForOpen   bool
	RequiresPhone bool
	StartDebounce bool
}

// NewQuery creates a QueryRequest for a JSON-frame query with the
// spec's documented defaults.
func NewQuery(json any) *QueryRequest {
	return &QueryRequest{
		JSON:          json,
		WaitForOpen:   true,
		RequiresPhone: true,
	}
}

// Query sends q and waits for its reply, per spec.md §4.5. A 599
// reply triggers exactly one automatic disconnect+reconnect+retry
// cycle (spec.md §9, Open Questions: depth fixed at 1).
func (c *Connection) Query(ctx context.Context, q *QueryRequest) (any, error) {
	return c.query(ctx, q, 0)
}

func (c *Connection) query(ctx context.Context, q *QueryRequest, depth int) (any, error) {
	if q.WaitForOpen {
		if err := c.WaitForConnection(ctx, q.WaitTimeoutMs); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	tagger := c.tagger
	corrReg := c.corr
	fr := c.framer
	authInfo := c.authInfo
	c.mu.Unlock()
	if tagger == nil || corrReg == nil || fr == nil {
		return nil, ErrNotConnected
	}

	tg := q.Tag
	explicit := tg != ""
	// An auto-assigned tag is derived from msgCount, which only advances
	// once the frame is sent, so NextTag through the send runs under one
	// shared lock (key "", which no caller-supplied tag uses).
	releaseAuto := func() {}
	if !explicit {
		releaseAuto = c.explicitTagLock("", true)
		tg = tagger.NextTag(q.LongTag)
	}
	unlockTag := c.explicitTagLock(tg, explicit)
	defer unlockTag()

	var timeout time.Duration
	if q.TimeoutMs > 0 {
		timeout = time.Duration(q.TimeoutMs) * time.Millisecond
	}
	future, err := corrReg.Register(tg, q.RequiresPhone, timeout)
	if err != nil {
		releaseAuto()
		if errors.Is(err, correlator.ErrDuplicateTag) {
			return nil, ErrDuplicateTag
		}
		return nil, err
	}
	if q.RequiresPhone {
		c.mu.Lock()
		live := c.live
		c.mu.Unlock()
		if live != nil {
			live.ArmPhoneProbe()
		}
	}

	var sendErr error
	if q.UseBinary {
		if !authInfo.HasKeys() {
			sendErr = fmt.Errorf("wawire: cannot send binary frame without auth keys")
		} else {
			plaintext := binary.Encode(q.Node)
			sendErr = fr.SendBinary(ctx, tg, q.BinaryMetric, q.BinaryFlag, plaintext, authInfo.EncKey, authInfo.MacKey)
		}
	} else {
		payload, marshalErr := json.Marshal(q.JSON)
		if marshalErr != nil {
			sendErr = fmt.Errorf("wawire: marshal query: %w", marshalErr)
		} else {
			sendErr = fr.SendJSON(ctx, tg, payload)
		}
	}
	releaseAuto()
	if sendErr != nil {
		corrReg.Cancel(tg)
		return nil, sendErr
	}

	if q.StartDebounce {
		c.mu.Lock()
		live := c.live
		maxIdle := time.Duration(c.opts.MaxIdleMs) * time.Millisecond
		c.mu.Unlock()
		if live != nil {
			live.StartDebounce(maxIdle)
		}
	}

	msg, err := future.Wait(ctx)
	if err != nil {
		if errors.Is(err, correlator.ErrTimeout) {
			return nil, &Timeout{Query: describeQuery(q)}
		}
		return nil, err
	}

	if q.Expect2xx {
		status, statusText, ok := extractStatus(msg)
		if ok && (status < 200 || status > 299) {
			if status == 599 {
				if depth >= 1 {
					return nil, &ServerError{Status: 599, StatusText: statusText, Query: describeQuery(q)}
				}
				c.UnexpectedDisconnect(&BadSession{})
				retryQ := *q
				return c.query(ctx, &retryQ, depth+1)
			}
			return nil, &ServerError{Status: status, StatusText: statusText, Query: describeQuery(q)}
		}
	}
	return msg, nil
}

// SetQuery wraps Query with the ["action",{epoch,type:"set"},nodes]
// envelope used for every state-mutating binary request (spec.md
// §4.5). flags defaults to (MetricGroup, FlagIgnore) when both are
// zero.
func (c *Connection) SetQuery(ctx context.Context, nodes []binary.Node, metric, flag byte, tg string) (any, error) {
	if metric == 0 && flag == 0 {
		metric, flag = MetricGroup, FlagIgnore
	}

	c.mu.Lock()
	tagger := c.tagger
	c.mu.Unlock()
	epoch := uint64(0)
	if tagger != nil {
		epoch = tagger.Count()
	}

	action := binary.Node{
		Tag: "action",
		Attrs: map[string]string{
			"epoch": strconv.FormatUint(epoch, 10),
			"type":  "set",
		},
		Content: nodes,
	}

	q := NewQuery(nil)
	q.UseBinary = true
	q.Node = action
	q.BinaryMetric = metric
	q.BinaryFlag = flag
	q.Tag = tg
	q.Expect2xx = true
	q.RequiresPhone = true
	return c.Query(ctx, q)
}

func describeQuery(q *QueryRequest) string {
	if q.UseBinary {
		return fmt.Sprintf("binary:%s", q.Node.Tag)
	}
	b, err := json.Marshal(q.JSON)
	if err != nil {
		return "<unmarshalable query>"
	}
	return string(b)
}

func extractStatus(msg any) (status int, statusText string, ok bool) {
	m, isMap := msg.(map[string]any)
	if !isMap {
		return 0, "", false
	}
	raw, exists := m["status"]
	if !exists {
		return 0, "", false
	}
	switch v := raw.(type) {
	case float64:
		status = int(v)
	case int:
		status = v
	default:
		return 0, "", false
	}
	if st, ok := m["statusText"].(string); ok {
		statusText = st
	}
	return status, statusText, true
}
