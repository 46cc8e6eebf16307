package httpx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Trace is W3C trace context carried by the traceparent header.
// TraceID is 32 hex digits, SpanID 16 and Flags 2.
type Trace struct {
	TraceID string
	SpanID  string
	Flags   string
}

// NewTrace starts a trace with a fresh trace and span ID.
func NewTrace() Trace {
	id := uuid.New()
	return Trace{TraceID: hex.EncodeToString(id[:]), SpanID: newSpanID(), Flags: "01"}
}

// Child returns the trace with a new span ID, for an outgoing request.
func (t Trace) Child() Trace {
	t.SpanID = newSpanID()
	return t
}

// String formats t as a traceparent value.
func (t Trace) String() string {
	flags := t.Flags
	if flags == "" {
		flags = "01"
	}
	return "00-" + t.TraceID + "-" + t.SpanID + "-" + flags
}

func newSpanID() string {
	var b [8]byte
	for {
		_, _ = rand.Read(b[:])
		if b != [8]byte{} {
			return hex.EncodeToString(b[:])
		}
	}
}

// ParseTraceparent reads a traceparent header value. All-zero IDs are
// invalid.
func ParseTraceparent(v string) (Trace, bool) {
	parts := strings.Split(strings.TrimSpace(v), "-")
	if len(parts) < 4 {
		return Trace{}, false
	}
	ver, tid, sid, fl := parts[0], parts[1], parts[2], parts[3]
	if len(ver) != 2 || len(tid) != 32 || len(sid) != 16 || len(fl) != 2 || ver == "ff" {
		return Trace{}, false
	}
	if !isHex(ver) || !isHex(tid) || !isHex(sid) || !isHex(fl) {
		return Trace{}, false
	}
	if tid == strings.Repeat("0", 32) || sid == strings.Repeat("0", 16) {
		return Trace{}, false
	}
	return Trace{TraceID: tid, SpanID: sid, Flags: fl}, true
}

// isHex accepts lowercase hex only, as traceparent requires.
func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

type traceKeyType struct{}

var traceKey traceKeyType

// WithTrace stores trace context in ctx.
func WithTrace(ctx context.Context, tr Trace) context.Context {
	return context.WithValue(ctx, traceKey, tr)
}

// TraceFrom extracts trace context from ctx.
func TraceFrom(ctx context.Context) (Trace, bool) {
	tr, ok := ctx.Value(traceKey).(Trace)
	return tr, ok
}
