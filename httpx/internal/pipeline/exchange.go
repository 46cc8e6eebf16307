package pipeline

import (
	"time"

	"dqx0.com/go/h1ws/httpx/internal/http1"
	"dqx0.com/go/h1ws/httpx/ws"
)

// Exchange is one request/response pair on a connection. It is created when
// the request head is parsed (server) or sent (client) and leaves the
// connection once its response has been written or read in full.
type Exchange struct {
	Seq      uint64
	Request  *http1.Head
	Response *http1.Head
	// RequestKind and ResponseKind are the framings on the wire.
	RequestKind  http1.BodyKind
	ResponseKind http1.BodyKind
	// Trailers holds the fields received after a chunked body.
	Trailers http1.Header
	// Handshake is set when the request is a valid WebSocket upgrade.
	Handshake *ws.Handshake
	Started   time.Time

	keepAlive bool
	out       []Segment
	enc       *http1.Encoder
	continued bool
	fileSent  bool
	headSent  bool
	finished  bool
	bodyDone  bool
	upgrade   bool
	synthetic bool
	err       error
}

// KeepAlive reports whether the connection stays open after this exchange.
func (x *Exchange) KeepAlive() bool { return x.keepAlive }

// Err is the failure that ended the exchange early, if any.
func (x *Exchange) Err() error { return x.err }

// Done reports whether the outbound message of the exchange is complete.
func (x *Exchange) Done() bool { return x.finished }

// Segment is one unit of pending output: either bytes or a file region for
// the zero-copy transfer collaborator.
type Segment struct {
	Data []byte
	File *http1.FileBacked
}

func (s Segment) Empty() bool { return len(s.Data) == 0 && s.File == nil }

func (s Segment) size() int64 {
	if s.File != nil {
		return s.File.Length
	}
	return int64(len(s.Data))
}

type EventKind uint8

const (
	// EventNone means nothing can happen until more input arrives or
	// pending output drains.
	EventNone EventKind = iota
	EventRequest
	EventResponse
	EventBody
	EventBodyEnd
	EventUpgrade
)

func (k EventKind) String() string {
	switch k {
	case EventNone:
		return "none"
	case EventRequest:
		return "request"
	case EventResponse:
		return "response"
	case EventBody:
		return "body"
	case EventBodyEnd:
		return "body-end"
	case EventUpgrade:
		return "upgrade"
	default:
		return "unknown"
	}
}

// Event is one step of progress on the read side. Data of an EventBody
// borrows the connection's input buffer and is valid until the next call
// to Feed or Next.
type Event struct {
	Kind     EventKind
	Exchange *Exchange
	Data     []byte
}
