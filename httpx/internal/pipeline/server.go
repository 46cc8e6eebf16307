package pipeline

import (
	"errors"
	"time"

	"dqx0.com/go/h1ws/config"
	"dqx0.com/go/h1ws/httpx/internal/http1"
	"dqx0.com/go/h1ws/httpx/ws"
	"dqx0.com/go/h1ws/internal/errdef"
)

// ServerConn is the server side of one connection. Requests are parsed as
// they arrive, even while earlier responses are still being produced, and
// responses may be produced in any order; output is released strictly in
// request order.
type ServerConn struct {
	conn
}

func NewServerConn(cfg config.Config) *ServerConn {
	return &ServerConn{conn: newConn(cfg, true)}
}

// Next advances the read side by one event. A malformed request queues an
// error response after the responses already in flight, stops reading and
// returns the parse error; the caller keeps draining output until
// ShouldClose.
func (c *ServerConn) Next() (Event, error) {
	if c.closed {
		return Event{}, ErrClosed
	}
	if c.err != nil {
		return Event{}, c.err
	}
	if c.cur != nil {
		ev, err := c.readBody()
		if err != nil {
			return Event{}, c.abort(err)
		}
		if ev.Kind == EventBodyEnd && !ev.Exchange.keepAlive {
			c.readClosed = true
		}
		return ev, nil
	}
	for {
		if c.readClosed || c.paused || c.switched || c.Backpressured() {
			return Event{}, nil
		}
		buf := c.Buffered()
		if len(buf) == 0 {
			if c.eof {
				c.readClosed = true
			}
			return Event{}, nil
		}
		h, n, err := c.parser.ParseRequest(buf)
		if err != nil {
			return Event{}, c.reject(err)
		}
		if h == nil {
			if c.eof {
				// A head cut short by end of stream gets no answer.
				c.readClosed = true
			}
			return Event{}, nil
		}
		c.consume(n)
		c.headDone()

		x := &Exchange{Seq: c.nextSeq(), Request: h, Started: c.now(), keepAlive: h.KeepAlive()}
		kind, err := http1.RequestBodyKind(h)
		if err != nil {
			return Event{}, c.reject(err)
		}
		x.RequestKind = kind

		if c.cfg.EnableUpgrade {
			hs, err := ws.Negotiate(h)
			var he *ws.HandshakeError
			switch {
			case errors.As(err, &he):
				// The body of a refused handshake is not read; the
				// connection closes after the refusal instead.
				if !emptyBody(kind) {
					x.keepAlive = false
					c.readClosed = true
				}
				x.bodyDone = true
				c.queue = append(c.queue, x)
				c.respondEmpty(x, he.RejectHead())
				continue
			case err != nil:
				return Event{}, c.reject(err)
			case hs != nil:
				x.Handshake = hs
				x.bodyDone = true
				c.paused = true
				c.queue = append(c.queue, x)
				return Event{Kind: EventUpgrade, Exchange: x}, nil
			}
		}

		dec, err := http1.NewDecoder(kind, c.limits)
		if err != nil {
			return Event{}, c.reject(err)
		}
		c.queue = append(c.queue, x)
		c.cur, c.dec = x, dec
		return Event{Kind: EventRequest, Exchange: x}, nil
	}
}

// emptyBody reports whether kind carries no body bytes.
func emptyBody(kind http1.BodyKind) bool {
	switch k := kind.(type) {
	case http1.Absent:
		return true
	case http1.Fixed:
		return k.Length == 0
	}
	return false
}

// reject answers a request that could not be parsed with an error status
// and stops reading.
func (c *ServerConn) reject(err error) error {
	x := &Exchange{Seq: c.nextSeq(), Started: c.now(), synthetic: true, err: err}
	c.queue = append(c.queue, x)
	c.respondEmpty(x, &http1.Head{Status: StatusFor(err), Version: http1.Version11})
	c.err = err
	c.readClosed = true
	c.cur, c.dec = nil, nil
	return err
}

// StatusFor maps a read-side error to the status sent in reply.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, http1.ErrHeadTooLarge), errors.Is(err, http1.ErrTooManyHeaders):
		return 431
	case errors.Is(err, http1.ErrVersion):
		return 505
	case errors.Is(err, http1.ErrTransferCoding):
		return 501
	case errors.Is(err, http1.ErrBodyTooLarge):
		return 413
	case errdef.Is(err, errdef.CodeTimeout):
		return 408
	default:
		return 400
	}
}

// respondEmpty writes a complete bodiless response for x.
func (c *ServerConn) respondEmpty(x *Exchange, h *http1.Head) {
	_ = http1.ApplyFraming(h, http1.Fixed{})
	c.setConnection(x, h)
	c.appendHead(x, h, false)
	x.Response, x.ResponseKind = h, http1.Fixed{}
	x.headSent, x.finished = true, true
	c.settle()
}

func (c *ServerConn) setConnection(x *Exchange, h *http1.Head) {
	if h.Header.HasToken("Connection", "close") {
		x.keepAlive = false
	}
	switch {
	case !x.keepAlive:
		h.Header.Set("Connection", "close")
		c.readClosed = true
	case x.Request != nil && x.Request.Version == http1.Version10:
		h.Header.Set("Connection", "keep-alive")
	}
}

// Respond starts the response of x. The framing headers of head are
// rewritten to match kind, after kind is adjusted for the request: HEAD
// and 304 responses carry no body, 1xx and 204 carry neither body nor
// framing headers, and chunked bodies for HTTP/1.0 clients become
// close-delimited.
func (c *ServerConn) Respond(x *Exchange, head *http1.Head, kind http1.BodyKind) error {
	if err := c.lookup(x); err != nil {
		return err
	}
	if x.headSent {
		return ErrResponded
	}
	h := head.Clone()
	if h.Version == http1.VersionUnknown {
		h.Version = http1.Version11
	}
	wire, err := c.frameResponse(x, h, kind)
	if err != nil {
		return err
	}
	enc, err := http1.NewEncoder(wire)
	if err != nil {
		return err
	}
	if x.Handshake != nil {
		x.Handshake = nil
		c.paused = false
	}
	c.setConnection(x, h)
	c.appendHead(x, h, false)
	x.Response, x.ResponseKind, x.enc = h, wire, enc
	x.headSent = true
	return nil
}

// frameResponse sets the framing headers of h and returns the framing used
// on the wire.
func (c *ServerConn) frameResponse(x *Exchange, h *http1.Head, kind http1.BodyKind) (http1.BodyKind, error) {
	switch {
	case h.Status < 200 || h.Status == 204:
		h.Header.Del("Content-Length")
		h.Header.Del("Transfer-Encoding")
		return http1.Absent{}, nil
	case h.Status == 304:
		return http1.Absent{}, nil
	case x.Request.Method == http1.MethodHead:
		if _, ok := kind.(http1.CloseDelimited); !ok {
			if err := http1.ApplyFraming(h, kind); err != nil {
				return nil, err
			}
		}
		return http1.Absent{}, nil
	}
	if _, ok := kind.(http1.Chunked); ok && x.Request.Version == http1.Version10 {
		kind = http1.CloseDelimited{}
	}
	if _, ok := kind.(http1.CloseDelimited); ok {
		if !c.cfg.AllowCloseDelimited {
			return nil, ErrCloseDelimitedDisabled
		}
		x.keepAlive = false
	}
	if err := http1.ApplyFraming(h, kind); err != nil {
		return nil, err
	}
	return kind, nil
}

// Continue sends an interim 100 Continue for a request that expects one.
func (c *ServerConn) Continue(x *Exchange) error {
	if err := c.lookup(x); err != nil {
		return err
	}
	if !x.Request.ExpectContinue() {
		return ErrNoContinue
	}
	if x.headSent {
		return ErrResponded
	}
	if x.continued {
		return nil
	}
	x.continued = true
	return c.encode(x, func(dst []byte) ([]byte, error) {
		return http1.AppendContinue(dst), nil
	})
}

// AcceptUpgrade answers a handshake with 101 Switching Protocols. Once the
// 101 has been written, Hijack hands over the connection.
func (c *ServerConn) AcceptUpgrade(x *Exchange, subprotocol string, extensions []string) error {
	if err := c.lookup(x); err != nil {
		return err
	}
	if x.Handshake == nil {
		return ErrNoHandshake
	}
	if x.headSent {
		return ErrResponded
	}
	h, err := x.Handshake.ResponseHead(subprotocol, extensions)
	if err != nil {
		return err
	}
	c.appendHead(x, h, false)
	x.Response, x.ResponseKind = h, http1.Absent{}
	x.headSent, x.finished, x.upgrade = true, true, true
	c.readClosed = true
	c.settle()
	return nil
}

// RejectUpgrade refuses a valid handshake with status; the connection
// continues as plain HTTP.
func (c *ServerConn) RejectUpgrade(x *Exchange, status int) error {
	if err := c.lookup(x); err != nil {
		return err
	}
	if x.Handshake == nil {
		return ErrNoHandshake
	}
	if x.headSent {
		return ErrResponded
	}
	x.Handshake = nil
	c.paused = false
	c.respondEmpty(x, (&ws.HandshakeError{Status: status}).RejectHead())
	return nil
}

// Deadline is when Expire next has work to do, or zero.
func (c *ServerConn) Deadline() time.Time {
	if c.closed || c.err != nil || c.readClosed || c.paused || c.switched {
		return time.Time{}
	}
	waiting := c.cur != nil || len(c.queue) == 0
	return c.deadline(c.cur == nil, waiting)
}

// Expire enforces the configured timeouts at now. A partial head with
// nothing in flight is answered with 408; otherwise the connection aborts
// after the complete responses.
func (c *ServerConn) Expire(now time.Time) error {
	d := c.Deadline()
	if d.IsZero() || now.Before(d) {
		return nil
	}
	if c.cur == nil && len(c.Buffered()) > 0 && len(c.queue) == 0 {
		return c.reject(ErrTimeout)
	}
	return c.abort(ErrTimeout)
}

// ShouldClose reports that the connection is finished: nothing is left to
// write and no further request will be read.
func (c *ServerConn) ShouldClose() bool {
	if c.closed {
		return true
	}
	if !c.drained() || c.switched {
		return false
	}
	return c.drainClose || c.err != nil || (c.eof && c.readClosed)
}
