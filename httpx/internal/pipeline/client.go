package pipeline

import (
	"time"

	"dqx0.com/go/h1ws/config"
	"dqx0.com/go/h1ws/httpx/internal/http1"
)

// ClientConn is the client side of one connection. Requests may be sent
// before earlier responses arrive; each response is paired with the oldest
// request still waiting for one.
type ClientConn struct {
	conn
	waiting []*Exchange
	noSend  bool
}

func NewClientConn(cfg config.Config) *ClientConn {
	return &ClientConn{conn: newConn(cfg, false)}
}

// Send queues a request head and returns its exchange. Body bytes follow
// through WriteBody or SendFile, and Finish ends the request.
func (c *ClientConn) Send(head *http1.Head, kind http1.BodyKind) (*Exchange, error) {
	switch {
	case c.closed:
		return nil, ErrClosed
	case c.err != nil:
		return nil, c.err
	case c.noSend || c.readClosed || c.switched:
		return nil, ErrClosed
	}
	if _, ok := kind.(http1.CloseDelimited); ok {
		return nil, ErrRequestFraming
	}
	h := head.Clone()
	if h.Version == http1.VersionUnknown {
		h.Version = http1.Version11
	}
	if err := http1.ApplyFraming(h, kind); err != nil {
		return nil, err
	}
	enc, err := http1.NewEncoder(kind)
	if err != nil {
		return nil, err
	}
	x := &Exchange{
		Seq:         c.nextSeq(),
		Request:     h,
		RequestKind: kind,
		Started:     c.now(),
		keepAlive:   h.KeepAlive(),
		enc:         enc,
		headSent:    true,
	}
	c.appendHead(x, h, true)
	if len(c.waiting) == 0 {
		c.lastRead = c.now()
	}
	c.queue = append(c.queue, x)
	c.waiting = append(c.waiting, x)
	if !x.keepAlive || h.IsUpgrade("websocket") {
		c.noSend = true
	}
	return x, nil
}

// Next advances the read side by one event. Any framing error fails every
// exchange still waiting and leaves the connection unusable.
func (c *ClientConn) Next() (Event, error) {
	if c.closed {
		return Event{}, ErrClosed
	}
	if c.err != nil {
		return Event{}, c.err
	}
	for {
		if c.cur != nil {
			ev, err := c.readBody()
			if err != nil {
				return Event{}, c.failAll(err)
			}
			if ev.Kind == EventBodyEnd {
				c.complete(ev.Exchange)
			}
			return ev, nil
		}
		if c.paused || c.readClosed {
			return Event{}, nil
		}
		buf := c.Buffered()
		if len(buf) == 0 {
			if c.eof && len(c.waiting) > 0 {
				return Event{}, c.failAll(http1.ErrUnexpectedEOF)
			}
			return Event{}, nil
		}
		if len(c.waiting) == 0 {
			return Event{}, c.failAll(ErrUnsolicitedResponse)
		}
		h, n, err := c.parser.ParseResponse(buf)
		if err != nil {
			return Event{}, c.failAll(err)
		}
		if h == nil {
			if c.eof {
				return Event{}, c.failAll(http1.ErrUnexpectedEOF)
			}
			return Event{}, nil
		}
		c.consume(n)
		c.headDone()

		x := c.waiting[0]
		if h.Status == 101 {
			if !x.Request.Header.Has("Upgrade") {
				return Event{}, c.failAll(ErrUnexpectedSwitch)
			}
			x.Response, x.ResponseKind = h, http1.Absent{}
			x.upgrade, x.bodyDone = true, true
			c.waiting = c.waiting[1:]
			c.paused, c.switched = true, true
			return Event{Kind: EventUpgrade, Exchange: x}, nil
		}
		if h.Status < 200 {
			continue
		}
		kind, err := http1.ResponseBodyKind(x.Request.Method, h)
		if err != nil {
			return Event{}, c.failAll(err)
		}
		dec, err := http1.NewDecoder(kind, c.limits)
		if err != nil {
			return Event{}, c.failAll(err)
		}
		x.Response, x.ResponseKind = h, kind
		if _, ok := kind.(http1.CloseDelimited); ok || !h.KeepAlive() {
			x.keepAlive = false
		}
		c.cur, c.dec = x, dec
		return Event{Kind: EventResponse, Exchange: x}, nil
	}
}

func (c *ClientConn) complete(x *Exchange) {
	c.waiting[0] = nil
	c.waiting = c.waiting[1:]
	if x.keepAlive {
		return
	}
	for _, y := range c.waiting {
		y.err = ErrClosed
	}
	c.waiting = nil
	c.readClosed = true
	c.noSend = true
	c.drainClose = true
}

// failAll ends the connection with err, failing every waiting exchange.
// No exchange keeps a partial response.
func (c *ClientConn) failAll(err error) error {
	for _, x := range c.waiting {
		x.err = err
		x.Response = nil
	}
	c.drop(c.queue, err)
	c.queue, c.waiting = nil, nil
	c.cur, c.dec = nil, nil
	c.err = err
	c.readClosed = true
	return err
}

// Waiting is the number of requests sent and not yet answered.
func (c *ClientConn) Waiting() int { return len(c.waiting) }

// Deadline is when Expire next has work to do, or zero.
func (c *ClientConn) Deadline() time.Time {
	if c.closed || c.err != nil || c.paused || len(c.waiting) == 0 {
		return time.Time{}
	}
	return c.deadline(c.cur == nil, true)
}

// Expire fails the connection with ErrTimeout once a deadline has passed.
func (c *ClientConn) Expire(now time.Time) error {
	d := c.Deadline()
	if d.IsZero() || now.Before(d) {
		return nil
	}
	return c.failAll(ErrTimeout)
}

// ShouldClose reports that the connection cannot carry another exchange and
// has nothing left to write.
func (c *ClientConn) ShouldClose() bool {
	if c.closed {
		return true
	}
	if c.err != nil {
		return true
	}
	if !c.drained() || c.switched {
		return false
	}
	return c.drainClose || (c.eof && len(c.waiting) == 0)
}
