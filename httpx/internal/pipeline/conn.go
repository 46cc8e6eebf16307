// Package pipeline drives HTTP/1.x connections without doing I/O. A
// connection is fed the bytes that were read, reports progress as events,
// and accumulates the bytes to write; the caller moves bytes between it and
// the transport. Every exchange on a connection is answered in the order
// its request arrived, however the responses are produced.
package pipeline

import (
	"time"

	"dqx0.com/go/h1ws/config"
	"dqx0.com/go/h1ws/httpx/internal/http1"
)

// LimitsFrom projects the parser and body limits out of cfg.
func LimitsFrom(cfg config.Config) http1.Limits {
	return http1.Limits{
		MaxHeadSize:    cfg.MaxHeadSize,
		MaxHeaderCount: cfg.MaxHeaderCount,
		MaxChunkLine:   cfg.MaxChunkLine,
		MaxBodySize:    cfg.MaxBodySize,
	}
}

// conn is the state shared by both roles: the input buffer, the body being
// read, and the queue of exchanges whose outbound message is not yet fully
// written.
type conn struct {
	cfg    config.Config
	limits http1.Limits
	parser http1.Parser
	server bool
	now    func() time.Time

	in []byte
	r  int

	// queue[0] is the only exchange whose output may be written.
	queue    []*Exchange
	outBytes int64

	cur *Exchange
	dec *http1.Decoder

	seq        uint64
	eof        bool
	readClosed bool
	drainClose bool
	paused     bool
	switched   bool
	hijacked   bool
	closed     bool
	err        error

	lastRead  time.Time
	headStart time.Time
}

func newConn(cfg config.Config, server bool) conn {
	limits := LimitsFrom(cfg)
	return conn{
		cfg:      cfg,
		limits:   limits,
		parser:   http1.Parser{Limits: limits},
		server:   server,
		now:      time.Now,
		lastRead: time.Now(),
	}
}

// Feed appends bytes read from the transport. It invalidates the Data of
// any earlier event.
func (c *conn) Feed(p []byte) {
	if c.closed || c.hijacked || len(p) == 0 {
		return
	}
	if c.r > 0 {
		n := copy(c.in, c.in[c.r:])
		c.in = c.in[:n]
		c.r = 0
	}
	c.in = append(c.in, p...)
	now := c.now()
	c.lastRead = now
	if c.cur == nil && c.headStart.IsZero() {
		c.headStart = now
	}
}

// CloseRead records that the peer finished sending.
func (c *conn) CloseRead() { c.eof = true }

// Buffered returns the input not consumed yet.
func (c *conn) Buffered() []byte { return c.in[c.r:] }

func (c *conn) consume(n int) {
	c.r += n
	if c.r == len(c.in) {
		c.in = c.in[:0]
		c.r = 0
	}
}

// headDone clears the parser state after a head was consumed.
func (c *conn) headDone() {
	c.parser.Reset()
	c.headStart = time.Time{}
	if len(c.Buffered()) > 0 {
		c.headStart = c.now()
	}
}

func (c *conn) nextSeq() uint64 {
	c.seq++
	return c.seq
}

// readBody advances the body of c.cur by one event.
func (c *conn) readBody() (Event, error) {
	x := c.cur
	for !c.dec.Done() {
		data, n, err := c.dec.Decode(c.Buffered())
		if err != nil {
			return Event{}, err
		}
		if n == 0 {
			if !c.eof {
				return Event{Kind: EventNone}, nil
			}
			if err := c.dec.EOF(); err != nil {
				return Event{}, err
			}
			break
		}
		c.consume(n)
		c.lastRead = c.now()
		if len(data) > 0 {
			return Event{Kind: EventBody, Exchange: x, Data: data}, nil
		}
	}
	x.Trailers = c.dec.Trailers()
	x.bodyDone = true
	c.cur, c.dec = nil, nil
	c.headStart = time.Time{}
	if len(c.Buffered()) > 0 {
		c.headStart = c.now()
	}
	return Event{Kind: EventBodyEnd, Exchange: x}, nil
}

// Pending returns the next output to write, or an empty Segment.
func (c *conn) Pending() Segment {
	c.settle()
	if len(c.queue) == 0 || len(c.queue[0].out) == 0 {
		return Segment{}
	}
	return c.queue[0].out[0]
}

// Advance records that n bytes of the pending output were written.
func (c *conn) Advance(n int64) {
	for n > 0 && len(c.queue) > 0 {
		x := c.queue[0]
		if len(x.out) == 0 {
			break
		}
		s := &x.out[0]
		var k int64
		if s.File != nil {
			k = min(n, s.File.Length)
			s.File.Offset += k
			s.File.Length -= k
		} else {
			k = min(n, int64(len(s.Data)))
			s.Data = s.Data[k:]
			c.outBytes -= k
		}
		n -= k
		if s.size() == 0 {
			x.out = x.out[1:]
		}
		c.settle()
	}
}

// settle retires finished exchanges at the head of the queue.
func (c *conn) settle() {
	for len(c.queue) > 0 {
		x := c.queue[0]
		if len(x.out) > 0 || !x.finished {
			return
		}
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.retire(x)
	}
}

func (c *conn) retire(x *Exchange) {
	if x.upgrade && c.server {
		c.switched = true
	}
	if !c.server {
		return
	}
	if !x.keepAlive {
		c.drop(c.queue, ErrClosed)
		c.queue = nil
		c.readClosed = true
		c.drainClose = true
	}
	if len(c.queue) == 0 {
		c.lastRead = c.now()
	}
}

// drop discards the output of xs and marks them failed.
func (c *conn) drop(xs []*Exchange, err error) {
	for _, x := range xs {
		for _, s := range x.out {
			if s.File == nil {
				c.outBytes -= int64(len(s.Data))
			}
		}
		x.out = nil
		if x.err == nil {
			x.err = err
		}
	}
}

// abort stops reading and keeps only the responses that are complete.
func (c *conn) abort(err error) error {
	c.err = err
	c.readClosed = true
	c.drainClose = true
	c.cur, c.dec = nil, nil
	for i, x := range c.queue {
		if !x.finished {
			c.drop(c.queue[i:], err)
			c.queue = c.queue[:i]
			break
		}
	}
	return err
}

func (c *conn) lookup(x *Exchange) error {
	if c.closed {
		return ErrClosed
	}
	if x == nil || x.synthetic || x.err != nil {
		return ErrUnknownExchange
	}
	for _, y := range c.queue {
		if y == x {
			return nil
		}
	}
	return ErrUnknownExchange
}

// encode appends to the trailing byte segment of x through fn.
func (c *conn) encode(x *Exchange, fn func([]byte) ([]byte, error)) error {
	n := len(x.out)
	tail := n > 0 && x.out[n-1].File == nil
	var dst []byte
	if tail {
		dst = x.out[n-1].Data
	}
	before := len(dst)
	dst, err := fn(dst)
	if err != nil {
		return err
	}
	if len(dst) == before {
		return nil
	}
	c.outBytes += int64(len(dst) - before)
	if tail {
		x.out[n-1].Data = dst
	} else {
		x.out = append(x.out, Segment{Data: dst})
	}
	return nil
}

func (c *conn) appendHead(x *Exchange, h *http1.Head, request bool) {
	_ = c.encode(x, func(dst []byte) ([]byte, error) {
		if request {
			return http1.AppendRequestHead(dst, h), nil
		}
		return http1.AppendResponseHead(dst, h), nil
	})
}

// WriteBody encodes p as body bytes of the outbound message of x.
func (c *conn) WriteBody(x *Exchange, p []byte) error {
	if err := c.writable(x); err != nil {
		return err
	}
	return c.encode(x, func(dst []byte) ([]byte, error) {
		return x.enc.Write(dst, p)
	})
}

// SendFile queues the file region of a FileBacked body for the zero-copy
// transfer collaborator. Bodies the encoder suppresses (HEAD) queue nothing.
func (c *conn) SendFile(x *Exchange) error {
	if err := c.writable(x); err != nil {
		return err
	}
	switch k := x.enc.Kind().(type) {
	case http1.Absent:
		return nil
	case http1.FileBacked:
		if x.fileSent {
			return http1.ErrBodyDone
		}
		x.fileSent = true
		if k.Length > 0 {
			x.out = append(x.out, Segment{File: &k})
		}
		return nil
	default:
		return ErrNotFileBacked
	}
}

// Finish completes the outbound message of x. Trailers are sent only after
// a chunked body.
func (c *conn) Finish(x *Exchange, trailers http1.Header) error {
	if err := c.writable(x); err != nil {
		return err
	}
	if k, ok := x.enc.Kind().(http1.FileBacked); ok && k.Length > 0 && !x.fileSent {
		return http1.ErrBodyLength
	}
	if err := c.encode(x, func(dst []byte) ([]byte, error) {
		return x.enc.Close(dst, trailers)
	}); err != nil {
		return err
	}
	x.finished = true
	c.settle()
	return nil
}

func (c *conn) writable(x *Exchange) error {
	if err := c.lookup(x); err != nil {
		return err
	}
	if !x.headSent {
		return ErrNotResponded
	}
	if x.finished {
		return ErrFinished
	}
	return nil
}

// Backpressured reports that buffered output is above the configured
// bound; no new heads are parsed until it drains.
func (c *conn) Backpressured() bool {
	return c.cfg.MaxOutput > 0 && c.outBytes >= int64(c.cfg.MaxOutput)
}

// Hijack hands the connection over after a protocol switch. It returns the
// input that arrived after the 101 response.
func (c *conn) Hijack() ([]byte, error) {
	c.settle()
	if !c.switched || c.hijacked || len(c.queue) > 0 || c.closed {
		return nil, ErrNotHijackable
	}
	c.hijacked = true
	rest := append([]byte(nil), c.Buffered()...)
	c.in, c.r = nil, 0
	return rest, nil
}

// deadline combines the header-read timer, when head is set, and the idle
// timer, when idle is set.
func (c *conn) deadline(head, idle bool) time.Time {
	var d time.Time
	if t := c.cfg.HandshakeTimeout.Std(); t > 0 && head && !c.headStart.IsZero() {
		d = c.headStart.Add(t)
	}
	if t := c.cfg.IdleTimeout.Std(); t > 0 && idle {
		if e := c.lastRead.Add(t); d.IsZero() || e.Before(d) {
			d = e
		}
	}
	return d
}

func (c *conn) drained() bool {
	c.settle()
	return len(c.queue) == 0
}

// Close discards all state. Later calls fail with ErrClosed.
func (c *conn) Close() {
	c.drop(c.queue, ErrClosed)
	if c.cur != nil && c.cur.err == nil {
		c.cur.err = ErrClosed
	}
	c.closed = true
	c.queue, c.cur, c.dec = nil, nil, nil
	c.in, c.r = nil, 0
	c.outBytes = 0
}
