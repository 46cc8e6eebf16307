package httpx

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"dqx0.com/go/h1ws/config"
	"dqx0.com/go/h1ws/httpx/internal/http1"
	"dqx0.com/go/h1ws/httpx/internal/pipeline"
	"dqx0.com/go/h1ws/httpx/ws"
	"dqx0.com/go/h1ws/internal/obs"
)

// aLongTimeAgo is a non-zero time in the past, used to wake blocked I/O.
var aLongTimeAgo = time.Unix(1, 0)

// ClientConn is one client connection. Requests are pipelined: Do may be
// called from several goroutines, each request is written as soon as it is
// issued, and responses are matched to requests in order.
type ClientConn struct {
	nc  net.Conn
	cfg config.Config

	Logger obs.Logger
	Meter  obs.Meter

	mu     sync.Mutex // guards cc, bodies and reads from nc
	cc     *pipeline.ClientConn
	bodies map[*pipeline.Exchange]*clientBody
	buf    []byte
	eof    bool
	rerr   error
	wmu    sync.Mutex // serializes request writers
}

// NewClientConn runs the client side of HTTP/1.1 over nc. cfg may be nil.
func NewClientConn(nc net.Conn, cfg *config.Config) *ClientConn {
	c := config.Default()
	if cfg != nil {
		c = *cfg
	}
	return &ClientConn{
		nc:     nc,
		cfg:    c,
		cc:     pipeline.NewClientConn(c),
		bodies: make(map[*pipeline.Exchange]*clientBody),
		buf:    make([]byte, readBufferSize),
	}
}

// Dial connects to addr ("host:port") over TCP.
func Dial(ctx context.Context, addr string, cfg *config.Config) (*ClientConn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClientConn(nc, cfg), nil
}

// Close closes the connection; requests still waiting fail.
func (c *ClientConn) Close() error {
	err := c.nc.Close()
	c.mu.Lock()
	c.cc.Close()
	c.mu.Unlock()
	return err
}

func (c *ClientConn) logf(level obs.Level, format string, args ...interface{}) {
	lg := c.Logger
	if lg == nil {
		lg = obs.NopLogger{}
	}
	lg.Logf(level, format, args...)
}

func (c *ClientConn) meter() obs.Meter {
	if c.Meter != nil {
		return c.Meter
	}
	return obs.NopMeter{}
}

// Do sends r and waits for its response head. The response body streams
// from the connection; responses to later requests on the same connection
// are buffered until this body has been read or closed. A canceled ctx
// leaves the connection unusable.
func (c *ClientConn) Do(ctx context.Context, r *Request) (*Response, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.nc.SetDeadline(aLongTimeAgo) })
	defer stop()

	start := time.Now()
	x, b, err := c.send(ctx, r)
	if err != nil {
		return nil, ctxErr(ctx, err)
	}
	c.meter().Counter("h1ws_client_requests_total", 1, obs.Label{Key: "method", Value: string(x.Request.Method)})

	c.mu.Lock()
	defer c.mu.Unlock()
	for x.Response == nil {
		if err := x.Err(); err != nil {
			return nil, ctxErr(ctx, err)
		}
		if err := c.step(); err != nil {
			return nil, ctxErr(ctx, err)
		}
	}
	res := &Response{
		Status:        statusLine(x.Response.Status, x.Response.Reason),
		StatusCode:    x.Response.Status,
		Proto:         x.Response.Version.String(),
		Header:        x.Response.Header,
		Body:          b,
		ContentLength: -1,
		Request:       r,
	}
	b.res = res
	switch k := x.ResponseKind.(type) {
	case http1.Absent:
		res.ContentLength = 0
	case http1.Fixed:
		res.ContentLength = int64(k.Length)
	}
	c.meter().Histogram("h1ws_client_roundtrip_duration_ms", float64(time.Since(start).Milliseconds()),
		obs.Label{Key: "status", Value: itoaStatus(res.StatusCode)})
	return res, nil
}

// Get issues a GET for the path and query of rawURL.
func (c *ClientConn) Get(ctx context.Context, rawURL string) (*Response, error) {
	r, err := NewRequest("GET", rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, r)
}

// send writes the head and body of r, propagating the trace in ctx.
func (c *ClientConn) send(ctx context.Context, r *Request) (*pipeline.Exchange, *clientBody, error) {
	head, kind, err := r.head()
	if err != nil {
		return nil, nil, err
	}
	if tr, ok := TraceFrom(ctx); ok && !head.Header.Has("Traceparent") {
		head.Header.Add("Traceparent", tr.Child().String())
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.mu.Lock()
	x, err := c.cc.Send(head, kind)
	var b *clientBody
	if err == nil {
		b = &clientBody{c: c, x: x}
		c.bodies[x] = b
	}
	c.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	if r.Body != nil {
		defer r.Body.Close()
		chunk := make([]byte, 32<<10)
		for {
			n, rerr := r.Body.Read(chunk)
			if n > 0 {
				if err := c.writeBody(x, chunk[:n]); err != nil {
					return nil, nil, err
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return nil, nil, rerr
			}
		}
	}
	c.mu.Lock()
	err = c.cc.Finish(x, nil)
	c.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	return x, b, c.flush()
}

func (c *ClientConn) writeBody(x *pipeline.Exchange, p []byte) error {
	c.mu.Lock()
	err := c.cc.WriteBody(x, p)
	pressured := c.cc.Backpressured()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if pressured {
		return c.flush()
	}
	return nil
}

// flush writes pending request bytes. Only the writer holding wmu calls it.
func (c *ClientConn) flush() error {
	for {
		c.mu.Lock()
		seg := c.cc.Pending()
		c.mu.Unlock()
		if seg.Empty() {
			return nil
		}
		if seg.File != nil {
			return pipeline.ErrNotFileBacked
		}
		n, err := c.nc.Write(seg.Data)
		c.mu.Lock()
		c.cc.Advance(int64(n))
		c.mu.Unlock()
		if err != nil {
			return err
		}
	}
}

// step advances the read side by one event, reading from the network when
// the driver needs input. c.mu is held.
func (c *ClientConn) step() error {
	ev, err := c.cc.Next()
	if err != nil {
		c.logf(obs.Warn, "response: %v", err)
		c.failBodies(err)
		return err
	}
	switch ev.Kind {
	case pipeline.EventBody:
		if b := c.bodies[ev.Exchange]; b != nil && !b.closed {
			b.buf = append(b.buf, ev.Data...)
		}
	case pipeline.EventBodyEnd:
		if b := c.bodies[ev.Exchange]; b != nil {
			b.done = true
		}
		delete(c.bodies, ev.Exchange)
	case pipeline.EventUpgrade:
		delete(c.bodies, ev.Exchange)
	case pipeline.EventNone:
		return c.fill()
	}
	return nil
}

func (c *ClientConn) fill() error {
	if c.rerr != nil {
		return c.rerr
	}
	if c.eof {
		return ErrNoResponse
	}
	if err := c.nc.SetReadDeadline(c.cc.Deadline()); err != nil {
		return err
	}
	n, err := c.nc.Read(c.buf)
	if n > 0 {
		c.cc.Feed(c.buf[:n])
	}
	var ne net.Error
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		c.eof = true
		c.cc.CloseRead()
	case errors.As(err, &ne) && ne.Timeout():
		if eerr := c.cc.Expire(time.Now()); eerr != nil {
			c.failBodies(eerr)
			return eerr
		}
		if d := c.cc.Deadline(); d.IsZero() || time.Now().Before(d) {
			// The deadline was moved by a canceled context.
			c.rerr = err
			return err
		}
	default:
		c.rerr = err
		return err
	}
	return nil
}

func (c *ClientConn) failBodies(err error) {
	for x, b := range c.bodies {
		if b.err == nil {
			b.err = err
		}
		delete(c.bodies, x)
	}
}

// clientBody is the streaming body of one response.
type clientBody struct {
	c      *ClientConn
	x      *pipeline.Exchange
	res    *Response
	buf    []byte
	done   bool
	closed bool
	err    error
}

func (b *clientBody) Read(p []byte) (int, error) {
	c := b.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.closed {
		return 0, ErrBodyClosed
	}
	for len(b.buf) == 0 {
		switch {
		case b.err != nil:
			return 0, b.err
		case b.done:
			if b.res != nil {
				b.res.Trailer = b.x.Trailers
			}
			return 0, io.EOF
		}
		if err := c.step(); err != nil && b.err == nil {
			b.err = err
		}
	}
	n := copy(p, b.buf)
	b.buf = b.buf[n:]
	return n, nil
}

// Close discards the rest of the body. Later responses on the connection
// are still delivered.
func (b *clientBody) Close() error {
	c := b.c
	c.mu.Lock()
	defer c.mu.Unlock()
	b.closed = true
	b.buf = nil
	return nil
}

// DialWebSocket opens a WebSocket connection to a ws:// or wss:// URL,
// offering protocols. On a refused handshake the response is returned with
// the error.
func DialWebSocket(ctx context.Context, rawURL string, protocols []string, cfg *config.Config) (*WebSocketConn, *Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}
	var nc net.Conn
	switch u.Scheme {
	case "ws":
		var d net.Dialer
		nc, err = d.DialContext(ctx, "tcp", hostPort(u, "80"))
	case "wss":
		d := tls.Dialer{Config: &tls.Config{ServerName: u.Hostname()}}
		nc, err = d.DialContext(ctx, "tcp", hostPort(u, "443"))
	default:
		return nil, nil, ErrURLScheme
	}
	if err != nil {
		return nil, nil, err
	}
	wc, res, err := Upgrade(ctx, NewClientConn(nc, cfg), u, protocols)
	if err != nil {
		_ = nc.Close()
	}
	return wc, res, err
}

// Upgrade runs the client side of the WebSocket handshake on c, which must
// have no requests in flight, and returns the upgraded connection.
func Upgrade(ctx context.Context, c *ClientConn, u *url.URL, protocols []string) (*WebSocketConn, *Response, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.nc.SetDeadline(aLongTimeAgo) })
	defer stop()

	key, err := ws.NewClientKey()
	if err != nil {
		return nil, nil, err
	}
	head := ws.ClientRequestHead(u.RequestURI(), u.Host, key, protocols)

	c.wmu.Lock()
	c.mu.Lock()
	x, err := c.cc.Send(head, http1.Absent{})
	if err == nil {
		err = c.cc.Finish(x, nil)
	}
	c.mu.Unlock()
	if err == nil {
		err = c.flush()
	}
	c.wmu.Unlock()
	if err != nil {
		return nil, nil, ctxErr(ctx, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for x.Response == nil {
		if err := x.Err(); err != nil {
			return nil, nil, ctxErr(ctx, err)
		}
		if err := c.step(); err != nil {
			return nil, nil, ctxErr(ctx, err)
		}
	}
	res := &Response{
		Status:     statusLine(x.Response.Status, x.Response.Reason),
		StatusCode: x.Response.Status,
		Proto:      x.Response.Version.String(),
		Header:     x.Response.Header,
		Body:       noBody{},
	}
	proto, err := ws.VerifyResponse(x.Response, key, protocols)
	if err != nil {
		return nil, res, err
	}
	rest, err := c.cc.Hijack()
	if err != nil {
		return nil, res, err
	}
	_ = c.nc.SetDeadline(time.Time{})
	exts := splitTokens(x.Response.Header.Values("Sec-WebSocket-Extensions"))
	return newWebSocketConn(c.nc, c.cfg, ws.RoleClient, proto, exts, rest), res, nil
}

func hostPort(u *url.URL, port string) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// splitTokens splits comma-separated header values.
func splitTokens(values []string) []string {
	var out []string
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}
