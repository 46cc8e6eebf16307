package httpx

import (
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dqx0.com/go/h1ws/config"
	"dqx0.com/go/h1ws/httpx/internal/http1"
	"dqx0.com/go/h1ws/httpx/internal/pipeline"
	"dqx0.com/go/h1ws/httpx/ws"
	"dqx0.com/go/h1ws/internal/errdef"
	"dqx0.com/go/h1ws/internal/obs"
)

const readBufferSize = 16 << 10

type Server struct {
	Addr    string
	Handler Handler
	// WebSocket serves upgraded connections. When nil, upgrade requests
	// reach Handler as plain requests.
	WebSocket WebSocketHandler
	// Subprotocols lists the WebSocket subprotocols spoken, most preferred
	// first.
	Subprotocols []string
	// CheckOrigin refuses an upgrade with 403 when it returns false.
	CheckOrigin func(*Request) bool
	// Config bounds parsing and sets the timeouts; nil means config.Default.
	Config   *config.Config
	Transfer FileTransfer

	Logger obs.Logger
	Meter  obs.Meter

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	group    errgroup.Group
	shutdown bool
}

func (s *Server) ListenAndServe() error {
	addr := s.Addr
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on l until Shutdown, serving each on its own
// goroutine.
func (s *Server) Serve(l net.Listener) error {
	cfg := config.Default()
	if s.Config != nil {
		cfg = *s.Config
	}
	if err := cfg.Validate(); err != nil {
		_ = l.Close()
		return err
	}
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		_ = l.Close()
		return ErrServerClosed
	}
	s.ln = l
	s.mu.Unlock()

	for {
		c, err := l.Accept()
		if err != nil {
			if s.closing() {
				return ErrServerClosed
			}
			s.logf(obs.Error, "accept: %v", err)
			return err
		}
		if !s.track(c, true) {
			_ = c.Close()
			continue
		}
		s.group.Go(func() error {
			defer s.track(c, false)
			s.serveConn(c, cfg)
			return nil
		})
	}
}

// Shutdown stops accepting, closes every connection and waits for their
// goroutines until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for c := range s.conns {
		_ = c.SetDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *Server) closing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) track(c net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add {
		delete(s.conns, c)
		return true
	}
	if s.shutdown {
		return false
	}
	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) logf(level obs.Level, format string, args ...interface{}) {
	lg := s.Logger
	if lg == nil {
		lg = obs.NopLogger{}
	}
	lg.Logf(level, format, args...)
}

func (s *Server) meter() obs.Meter {
	if s.Meter != nil {
		return s.Meter
	}
	return obs.NopMeter{}
}

func (s *Server) transfer() FileTransfer {
	if s.Transfer != nil {
		return s.Transfer
	}
	return SendfileTransfer{}
}

// serverConn owns one accepted connection and its driver.
type serverConn struct {
	srv    *Server
	cfg    config.Config
	nc     net.Conn
	sc     *pipeline.ServerConn
	id     string
	log    obs.Logger
	buf    []byte
	eof    bool
	broken bool
}

func (s *Server) serveConn(c net.Conn, cfg config.Config) {
	id := uuid.NewString()
	cn := &serverConn{
		srv: s,
		cfg: cfg,
		nc:  c,
		sc:  pipeline.NewServerConn(cfg),
		id:  id,
		log: obs.With(s.Logger, "conn", id),
		buf: make([]byte, readBufferSize),
	}
	cn.log.Logf(obs.Debug, "accept remote=%s", c.RemoteAddr())
	hijacked := cn.serve()
	if !hijacked {
		cn.close()
	}
}

// serve runs the read loop until the connection ends. It reports whether the
// connection was handed to a WebSocket handler.
func (cn *serverConn) serve() bool {
	for !cn.broken {
		ev, err := cn.sc.Next()
		if err != nil {
			cn.abort(err)
			return false
		}
		switch ev.Kind {
		case pipeline.EventNone:
			if err := cn.flush(); err != nil {
				cn.log.Logf(obs.Debug, "write: %v", err)
				return false
			}
			if cn.sc.ShouldClose() || cn.eof {
				return false
			}
			if err := cn.fill(); err != nil {
				cn.log.Logf(obs.Debug, "read: %v", err)
				return false
			}
		case pipeline.EventRequest:
			cn.serveRequest(ev.Exchange)
		case pipeline.EventUpgrade:
			if cn.serveUpgrade(ev.Exchange) {
				return true
			}
		}
		// Body events here belong to requests the handler left unread.
	}
	return false
}

// fill performs one blocking read bounded by the driver's deadline. An
// expired deadline is handed to the driver, which decides the outcome.
func (cn *serverConn) fill() error {
	if cn.srv.closing() {
		return ErrServerClosed
	}
	if err := cn.nc.SetReadDeadline(cn.sc.Deadline()); err != nil {
		return err
	}
	if cn.srv.closing() {
		return ErrServerClosed
	}
	n, err := cn.nc.Read(cn.buf)
	if n > 0 {
		cn.sc.Feed(cn.buf[:n])
	}
	var ne net.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		cn.eof = true
		cn.sc.CloseRead()
		return nil
	case errors.As(err, &ne) && ne.Timeout():
		if cn.srv.closing() {
			return ErrServerClosed
		}
		_ = cn.sc.Expire(time.Now())
		return nil
	default:
		return err
	}
}

// flush writes all pending output, handing file regions to the transfer.
func (cn *serverConn) flush() error {
	for {
		seg := cn.sc.Pending()
		if seg.Empty() {
			return nil
		}
		if seg.File != nil {
			n, err := cn.srv.transfer().Transfer(cn.nc, seg.File.File, seg.File.Offset, seg.File.Length)
			cn.sc.Advance(n)
			if err != nil {
				return err
			}
			continue
		}
		n, err := cn.nc.Write(seg.Data)
		cn.sc.Advance(int64(n))
		if err != nil {
			return err
		}
	}
}

func (cn *serverConn) abort(err error) {
	reason := string(errdef.CodeOf(err))
	level := obs.Warn
	if errdef.Is(err, errdef.CodeTimeout) || errdef.Is(err, errdef.CodeEOF) {
		level = obs.Debug
	}
	cn.log.Logf(level, "abort reason=%s: %v", reason, err)
	cn.srv.meter().Counter("h1ws_server_aborts_total", 1, obs.Label{Key: "reason", Value: reason})
	if ferr := cn.flush(); ferr != nil {
		cn.log.Logf(obs.Debug, "write: %v", ferr)
	}
}

func (cn *serverConn) close() {
	if cw, ok := cn.nc.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	_ = cn.nc.Close()
	cn.sc.Close()
	cn.log.Logf(obs.Debug, "close")
}

func (cn *serverConn) newRequest(x *pipeline.Exchange) *Request {
	r := requestFromHead(x.Request, x.RequestKind)
	r.RemoteAddr = cn.nc.RemoteAddr().String()
	r.ConnID = cn.id
	r.RequestID = uuid.NewString()
	tr, ok := ParseTraceparent(x.Request.Header.Get("Traceparent"))
	if !ok {
		tr = NewTrace()
	}
	r.ctx = WithTrace(WithConnID(WithRequestID(context.Background(), r.RequestID), cn.id), tr)
	if x.Handshake != nil {
		r.Body = noBody{}
	} else {
		r.Body = &requestBody{cn: cn, x: x, r: r}
	}
	return r
}

func (cn *serverConn) serveRequest(x *pipeline.Exchange) {
	start := time.Now()
	method := string(x.Request.Method)
	cn.srv.meter().Counter("h1ws_server_requests_total", 1, obs.Label{Key: "method", Value: method})

	r := cn.newRequest(x)
	w := &response{cn: cn, x: x}
	switch {
	case x.Request.Version == http1.Version11 && !x.Request.Header.Has("Host"),
		x.Request.ConflictingHost():
		w.WriteHeader(400)
	default:
		h := cn.srv.Handler
		if h == nil {
			h = NotFound
		}
		h.ServeHTTP(w, r)
	}
	if b, ok := r.Body.(*requestBody); ok {
		b.detach()
	}
	if err := w.finish(); err != nil {
		cn.log.Logf(obs.Warn, "response %s %s: %v", method, x.Request.Target, err)
		cn.broken = true
		return
	}
	if err := cn.flush(); err != nil {
		cn.log.Logf(obs.Debug, "write: %v", err)
		cn.broken = true
		return
	}
	cn.srv.meter().Histogram("h1ws_server_exchange_duration_ms", float64(time.Since(start).Milliseconds()),
		obs.Label{Key: "method", Value: method}, obs.Label{Key: "status", Value: itoaStatus(w.status)})
	tr, _ := TraceFrom(r.Context())
	cn.log.Logf(obs.Debug, "%s %s -> %d trace=%s", method, x.Request.Target, w.status, tr.TraceID)
}

// serveUpgrade answers a valid WebSocket handshake. It reports whether the
// connection was handed over.
func (cn *serverConn) serveUpgrade(x *pipeline.Exchange) bool {
	s := cn.srv
	if s.WebSocket == nil {
		cn.serveRequest(x)
		return false
	}
	r := cn.newRequest(x)
	if s.CheckOrigin != nil && !s.CheckOrigin(r) {
		cn.log.Logf(obs.Info, "upgrade refused origin=%q", x.Handshake.Origin)
		if err := cn.sc.RejectUpgrade(x, 403); err != nil {
			cn.broken = true
		}
		return false
	}
	proto := selectSubprotocol(s.Subprotocols, x.Handshake.Protocols)
	if err := cn.sc.AcceptUpgrade(x, proto, nil); err != nil {
		cn.log.Logf(obs.Warn, "upgrade: %v", err)
		cn.broken = true
		return false
	}
	if err := cn.flush(); err != nil {
		cn.log.Logf(obs.Debug, "write: %v", err)
		cn.broken = true
		return false
	}
	rest, err := cn.sc.Hijack()
	if err != nil {
		cn.log.Logf(obs.Warn, "hijack: %v", err)
		cn.broken = true
		return false
	}
	s.meter().Counter("h1ws_server_upgrades_total", 1)
	cn.log.Logf(obs.Debug, "upgrade target=%s subprotocol=%q", x.Request.Target, proto)

	_ = cn.nc.SetDeadline(time.Time{})
	c := newWebSocketConn(cn.nc, cn.cfg, ws.RoleServer, proto, nil, rest)
	defer func() {
		_ = c.closeNow()
		cn.sc.Close()
	}()
	s.WebSocket.ServeWebSocket(c, r)
	return true
}

// selectSubprotocol picks the first of ours the client offered.
func selectSubprotocol(ours, offered []string) string {
	for _, p := range ours {
		if slices.Contains(offered, p) {
			return p
		}
	}
	return ""
}

func itoaStatus(code int) string {
	if code < 100 || code > 999 {
		return "000"
	}
	return string([]byte{byte('0' + code/100), byte('0' + code/10%10), byte('0' + code%10)})
}
