package httpx

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"dqx0.com/go/h1ws/config"
	"dqx0.com/go/h1ws/httpx/ws"
)

// closeWait bounds how long Close waits for the peer's close frame.
const closeWait = 5 * time.Second

// CloseError reports the close frame that ended a WebSocket connection.
type CloseError struct {
	Code   ws.CloseCode
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket: closed with status %d", e.Code)
	}
	return fmt.Sprintf("websocket: closed with status %d: %s", e.Code, e.Reason)
}

// WebSocketConn is an upgraded connection. One goroutine may read while
// others write; writes are serialized.
type WebSocketConn struct {
	nc   net.Conn
	sess *ws.Session

	mu  sync.Mutex // guards sess and writes to nc
	rmu sync.Mutex // serializes readers
	buf []byte
	// rerr is a read error held back until buffered frames are consumed.
	rerr error
}

func newWebSocketConn(nc net.Conn, cfg config.Config, role ws.Role, proto string, extensions []string, rest []byte) *WebSocketConn {
	s := ws.NewSession(ws.SessionConfig{
		Role:            role,
		MaxFramePayload: cfg.MaxFramePayload,
		MaxMessageSize:  cfg.MaxMessageSize,
		MaxFrameSize:    cfg.MaxFrameSize,
		Subprotocol:     proto,
		Extensions:      extensions,
	})
	s.Feed(rest)
	return &WebSocketConn{nc: nc, sess: s, buf: make([]byte, readBufferSize)}
}

func (c *WebSocketConn) Subprotocol() string  { return c.sess.Subprotocol() }
func (c *WebSocketConn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }
func (c *WebSocketConn) LocalAddr() net.Addr  { return c.nc.LocalAddr() }

// SetReadDeadline bounds the blocking reads of ReadMessage.
func (c *WebSocketConn) SetReadDeadline(t time.Time) error { return c.nc.SetReadDeadline(t) }

// ReadMessage blocks until a complete data message arrives. Pings are
// answered on the way. A close from the peer is echoed and returned as a
// *CloseError; a protocol violation sends the matching close status and is
// returned as is.
func (c *WebSocketConn) ReadMessage() (ws.Opcode, []byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	for {
		c.mu.Lock()
		m, err := c.sess.Receive()
		if m != nil && m.Opcode == ws.OpClose && c.sess.State() == ws.StateCloseReceived {
			_ = c.sess.Close(m.Code, "")
		}
		ferr := c.flushLocked()
		c.mu.Unlock()
		switch {
		case err != nil:
			return 0, nil, err
		case m != nil && m.Opcode == ws.OpClose:
			return 0, nil, &CloseError{Code: m.Code, Reason: m.Reason}
		case m != nil:
			return m.Opcode, m.Data, nil
		case ferr != nil:
			return 0, nil, ferr
		case c.rerr != nil:
			return 0, nil, c.rerr
		}
		n, err := c.nc.Read(c.buf)
		if n > 0 {
			c.mu.Lock()
			c.sess.Feed(c.buf[:n])
			c.mu.Unlock()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			c.rerr = err
		}
	}
}

func (c *WebSocketConn) WriteMessage(op ws.Opcode, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sess.Send(op, data); err != nil {
		return err
	}
	return c.flushLocked()
}

func (c *WebSocketConn) WriteText(s string) error { return c.WriteMessage(ws.OpText, []byte(s)) }

func (c *WebSocketConn) Ping(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sess.Ping(payload); err != nil {
		return err
	}
	return c.flushLocked()
}

// Close runs the closing handshake: it sends a close frame, waits a bounded
// time for the peer's, then closes the connection.
func (c *WebSocketConn) Close(code ws.CloseCode, reason string) error {
	c.mu.Lock()
	err := c.sess.Close(code, reason)
	if err == nil {
		err = c.flushLocked()
	}
	state := c.sess.State()
	c.mu.Unlock()
	switch {
	case err == nil, errors.Is(err, ws.ErrCloseSent), errors.Is(err, ws.ErrClosed):
	default:
		_ = c.nc.Close()
		return err
	}
	if state == ws.StateCloseSent {
		_ = c.nc.SetReadDeadline(time.Now().Add(closeWait))
		for {
			_, _, rerr := c.ReadMessage()
			if rerr != nil {
				break
			}
		}
	}
	return c.nc.Close()
}

// closeNow ends the connection without waiting, telling the peer when the
// closing handshake has not started.
func (c *WebSocketConn) closeNow() error {
	c.mu.Lock()
	if c.sess.State() == ws.StateOpen {
		_ = c.sess.Close(ws.CloseGoingAway, "")
		_ = c.flushLocked()
	}
	c.mu.Unlock()
	return c.nc.Close()
}

func (c *WebSocketConn) flushLocked() error {
	for out := c.sess.Pending(); len(out) > 0; out = c.sess.Pending() {
		n, err := c.nc.Write(out)
		c.sess.Advance(n)
		if err != nil {
			return err
		}
	}
	return nil
}
