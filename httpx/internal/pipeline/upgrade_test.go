package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dqx0.com/go/h1ws/httpx/internal/http1"
	"dqx0.com/go/h1ws/httpx/ws"
)

const (
	sampleKey    = "dGhlIHNhbXBsZSBub25jZQ=="
	sampleAccept = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
)

func handshakeRequest(version string) string {
	return "GET /chat HTTP/1.1\r\n" +
		"Host: server.example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: " + sampleKey + "\r\n" +
		"Sec-WebSocket-Protocol: chat, superchat\r\n" +
		"Sec-WebSocket-Version: " + version + "\r\n\r\n"
}

func TestUpgrade_AcceptAndHijack(t *testing.T) {
	c := NewServerConn(testConfig())
	frame := []byte{0x81, 0x85, 1, 2, 3, 4, 'h' ^ 1, 'e' ^ 2, 'l' ^ 3, 'l' ^ 4, 'o' ^ 1}
	c.Feed(append([]byte(handshakeRequest("13")), frame...))

	ev, err := c.Next()
	require.NoError(t, err)
	require.Equal(t, EventUpgrade, ev.Kind)
	x := ev.Exchange
	require.Equal(t, sampleKey, x.Handshake.Key)
	require.Equal(t, []string{"chat", "superchat"}, x.Handshake.Protocols)

	ev, err = c.Next()
	require.NoError(t, err)
	require.Equal(t, EventNone, ev.Kind, "reading waits for the upgrade decision")
	require.True(t, c.Deadline().IsZero())

	require.ErrorIs(t, c.AcceptUpgrade(x, "mqtt", nil), ws.ErrUnofferedProtocol)
	require.NoError(t, c.AcceptUpgrade(x, "chat", nil))
	require.ErrorIs(t, c.AcceptUpgrade(x, "chat", nil), ErrResponded)

	_, err = c.Hijack()
	require.ErrorIs(t, err, ErrNotHijackable, "101 not written yet")

	require.Equal(t,
		"HTTP/1.1 101 Switching Protocols\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Accept: "+sampleAccept+"\r\n"+
			"Sec-WebSocket-Protocol: chat\r\n\r\n",
		drain(t, c))
	require.False(t, c.ShouldClose())

	rest, err := c.Hijack()
	require.NoError(t, err)
	require.Equal(t, frame, rest)
	_, err = c.Hijack()
	require.ErrorIs(t, err, ErrNotHijackable)

	// The leftover bytes are the start of the WebSocket stream.
	s := ws.NewSession(ws.SessionConfig{Role: ws.RoleServer})
	s.Feed(rest)
	msg, err := s.Receive()
	require.NoError(t, err)
	require.Equal(t, "hello", string(msg.Data))
}

func TestUpgrade_RejectValidHandshake(t *testing.T) {
	c := NewServerConn(testConfig())
	c.Feed([]byte(handshakeRequest("13") + "GET /next HTTP/1.1\r\nHost: a\r\n\r\n"))

	var got collected
	require.NoError(t, pump(t, c, &got))
	require.Equal(t, []EventKind{EventUpgrade}, got.events)

	x := got.xs[0]
	require.NoError(t, c.RejectUpgrade(x, 403))
	require.ErrorIs(t, c.RejectUpgrade(x, 403), ErrNoHandshake)
	require.Equal(t, "HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\n\r\n", drain(t, c))

	require.NoError(t, pump(t, c, &got))
	require.Len(t, got.xs, 2)
	require.Equal(t, "/next", got.xs[1].Request.Target)
	_, err := c.Hijack()
	require.ErrorIs(t, err, ErrNotHijackable)
}

func TestUpgrade_RespondInsteadOfAccepting(t *testing.T) {
	c := NewServerConn(testConfig())
	c.Feed([]byte(handshakeRequest("13")))
	ev, err := c.Next()
	require.NoError(t, err)
	x := ev.Exchange

	require.NoError(t, c.Respond(x, &http1.Head{Status: 200}, http1.Fixed{Length: 2}))
	require.Nil(t, x.Handshake)
	require.NoError(t, c.WriteBody(x, []byte("no")))
	require.NoError(t, c.Finish(x, nil))
	require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nno", drain(t, c))
	require.False(t, c.ShouldClose())
}

func TestUpgrade_InvalidHandshakeAnsweredAutomatically(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  string
		close bool
	}{
		{
			name: "version",
			raw:  handshakeRequest("8"),
			want: "HTTP/1.1 426 Upgrade Required\r\nSec-WebSocket-Version: 13\r\nUpgrade: websocket\r\nContent-Length: 0\r\n\r\n",
		},
		{
			name: "empty body",
			raw:  "GET /chat HTTP/1.1\r\nHost: a\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: " + sampleKey + "\r\nSec-WebSocket-Version: 8\r\nContent-Length: 0\r\n\r\n",
			want: "HTTP/1.1 426 Upgrade Required\r\nSec-WebSocket-Version: 13\r\nUpgrade: websocket\r\nContent-Length: 0\r\n\r\n",
		},
		{
			name: "method",
			raw:  "POST /chat HTTP/1.1\r\nHost: a\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: " + sampleKey + "\r\nSec-WebSocket-Version: 13\r\n\r\n",
			want: "HTTP/1.1 405 Method Not Allowed\r\nAllow: GET\r\nContent-Length: 0\r\n\r\n",
		},
		{
			name:  "body",
			raw:   "GET /chat HTTP/1.1\r\nHost: a\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: " + sampleKey + "\r\nSec-WebSocket-Version: 13\r\nContent-Length: 3\r\n\r\nabc",
			want:  "HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\nConnection: close\r\n\r\n",
			close: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewServerConn(testConfig())
			c.Feed([]byte(tt.raw + "GET /next HTTP/1.1\r\nHost: a\r\n\r\n"))
			var got collected
			require.NoError(t, pump(t, c, &got))
			require.Equal(t, tt.want, drain(t, c))
			require.Equal(t, tt.close, c.ShouldClose())
			if tt.close {
				require.Empty(t, got.xs)
				return
			}
			require.Len(t, got.xs, 1)
			require.Equal(t, "/next", got.xs[0].Request.Target)
		})
	}
}

func TestUpgrade_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableUpgrade = false
	c := NewServerConn(cfg)
	c.Feed([]byte(handshakeRequest("13")))
	var got collected
	require.NoError(t, pump(t, c, &got))
	require.Equal(t, []EventKind{EventRequest, EventBodyEnd}, got.events)
	require.Nil(t, got.xs[0].Handshake)
	require.ErrorIs(t, c.AcceptUpgrade(got.xs[0], "", nil), ErrNoHandshake)
}
