package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dqx0.com/go/h1ws/config"
	"dqx0.com/go/h1ws/httpx/internal/http1"
	"dqx0.com/go/h1ws/httpx/ws"
	"dqx0.com/go/h1ws/internal/errdef"
)

func get(target string) *http1.Head {
	return &http1.Head{Method: http1.MethodGet, Target: target, Header: http1.Header{{Name: "Host", Value: "a"}}}
}

func sendAll(t *testing.T, c *ClientConn, heads ...*http1.Head) []*Exchange {
	t.Helper()
	var xs []*Exchange
	for _, h := range heads {
		x, err := c.Send(h, http1.Absent{})
		require.NoError(t, err)
		require.NoError(t, c.Finish(x, nil))
		xs = append(xs, x)
	}
	return xs
}

func TestClient_PairsResponsesInOrder(t *testing.T) {
	c := NewClientConn(testConfig())
	xs := sendAll(t, c, get("/a"), get("/b"))
	require.Equal(t, "GET /a HTTP/1.1\r\nHost: a\r\n\r\nGET /b HTTP/1.1\r\nHost: a\r\n\r\n", drain(t, c))
	require.Equal(t, 2, c.Waiting())

	c.Feed([]byte("HTTP/1.1 100 Continue\r\n\r\n" +
		"HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\na" +
		"HTTP/1.1 404 Not Found\r\nTransfer-Encoding: chunked\r\n\r\n1\r\nb\r\n0\r\n\r\n"))
	var got collected
	require.NoError(t, pump(t, c, &got))
	require.Equal(t, []EventKind{
		EventResponse, EventBody, EventBodyEnd,
		EventResponse, EventBody, EventBodyEnd,
	}, got.events)
	require.Same(t, xs[0], got.xs[0])
	require.Same(t, xs[1], got.xs[1])
	require.Equal(t, 200, xs[0].Response.Status)
	require.Equal(t, 404, xs[1].Response.Status)
	require.Equal(t, "a", got.bodies[xs[0]])
	require.Equal(t, "b", got.bodies[xs[1]])
	require.Zero(t, c.Waiting())
	require.False(t, c.ShouldClose())
}

func TestClient_HeadResponseHasNoBody(t *testing.T) {
	c := NewClientConn(testConfig())
	head := get("/h")
	head.Method = http1.MethodHead
	xs := sendAll(t, c, head, get("/g"))
	drain(t, c)

	c.Feed([]byte("HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\n" +
		"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	var got collected
	require.NoError(t, pump(t, c, &got))
	require.Equal(t, http1.Absent{}, xs[0].ResponseKind)
	require.Equal(t, "10", xs[0].Response.Header.Get("Content-Length"))
	require.Equal(t, "ok", got.bodies[xs[1]])
}

func TestClient_CloseDelimitedResponse(t *testing.T) {
	c := NewClientConn(testConfig())
	xs := sendAll(t, c, get("/"))
	drain(t, c)

	c.Feed([]byte("HTTP/1.1 200 OK\r\n\r\nabc"))
	var got collected
	require.NoError(t, pump(t, c, &got))
	require.Equal(t, []EventKind{EventResponse, EventBody}, got.events)
	require.False(t, xs[0].KeepAlive())

	c.Feed([]byte("def"))
	c.CloseRead()
	require.NoError(t, pump(t, c, &got))
	require.Equal(t, "abcdef", got.bodies[xs[0]])
	require.Equal(t, EventBodyEnd, got.events[len(got.events)-1])
	require.True(t, c.ShouldClose())

	_, err := c.Send(get("/again"), http1.Absent{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestClient_ConnectionCloseFailsLaterRequests(t *testing.T) {
	c := NewClientConn(testConfig())
	xs := sendAll(t, c, get("/1"), get("/2"), get("/3"))
	drain(t, c)

	c.Feed([]byte("HTTP/1.1 200 OK\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"))
	var got collected
	require.NoError(t, pump(t, c, &got))
	require.Len(t, got.xs, 1)
	require.NoError(t, xs[0].Err())
	require.ErrorIs(t, xs[1].Err(), ErrClosed)
	require.ErrorIs(t, xs[2].Err(), ErrClosed)
	require.Zero(t, c.Waiting())
	require.True(t, c.ShouldClose())
}

func TestClient_StopsSendingAfterClosingRequest(t *testing.T) {
	c := NewClientConn(testConfig())
	h := get("/")
	h.Header.Add("Connection", "close")
	sendAll(t, c, h)
	_, err := c.Send(get("/next"), http1.Absent{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestClient_Failures(t *testing.T) {
	t.Run("unsolicited", func(t *testing.T) {
		c := NewClientConn(testConfig())
		c.Feed([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
		_, err := c.Next()
		require.ErrorIs(t, err, ErrUnsolicitedResponse)
		require.True(t, errdef.Is(err, errdef.CodeProtocol))
		require.True(t, c.ShouldClose())
	})
	t.Run("eof mid body", func(t *testing.T) {
		c := NewClientConn(testConfig())
		xs := sendAll(t, c, get("/1"), get("/2"))
		drain(t, c)
		c.Feed([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nab"))
		var got collected
		require.NoError(t, pump(t, c, &got))
		c.CloseRead()
		err := pump(t, c, &got)
		require.ErrorIs(t, err, http1.ErrUnexpectedEOF)
		require.NotContains(t, got.events, EventBodyEnd)
		for _, x := range xs {
			require.ErrorIs(t, x.Err(), http1.ErrUnexpectedEOF)
			require.Nil(t, x.Response)
		}
		require.True(t, c.ShouldClose())
		_, err = c.Send(get("/3"), http1.Absent{})
		require.ErrorIs(t, err, http1.ErrUnexpectedEOF)
	})
	t.Run("eof before head", func(t *testing.T) {
		c := NewClientConn(testConfig())
		xs := sendAll(t, c, get("/"))
		drain(t, c)
		c.Feed([]byte("HTTP/1.1 200"))
		c.CloseRead()
		_, err := c.Next()
		require.ErrorIs(t, err, http1.ErrUnexpectedEOF)
		require.ErrorIs(t, xs[0].Err(), http1.ErrUnexpectedEOF)
	})
	t.Run("malformed status line", func(t *testing.T) {
		c := NewClientConn(testConfig())
		xs := sendAll(t, c, get("/"))
		drain(t, c)
		c.Feed([]byte("HTTP/1.1 2x0 OK\r\n\r\n"))
		_, err := c.Next()
		require.ErrorIs(t, err, http1.ErrStatusLine)
		require.ErrorIs(t, xs[0].Err(), http1.ErrStatusLine)
	})
	t.Run("close-delimited request", func(t *testing.T) {
		c := NewClientConn(testConfig())
		_, err := c.Send(get("/"), http1.CloseDelimited{})
		require.ErrorIs(t, err, ErrRequestFraming)
	})
	t.Run("unexpected switch", func(t *testing.T) {
		c := NewClientConn(testConfig())
		sendAll(t, c, get("/"))
		drain(t, c)
		c.Feed([]byte("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\n\r\n"))
		_, err := c.Next()
		require.ErrorIs(t, err, ErrUnexpectedSwitch)
	})
}

func TestClient_RequestBodies(t *testing.T) {
	c := NewClientConn(testConfig())
	h := &http1.Head{Method: http1.MethodPost, Target: "/up", Header: http1.Header{{Name: "Host", Value: "a"}}}
	x, err := c.Send(h, http1.Chunked{})
	require.NoError(t, err)
	require.ErrorIs(t, c.SendFile(x), ErrNotFileBacked)
	require.NoError(t, c.WriteBody(x, []byte("hello")))
	require.NoError(t, c.Finish(x, http1.Header{{Name: "X-Sum", Value: "5"}}))
	require.ErrorIs(t, c.Finish(x, nil), ErrFinished)
	require.Equal(t,
		"POST /up HTTP/1.1\r\nHost: a\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\nX-Sum: 5\r\n\r\n",
		drain(t, c))
	require.Empty(t, h.Header.Get("Transfer-Encoding"), "caller's head is not modified")
}

func TestClient_WebSocketUpgrade(t *testing.T) {
	c := NewClientConn(testConfig())
	key := sampleKey
	x, err := c.Send(ws.ClientRequestHead("/chat", "server.example.com", key, []string{"chat"}), http1.Absent{})
	require.NoError(t, err)
	require.NoError(t, c.Finish(x, nil))
	_, err = c.Send(get("/"), http1.Absent{})
	require.ErrorIs(t, err, ErrClosed, "nothing is sent after an upgrade request")
	drain(t, c)

	frame := []byte{0x81, 0x02, 'h', 'i'}
	c.Feed(append([]byte("HTTP/1.1 101 Switching Protocols\r\n"+
		"Upgrade: websocket\r\nConnection: Upgrade\r\n"+
		"Sec-WebSocket-Accept: "+sampleAccept+"\r\n"+
		"Sec-WebSocket-Protocol: chat\r\n\r\n"), frame...))
	ev, err := c.Next()
	require.NoError(t, err)
	require.Equal(t, EventUpgrade, ev.Kind)
	require.Same(t, x, ev.Exchange)

	proto, err := ws.VerifyResponse(x.Response, key, []string{"chat"})
	require.NoError(t, err)
	require.Equal(t, "chat", proto)

	ev, err = c.Next()
	require.NoError(t, err)
	require.Equal(t, EventNone, ev.Kind)
	require.False(t, c.ShouldClose())

	rest, err := c.Hijack()
	require.NoError(t, err)
	require.Equal(t, frame, rest)
}

func TestClient_Timeout(t *testing.T) {
	t0 := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	cfg := testConfig()
	cfg.IdleTimeout = config.Duration(3 * time.Second)
	cfg.HandshakeTimeout = config.Duration(time.Second)
	c := NewClientConn(cfg)
	now := t0
	c.now = func() time.Time { return now }

	require.True(t, c.Deadline().IsZero(), "no timer without a waiting request")
	xs := sendAll(t, c, get("/"))
	drain(t, c)
	require.Equal(t, t0.Add(3*time.Second), c.Deadline())

	now = t0.Add(2 * time.Second)
	c.Feed([]byte("HTTP/1.1 200 OK\r\n"))
	require.Equal(t, t0.Add(3*time.Second), c.Deadline())
	require.NoError(t, c.Expire(t0.Add(2500*time.Millisecond)))

	err := c.Expire(t0.Add(4 * time.Second))
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, xs[0].Err(), ErrTimeout)
	require.True(t, c.ShouldClose())
}
