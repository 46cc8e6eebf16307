// Package httpx serves and speaks HTTP/1.1 with WebSocket upgrade on top of
// the sans-IO connection drivers in internal/pipeline.
//
// Highlights
//   - Server: requests are parsed ahead of the handler (pipelining) and
//     answered strictly in order; streaming ResponseWriter with Flush,
//     trailers and zero-copy SendFile; Expect: 100-continue on first body
//     read; head and idle timeouts; graceful shutdown.
//   - WebSocket: RFC 6455 handshake with subprotocol selection and origin
//     checks, fragmented messages, ping/pong and the closing handshake.
//   - Client: one pipelined connection per ClientConn, shared by
//     concurrent callers; DialWebSocket for ws:// and wss://.
//   - Observability: plug-in Logger and Meter, request and connection IDs,
//     W3C traceparent propagation.
//
// Quick start (server):
//
//	s := &httpx.Server{Addr: ":8080"}
//	s.Handler = httpx.HandlerFunc(func(w httpx.ResponseWriter, r *httpx.Request) {
//	    w.Header().Set("Content-Type", "text/plain; charset=utf-8")
//	    w.Write([]byte("hello"))
//	})
//	s.WebSocket = httpx.WebSocketHandlerFunc(func(c *httpx.WebSocketConn, r *httpx.Request) {
//	    for {
//	        op, msg, err := c.ReadMessage()
//	        if err != nil { return }
//	        c.WriteMessage(op, msg)
//	    }
//	})
//	if err := s.ListenAndServe(); err != nil { log.Fatal(err) }
//
// Quick start (client):
//
//	c, err := httpx.Dial(ctx, "127.0.0.1:8080", nil)
//	if err != nil { log.Fatal(err) }
//	defer c.Close()
//	res, err := c.Get(ctx, "http://127.0.0.1:8080/")
//	if err != nil { log.Fatal(err) }
//	defer res.Body.Close()
//	b, _ := io.ReadAll(res.Body)
//	fmt.Println(res.StatusCode, string(b))
package httpx
