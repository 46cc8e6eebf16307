package httpx

import "dqx0.com/go/h1ws/httpx/internal/http1"

// Header is an ordered field list. Lookups ignore case and repeated fields
// keep their wire order.
type (
	Header = http1.Header
	Field  = http1.Field
)

type Handler interface {
	ServeHTTP(ResponseWriter, *Request)
}

type HandlerFunc func(ResponseWriter, *Request)

func (f HandlerFunc) ServeHTTP(w ResponseWriter, r *Request) {
	f(w, r)
}

// ResponseWriter builds the response to one request. Small bodies are sent
// with a Content-Length; larger or flushed ones are chunked unless the
// handler set a Content-Length itself.
type ResponseWriter interface {
	Header() *Header
	Write([]byte) (int, error)
	WriteHeader(status int)
}

// WebSocketHandler serves a connection after a successful upgrade. The
// connection is closed when ServeWebSocket returns.
type WebSocketHandler interface {
	ServeWebSocket(*WebSocketConn, *Request)
}

type WebSocketHandlerFunc func(*WebSocketConn, *Request)

func (f WebSocketHandlerFunc) ServeWebSocket(c *WebSocketConn, r *Request) {
	f(c, r)
}

// NotFound replies 404 to every request.
var NotFound = HandlerFunc(func(w ResponseWriter, r *Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(404)
	_, _ = w.Write([]byte("not found\n"))
})
