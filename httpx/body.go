package httpx

import (
	"io"

	"dqx0.com/go/h1ws/httpx/internal/pipeline"
)

// requestBody streams a request body by driving the connection from the
// handler's goroutine. A request that expects 100-continue gets it on the
// first read that has to wait for the peer.
type requestBody struct {
	cn     *serverConn
	x      *pipeline.Exchange
	r      *Request
	rest   []byte
	done   bool
	closed bool
	err    error
}

func (b *requestBody) Read(p []byte) (int, error) {
	if b.closed {
		return 0, ErrBodyClosed
	}
	for len(b.rest) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		if b.done {
			return 0, io.EOF
		}
		b.step()
	}
	n := copy(p, b.rest)
	b.rest = b.rest[n:]
	return n, nil
}

func (b *requestBody) step() {
	cn := b.cn
	ev, err := cn.sc.Next()
	if err != nil {
		b.err = err
		return
	}
	switch ev.Kind {
	case pipeline.EventBody:
		b.rest = ev.Data
	case pipeline.EventBodyEnd:
		b.done = true
		b.r.Trailer = b.x.Trailers
	case pipeline.EventNone:
		if b.x.Request.ExpectContinue() {
			_ = cn.sc.Continue(b.x)
		}
		if err := cn.flush(); err != nil {
			b.err = err
			return
		}
		if cn.eof {
			b.err = io.ErrUnexpectedEOF
			return
		}
		if err := cn.fill(); err != nil {
			b.err = err
		}
	}
}

// Close stops reading; the rest of the body is discarded by the server.
func (b *requestBody) Close() error {
	b.closed = true
	return nil
}

func (b *requestBody) detach() {
	b.closed = true
	b.rest = nil
}

type noBody struct{}

func (noBody) Read([]byte) (int, error) { return 0, io.EOF }
func (noBody) Close() error             { return nil }
