package httpx

import (
	"os"
	"strconv"
	"strings"
	"time"

	"dqx0.com/go/h1ws/httpx/internal/http1"
	"dqx0.com/go/h1ws/httpx/internal/pipeline"
)

// bufferLimit is how much body a response holds back before committing to
// a framing.
const bufferLimit = 4 << 10

const dateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

func httpDate() string { return time.Now().UTC().Format(dateLayout) }

// response is the server's ResponseWriter. Writes are buffered until the
// handler returns or the buffer fills, so short bodies go out with a
// Content-Length.
type response struct {
	cn       *serverConn
	x        *pipeline.Exchange
	header   Header
	trailer  Header
	status   int
	started  bool
	finished bool
	buf      []byte
	err      error
}

func (w *response) Header() *Header { return &w.header }

func (w *response) Trailer() *Header { return &w.trailer }

// WriteHeader records the status. Interim statuses are ignored; 100
// Continue is sent by the server when the handler reads the body.
func (w *response) WriteHeader(status int) {
	if w.status != 0 || w.started || status < 200 || status > 999 {
		return
	}
	w.status = status
}

func (w *response) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.status == 0 {
		w.status = 200
	}
	if !w.started {
		if len(w.buf)+len(p) <= bufferLimit {
			w.buf = append(w.buf, p...)
			return len(p), nil
		}
		if err := w.start(false); err != nil {
			return 0, err
		}
	}
	if err := w.cn.sc.WriteBody(w.x, p); err != nil {
		w.err = err
		return 0, err
	}
	if w.cn.sc.Backpressured() {
		if err := w.cn.flush(); err != nil {
			w.err = err
			return 0, err
		}
	}
	return len(p), nil
}

// Flush commits the head and writes everything produced so far.
func (w *response) Flush() error {
	if w.err != nil {
		return w.err
	}
	if !w.started {
		if w.status == 0 {
			w.status = 200
		}
		if err := w.start(false); err != nil {
			return err
		}
	}
	if err := w.cn.flush(); err != nil {
		w.err = err
		return err
	}
	return nil
}

// SendFile sends length bytes of f from offset as the whole body. It
// returns once the region is written, so f may be closed afterwards.
func (w *response) SendFile(f *os.File, offset, length int64) error {
	if w.started {
		return ErrHeaderWritten
	}
	if w.status == 0 {
		w.status = 200
	}
	kind := http1.FileBacked{File: f, Offset: offset, Length: length}
	if err := w.respond(kind); err != nil {
		return err
	}
	if err := w.cn.sc.SendFile(w.x); err != nil {
		w.err = err
		return err
	}
	if err := w.cn.flush(); err != nil {
		w.err = err
		return err
	}
	return nil
}

// start hands the head to the driver. final is set when the handler has
// returned, so the buffered bytes are the whole body.
func (w *response) start(final bool) error {
	var kind http1.BodyKind
	switch cl := strings.TrimSpace(w.header.Get("Content-Length")); {
	case cl != "":
		n, err := strconv.ParseUint(cl, 10, 63)
		if err != nil {
			w.err = ErrContentLength
			return w.err
		}
		kind = http1.Fixed{Length: n}
	case final:
		kind = http1.Fixed{Length: uint64(len(w.buf))}
	default:
		kind = http1.Chunked{}
	}
	if err := w.respond(kind); err != nil {
		return err
	}
	buf := w.buf
	w.buf = nil
	if len(buf) > 0 {
		if err := w.cn.sc.WriteBody(w.x, buf); err != nil {
			w.err = err
			return err
		}
	}
	return nil
}

func (w *response) respond(kind http1.BodyKind) error {
	h := &http1.Head{Status: w.status, Version: http1.Version11, Header: w.header}
	if w.header.Get("Date") == "" {
		h.Header = append(w.header.Clone(), Field{Name: "Date", Value: httpDate()})
	}
	w.started = true
	if err := w.cn.sc.Respond(w.x, h, kind); err != nil {
		w.err = err
		return err
	}
	return nil
}

// finish completes the response after the handler returned.
func (w *response) finish() error {
	if w.finished {
		return w.err
	}
	w.finished = true
	if w.status == 0 {
		w.status = 200
	}
	if w.err != nil {
		return w.err
	}
	if !w.started {
		if err := w.start(true); err != nil {
			return err
		}
	}
	if err := w.cn.sc.Finish(w.x, w.trailer); err != nil {
		w.err = err
		return err
	}
	return nil
}
