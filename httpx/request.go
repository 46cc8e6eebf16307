package httpx

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"strings"

	"dqx0.com/go/h1ws/httpx/internal/http1"
)

// Request represents an HTTP request.
//
// On the server Body streams the request body and Trailer is filled once
// Body returns io.EOF. On the client ContentLength selects the framing: a
// known length is sent as-is, -1 with a non-nil Body is chunked.
type Request struct {
	Method        string
	URL           *url.URL
	RequestURI    string
	Proto         string
	Header        Header
	Trailer       Header
	Body          io.ReadCloser
	Host          string
	ContentLength int64
	RemoteAddr    string
	ctx           context.Context
	// RequestID is generated by the server for each request.
	RequestID string
	// ConnID identifies the connection the request arrived on.
	ConnID string
}

// Context returns the request's context. If nil, returns Background.
func (r *Request) Context() context.Context {
	if r == nil || r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r with its context changed to ctx.
func WithContext(r *Request, ctx context.Context) *Request {
	if r == nil {
		return nil
	}
	r2 := *r
	r2.ctx = ctx
	return &r2
}

// NewRequest builds a client request for rawURL. body may be nil.
func NewRequest(method, rawURL string, body io.Reader) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	r := &Request{Method: method, URL: u, Host: u.Host, ContentLength: 0}
	switch b := body.(type) {
	case nil:
	case interface{ Len() int }:
		r.ContentLength = int64(b.Len())
		r.Body = io.NopCloser(body)
	default:
		r.ContentLength = -1
		r.Body = io.NopCloser(body)
	}
	return r, nil
}

// requestFromHead maps a parsed head onto a server Request.
func requestFromHead(h *http1.Head, kind http1.BodyKind) *Request {
	r := &Request{
		Method:        string(h.Method),
		RequestURI:    h.Target,
		Proto:         h.Version.String(),
		Header:        h.Header,
		Host:          h.Host(),
		ContentLength: -1,
	}
	switch k := kind.(type) {
	case http1.Absent:
		r.ContentLength = 0
	case http1.Fixed:
		r.ContentLength = int64(k.Length)
	}
	if strings.HasPrefix(h.Target, "http://") || strings.HasPrefix(h.Target, "https://") {
		r.URL, _ = url.Parse(h.Target)
	} else if h.Method != http1.MethodConnect {
		r.URL, _ = url.ParseRequestURI(h.Target)
	}
	if r.URL == nil {
		r.URL = &url.URL{Opaque: h.Target}
	}
	return r
}

// head builds the request head sent by a client.
func (r *Request) head() (*http1.Head, http1.BodyKind, error) {
	if r.URL == nil {
		return nil, nil, ErrURLScheme
	}
	target := r.RequestURI
	if target == "" {
		target = r.URL.RequestURI()
	}
	method := r.Method
	if method == "" {
		method = string(http1.MethodGet)
	}
	h := &http1.Head{Method: http1.Method(method), Target: target, Version: http1.Version11, Header: r.Header.Clone()}
	if !h.Header.Has("Host") {
		host := r.Host
		if host == "" {
			host = r.URL.Host
		}
		h.Header = append(Header{{Name: "Host", Value: host}}, h.Header...)
	}
	var kind http1.BodyKind = http1.Absent{}
	switch {
	case r.Body == nil && r.ContentLength > 0:
		return nil, nil, ErrContentLength
	case r.ContentLength > 0:
		kind = http1.Fixed{Length: uint64(r.ContentLength)}
	case r.ContentLength < 0 && r.Body != nil:
		kind = http1.Chunked{}
	case r.ContentLength == 0 && methodSendsLength(h.Method):
		kind = http1.Fixed{}
	}
	return h, kind, nil
}

func methodSendsLength(m http1.Method) bool {
	return m == http1.MethodPost || m == http1.MethodPut || m == http1.MethodPatch
}

func statusLine(code int, reason string) string {
	if reason == "" {
		reason = http1.StatusText(code)
	}
	return strconv.Itoa(code) + " " + reason
}
