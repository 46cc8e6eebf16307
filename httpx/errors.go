package httpx

import "dqx0.com/go/h1ws/internal/errdef"

var (
	ErrServerClosed  = errdef.New(errdef.CodeClosed, "httpx: server closed")
	ErrBodyClosed    = errdef.New(errdef.CodeClosed, "httpx: read on closed body")
	ErrHeaderWritten = errdef.New(errdef.CodeUsage, "httpx: response already started")
	ErrContentLength = errdef.New(errdef.CodeUsage, "httpx: invalid Content-Length set by handler")
	ErrURLScheme     = errdef.New(errdef.CodeUsage, "httpx: unsupported URL scheme")
	ErrNoResponse    = errdef.New(errdef.CodeClosed, "httpx: connection ended before the response")
)
