package http1

import "dqx0.com/go/h1ws/internal/errdef"

// Head parsing.
var (
	ErrHeadTooLarge   = errdef.New(errdef.CodeLimit, "http1: message head too large")
	ErrTooManyHeaders = errdef.New(errdef.CodeLimit, "http1: too many header fields")
	ErrRequestLine    = errdef.New(errdef.CodeMalformed, "http1: malformed request line")
	ErrStatusLine     = errdef.New(errdef.CodeMalformed, "http1: malformed status line")
	ErrVersion        = errdef.New(errdef.CodeMalformed, "http1: unsupported HTTP version")
	ErrMethod         = errdef.New(errdef.CodeMalformed, "http1: invalid method token")
	ErrTarget         = errdef.New(errdef.CodeMalformed, "http1: invalid request target")
	ErrHeaderName     = errdef.New(errdef.CodeMalformed, "http1: invalid header field name")
	ErrHeaderValue    = errdef.New(errdef.CodeMalformed, "http1: invalid header field value")
	ErrObsFold        = errdef.New(errdef.CodeMalformed, "http1: obsolete line folding")
	ErrDuplicateHost  = errdef.New(errdef.CodeMalformed, "http1: duplicate Host header")
)

// Body framing.
var (
	ErrContentLength      = errdef.New(errdef.CodeMalformed, "http1: invalid Content-Length")
	ErrTransferCoding     = errdef.New(errdef.CodeMalformed, "http1: unsupported Transfer-Encoding")
	ErrConflictingFraming = errdef.New(errdef.CodeProtocol, "http1: both Content-Length and Transfer-Encoding present")
	ErrChunkFraming       = errdef.New(errdef.CodeMalformed, "http1: invalid chunked framing")
	ErrUnexpectedEOF      = errdef.New(errdef.CodeEOF, "http1: unexpected EOF in message body")
	ErrBodyTooLarge       = errdef.New(errdef.CodeLimit, "http1: body too large")
	ErrBodyLength         = errdef.New(errdef.CodeUsage, "http1: body does not match declared length")
	ErrBodyDone           = errdef.New(errdef.CodeUsage, "http1: body already finished")
	ErrFileBackedInbound  = errdef.New(errdef.CodeUsage, "http1: file-backed bodies are outbound only")
	ErrFileBackedBytes    = errdef.New(errdef.CodeUsage, "http1: file-backed body takes no byte writes")
	ErrFileLengthUnknown  = errdef.New(errdef.CodeProtocol, "http1: file-backed body requires a known length")
)
