package pipeline

import "dqx0.com/go/h1ws/internal/errdef"

var (
	ErrTimeout                = errdef.New(errdef.CodeTimeout, "pipeline: connection timed out")
	ErrClosed                 = errdef.New(errdef.CodeClosed, "pipeline: connection closed")
	ErrUnknownExchange        = errdef.New(errdef.CodeUsage, "pipeline: exchange is not in flight on this connection")
	ErrResponded              = errdef.New(errdef.CodeUsage, "pipeline: response already started")
	ErrNotResponded           = errdef.New(errdef.CodeUsage, "pipeline: response not started")
	ErrFinished               = errdef.New(errdef.CodeUsage, "pipeline: message already finished")
	ErrNotFileBacked          = errdef.New(errdef.CodeUsage, "pipeline: body is not file-backed")
	ErrNoHandshake            = errdef.New(errdef.CodeUsage, "pipeline: exchange is not an upgrade request")
	ErrNotHijackable          = errdef.New(errdef.CodeUsage, "pipeline: connection has not switched protocols")
	ErrNoContinue             = errdef.New(errdef.CodeUsage, "pipeline: request does not expect 100-continue")
	ErrRequestFraming         = errdef.New(errdef.CodeUsage, "pipeline: a request body cannot be close-delimited")
	ErrCloseDelimitedDisabled = errdef.New(errdef.CodeProtocol, "pipeline: close-delimited bodies are disabled")
	ErrUnsolicitedResponse    = errdef.New(errdef.CodeProtocol, "pipeline: response without a pending request")
	ErrUnexpectedSwitch       = errdef.New(errdef.CodeProtocol, "pipeline: 101 response to a request that did not ask to upgrade")
)
