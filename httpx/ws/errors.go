package ws

import (
	"strconv"

	"dqx0.com/go/h1ws/internal/errdef"
)

// Frame codec.
var (
	ErrReservedBits      = errdef.New(errdef.CodeProtocol, "ws: reserved bits set")
	ErrUnknownOpcode     = errdef.New(errdef.CodeProtocol, "ws: unknown opcode")
	ErrFragmentedControl = errdef.New(errdef.CodeProtocol, "ws: fragmented control frame")
	ErrControlTooLarge   = errdef.New(errdef.CodeProtocol, "ws: control frame payload over 125 bytes")
	ErrUnmaskedFrame     = errdef.New(errdef.CodeProtocol, "ws: client frame is not masked")
	ErrMaskedFrame       = errdef.New(errdef.CodeProtocol, "ws: server frame is masked")
	ErrLength            = errdef.New(errdef.CodeProtocol, "ws: invalid payload length")
	ErrFrameTooLarge     = errdef.New(errdef.CodeLimit, "ws: frame payload too large")
)

// Session.
var (
	ErrContinuation      = errdef.New(errdef.CodeProtocol, "ws: continuation frame without a message")
	ErrInterleaved       = errdef.New(errdef.CodeProtocol, "ws: new data frame inside a fragmented message")
	ErrInvalidUTF8       = errdef.New(errdef.CodeProtocol, "ws: text message is not valid UTF-8")
	ErrMessageTooLarge   = errdef.New(errdef.CodeLimit, "ws: message too large")
	ErrClosePayload      = errdef.New(errdef.CodeProtocol, "ws: invalid close frame payload")
	ErrClosed            = errdef.New(errdef.CodeClosed, "ws: session closed")
	ErrCloseSent         = errdef.New(errdef.CodeClosed, "ws: close frame already sent")
	ErrControlPayload    = errdef.New(errdef.CodeUsage, "ws: control payload over 125 bytes")
	ErrUnofferedProtocol = errdef.New(errdef.CodeUsage, "ws: subprotocol was not offered by the client")
)

// Handshake.
var (
	ErrMethod      = errdef.New(errdef.CodeProtocol, "ws: handshake method must be GET")
	ErrVersion     = errdef.New(errdef.CodeProtocol, "ws: handshake requires HTTP/1.1")
	ErrConnection  = errdef.New(errdef.CodeProtocol, "ws: missing Connection: upgrade")
	ErrKey         = errdef.New(errdef.CodeProtocol, "ws: missing or invalid Sec-WebSocket-Key")
	ErrWSVersion   = errdef.New(errdef.CodeProtocol, "ws: unsupported Sec-WebSocket-Version")
	ErrRequestBody = errdef.New(errdef.CodeProtocol, "ws: handshake request has a body")
	ErrStatus      = errdef.New(errdef.CodeProtocol, "ws: server did not switch protocols")
	ErrUpgrade     = errdef.New(errdef.CodeProtocol, "ws: response does not upgrade to websocket")
	ErrAccept      = errdef.New(errdef.CodeProtocol, "ws: Sec-WebSocket-Accept mismatch")
	ErrBadProtocol = errdef.New(errdef.CodeProtocol, "ws: server selected a subprotocol that was not offered")
)

// HandshakeError is a failed upgrade attempt. Status is the HTTP status the
// server answers with; the connection stays plain HTTP.
type HandshakeError struct {
	Status int
	Err    error
}

func (e *HandshakeError) Error() string {
	return "ws: handshake rejected (" + strconv.Itoa(e.Status) + "): " + errdef.Message(e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
