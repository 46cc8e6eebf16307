package ws

import (
	"crypto/rand"
	"errors"
	"unicode/utf8"

	"dqx0.com/go/h1ws/internal/errdef"
)

// CloseState tracks the closing handshake.
type CloseState uint8

const (
	StateOpen CloseState = iota
	StateCloseSent
	StateCloseReceived
	StateClosed
)

func (s CloseState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCloseSent:
		return "close-sent"
	case StateCloseReceived:
		return "close-received"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type SessionConfig struct {
	Role Role
	// MaxFramePayload bounds a single inbound frame; 0 means unlimited.
	MaxFramePayload int64
	// MaxMessageSize bounds a reassembled inbound message; 0 means unlimited.
	MaxMessageSize int64
	// MaxFrameSize splits outbound messages into fragments; 0 sends each
	// message as one frame.
	MaxFrameSize int
	Subprotocol  string
	Extensions   []string
}

// Message is a complete inbound message. For OpClose, Code and Reason hold
// the peer's close status and Data is empty.
type Message struct {
	Opcode Opcode
	Data   []byte
	Code   CloseCode
	Reason string
}

// Session runs the message layer of one WebSocket connection over the frame
// codec. Like the HTTP driver it does no I/O: bytes go in with Feed, frames
// to send accumulate until drained with Pending and Advance.
type Session struct {
	cfg   SessionConfig
	state CloseState

	in  []byte
	out []byte

	inMsg bool
	msgOp Opcode
	msg   []byte

	peerCode   CloseCode
	peerReason string
	err        error
}

func NewSession(cfg SessionConfig) *Session {
	return &Session{cfg: cfg}
}

func (s *Session) Role() Role { return s.cfg.Role }
func (s *Session) Subprotocol() string { return s.cfg.Subprotocol }
func (s *Session) Extensions() []string { return s.cfg.Extensions }
func (s *Session) State() CloseState { return s.state }
func (s *Session) PeerClose() (CloseCode, string) { return s.peerCode, s.peerReason }

// Feed appends bytes read from the connection.
func (s *Session) Feed(p []byte) { s.in = append(s.in, p...) }

// Pending returns bytes waiting to be written.
func (s *Session) Pending() []byte { return s.out }

// Advance drops n written bytes from the front of the output.
func (s *Session) Advance(n int) {
	s.out = s.out[n:]
	if len(s.out) == 0 {
		s.out = s.out[:0]
	}
}

// Receive returns the next complete message from buffered input, or
// (nil, nil) when more input is needed. Pings are answered and pongs are
// dropped without surfacing. A protocol violation queues a close frame with
// the matching status, ends the session and is returned.
func (s *Session) Receive() (*Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	for {
		if s.state == StateCloseReceived || s.state == StateClosed {
			return nil, ErrClosed
		}
		f, n, err := Decode(s.in, s.cfg.Role, s.cfg.MaxFramePayload)
		if err != nil {
			return nil, s.fail(err)
		}
		if f == nil {
			return nil, nil
		}
		s.consume(n)
		m, err := s.handle(f)
		if err != nil {
			return nil, s.fail(err)
		}
		if m != nil {
			return m, nil
		}
	}
}

func (s *Session) handle(f *Frame) (*Message, error) {
	switch f.Opcode {
	case OpText, OpBinary:
		if s.inMsg {
			return nil, ErrInterleaved
		}
		if err := s.checkSize(len(f.Payload)); err != nil {
			return nil, err
		}
		if !f.Fin {
			s.inMsg, s.msgOp, s.msg = true, f.Opcode, f.Payload
			return nil, nil
		}
		return s.deliver(f.Opcode, f.Payload)
	case OpContinuation:
		if !s.inMsg {
			return nil, ErrContinuation
		}
		if err := s.checkSize(len(s.msg) + len(f.Payload)); err != nil {
			return nil, err
		}
		s.msg = append(s.msg, f.Payload...)
		if !f.Fin {
			return nil, nil
		}
		op, data := s.msgOp, s.msg
		s.inMsg, s.msg = false, nil
		return s.deliver(op, data)
	case OpPing:
		if s.state == StateOpen {
			s.writeFrame(OpPong, f.Payload, true)
		}
		return nil, nil
	case OpPong:
		return nil, nil
	case OpClose:
		code, reason, err := ParseClosePayload(f.Payload)
		if err != nil {
			return nil, err
		}
		s.peerCode, s.peerReason = code, reason
		if s.state == StateCloseSent {
			s.state = StateClosed
		} else {
			s.state = StateCloseReceived
		}
		return &Message{Opcode: OpClose, Code: code, Reason: reason}, nil
	default:
		return nil, ErrUnknownOpcode
	}
}

func (s *Session) deliver(op Opcode, data []byte) (*Message, error) {
	if op == OpText && !utf8.Valid(data) {
		return nil, ErrInvalidUTF8
	}
	return &Message{Opcode: op, Data: data}, nil
}

func (s *Session) checkSize(n int) error {
	if s.cfg.MaxMessageSize > 0 && int64(n) > s.cfg.MaxMessageSize {
		return ErrMessageTooLarge
	}
	return nil
}

// fail ends the session after a receive error, queueing a close frame with
// the status that describes it.
func (s *Session) fail(err error) error {
	s.err = err
	if s.state == StateOpen || s.state == StateCloseReceived {
		s.writeFrame(OpClose, ClosePayload(closeCodeFor(err), ""), true)
	}
	s.state = StateClosed
	s.in = nil
	return err
}

func closeCodeFor(err error) CloseCode {
	switch {
	case errors.Is(err, ErrInvalidUTF8):
		return CloseInvalidPayload
	case errdef.Is(err, errdef.CodeLimit):
		return CloseMessageTooBig
	default:
		return CloseProtocolError
	}
}

// Send queues a data message, split into frames of at most MaxFrameSize
// payload bytes.
func (s *Session) Send(op Opcode, data []byte) error {
	if op != OpText && op != OpBinary {
		return ErrUnknownOpcode
	}
	if err := s.writable(); err != nil {
		return err
	}
	size := s.cfg.MaxFrameSize
	if size <= 0 || len(data) <= size {
		s.writeFrame(op, data, true)
		return nil
	}
	for first := true; len(data) > 0; first = false {
		n := min(size, len(data))
		fop := OpContinuation
		if first {
			fop = op
		}
		s.writeFrame(fop, data[:n], n == len(data))
		data = data[n:]
	}
	return nil
}

func (s *Session) Ping(payload []byte) error {
	return s.control(OpPing, payload)
}

func (s *Session) Pong(payload []byte) error {
	return s.control(OpPong, payload)
}

func (s *Session) control(op Opcode, payload []byte) error {
	if len(payload) > MaxControlPayload {
		return ErrControlPayload
	}
	if err := s.writable(); err != nil {
		return err
	}
	s.writeFrame(op, payload, true)
	return nil
}

// Close sends a close frame. While open it starts the closing handshake;
// after the peer's close it sends the echo and finishes the session.
func (s *Session) Close(code CloseCode, reason string) error {
	switch s.state {
	case StateOpen:
		s.writeFrame(OpClose, ClosePayload(code, reason), true)
		s.state = StateCloseSent
	case StateCloseReceived:
		s.writeFrame(OpClose, ClosePayload(code, reason), true)
		s.state = StateClosed
	case StateCloseSent:
		return ErrCloseSent
	default:
		return ErrClosed
	}
	return nil
}

func (s *Session) writable() error {
	switch s.state {
	case StateOpen:
		return nil
	case StateCloseSent:
		return ErrCloseSent
	default:
		return ErrClosed
	}
}

func (s *Session) writeFrame(op Opcode, payload []byte, fin bool) {
	f := Frame{Fin: fin, Opcode: op, Payload: payload}
	if s.cfg.Role == RoleClient {
		f.Masked = true
		_, _ = rand.Read(f.Mask[:])
	}
	s.out = AppendFrame(s.out, &f)
}

func (s *Session) consume(n int) {
	s.in = s.in[n:]
	if len(s.in) == 0 {
		s.in = nil
	}
}
