package http1

// Encoder turns outbound body bytes into wire bytes for one message.
type Encoder struct {
	kind      BodyKind
	state     State
	remaining uint64
}

// NewEncoder returns an encoder for kind. A FileBacked kind must carry a
// known length; its bytes are never passed through the encoder.
func NewEncoder(kind BodyKind) (*Encoder, error) {
	e := &Encoder{kind: kind}
	switch k := kind.(type) {
	case Absent, Chunked, CloseDelimited:
	case Fixed:
		e.remaining = k.Length
	case FileBacked:
		if k.Length < 0 {
			return nil, ErrFileLengthUnknown
		}
	default:
		panic("http1: unknown body kind")
	}
	return e, nil
}

func (e *Encoder) Kind() BodyKind { return e.kind }

func (e *Encoder) State() State { return e.state }

// Write appends the wire form of p to dst. Bytes written for an Absent body
// are dropped, which lets a handler answer HEAD exactly like GET.
func (e *Encoder) Write(dst, p []byte) ([]byte, error) {
	if e.state == StateComplete {
		return dst, ErrBodyDone
	}
	e.state = StateInProgress
	switch e.kind.(type) {
	case Absent:
		return dst, nil
	case Fixed:
		if uint64(len(p)) > e.remaining {
			return dst, ErrBodyLength
		}
		e.remaining -= uint64(len(p))
		return append(dst, p...), nil
	case Chunked:
		return AppendChunk(dst, p), nil
	case CloseDelimited:
		return append(dst, p...), nil
	case FileBacked:
		if len(p) == 0 {
			return dst, nil
		}
		return dst, ErrFileBackedBytes
	default:
		panic("http1: unknown body kind")
	}
}

// Close finishes the body. Trailers are only sent with chunked bodies and
// are dropped otherwise.
func (e *Encoder) Close(dst []byte, trailers Header) ([]byte, error) {
	if e.state == StateComplete {
		return dst, ErrBodyDone
	}
	switch e.kind.(type) {
	case Fixed:
		if e.remaining != 0 {
			return dst, ErrBodyLength
		}
	case Chunked:
		dst = AppendLastChunk(dst, trailers)
	case Absent, CloseDelimited, FileBacked:
	default:
		panic("http1: unknown body kind")
	}
	e.state = StateComplete
	return dst, nil
}
