package http1

import "bytes"

// State is the progress of a body through the framing state machine.
type State uint8

const (
	StateIdle State = iota
	StateInProgress
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInProgress:
		return "in-progress"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

type chunkPhase uint8

const (
	phaseSize chunkPhase = iota
	phaseData
	phaseDataCRLF
	phaseTrailer
)

// Decoder extracts body bytes for one inbound message. It never consumes a
// byte beyond the end of its body, so whatever follows belongs to the next
// message on the connection.
type Decoder struct {
	kind   BodyKind
	limits Limits
	state  State
	err    error

	remaining    uint64 // bytes left in a Fixed body or the current chunk
	total        uint64
	phase        chunkPhase
	trailers     Header
	trailerBytes int
}

// NewDecoder returns a decoder for kind. FileBacked bodies only exist on the
// output path and are refused.
func NewDecoder(kind BodyKind, limits Limits) (*Decoder, error) {
	d := &Decoder{kind: kind, limits: limits}
	switch k := kind.(type) {
	case Absent:
		d.state = StateComplete
	case Fixed:
		if limits.MaxBodySize > 0 && k.Length > uint64(limits.MaxBodySize) {
			return nil, ErrBodyTooLarge
		}
		d.remaining = k.Length
		if k.Length == 0 {
			d.state = StateComplete
		}
	case Chunked, CloseDelimited:
	case FileBacked:
		return nil, ErrFileBackedInbound
	default:
		panic("http1: unknown body kind")
	}
	return d, nil
}

func (d *Decoder) Kind() BodyKind { return d.kind }

func (d *Decoder) State() State { return d.state }

func (d *Decoder) Done() bool { return d.state == StateComplete }

// Trailers returns the trailer fields of a completed chunked body.
func (d *Decoder) Trailers() Header { return d.trailers }

// Decode consumes the front of src. It returns body bytes found there (a view
// into src, valid until src is modified) and how many bytes of src were
// used. Callers repeat until n is 0 or the body is done; (nil, 0, nil) means
// more input is needed.
func (d *Decoder) Decode(src []byte) (data []byte, n int, err error) {
	if d.err != nil {
		return nil, 0, d.err
	}
	if d.state == StateComplete {
		return nil, 0, nil
	}
	if len(src) == 0 {
		return nil, 0, nil
	}
	d.state = StateInProgress

	switch d.kind.(type) {
	case Fixed:
		n := len(src)
		if uint64(n) > d.remaining {
			n = int(d.remaining)
		}
		d.remaining -= uint64(n)
		if d.remaining == 0 {
			d.state = StateComplete
		}
		return src[:n], n, nil
	case CloseDelimited:
		if err := d.count(len(src)); err != nil {
			return nil, 0, err
		}
		return src, len(src), nil
	case Chunked:
		data, n, err = d.decodeChunked(src)
		if err != nil {
			d.err = err
		}
		return data, n, err
	default:
		panic("http1: unknown body kind")
	}
}

// EOF tells the decoder the stream ended. Only a close-delimited body may end
// this way; any other unfinished body fails with ErrUnexpectedEOF and is
// never reported complete.
func (d *Decoder) EOF() error {
	if d.state == StateComplete {
		return nil
	}
	if _, ok := d.kind.(CloseDelimited); ok && d.err == nil {
		d.state = StateComplete
		return nil
	}
	if d.err == nil {
		d.err = ErrUnexpectedEOF
	}
	return d.err
}

func (d *Decoder) count(n int) error {
	d.total += uint64(n)
	if d.limits.MaxBodySize > 0 && d.total > uint64(d.limits.MaxBodySize) {
		d.err = ErrBodyTooLarge
		return d.err
	}
	return nil
}

func (d *Decoder) decodeChunked(src []byte) ([]byte, int, error) {
	used := 0
	for {
		rest := src[used:]
		switch d.phase {
		case phaseSize:
			i := bytes.Index(rest, []byte("\r\n"))
			if i < 0 {
				if len(rest) > d.limits.chunkLine() {
					return nil, used, ErrChunkFraming
				}
				return nil, used, nil
			}
			if i > d.limits.chunkLine() {
				return nil, used, ErrChunkFraming
			}
			size, err := parseChunkSize(rest[:i])
			if err != nil {
				return nil, used, err
			}
			used += i + 2
			if size == 0 {
				d.phase = phaseTrailer
				continue
			}
			if d.limits.MaxBodySize > 0 && d.total+size > uint64(d.limits.MaxBodySize) {
				return nil, used, ErrBodyTooLarge
			}
			d.remaining = size
			d.phase = phaseData
		case phaseData:
			if len(rest) == 0 {
				return nil, used, nil
			}
			n := len(rest)
			if uint64(n) > d.remaining {
				n = int(d.remaining)
			}
			d.remaining -= uint64(n)
			d.total += uint64(n)
			if d.remaining == 0 {
				d.phase = phaseDataCRLF
			}
			return rest[:n], used + n, nil
		case phaseDataCRLF:
			if len(rest) == 0 {
				return nil, used, nil
			}
			if rest[0] != '\r' || (len(rest) > 1 && rest[1] != '\n') {
				return nil, used, ErrChunkFraming
			}
			if len(rest) < 2 {
				return nil, used, nil
			}
			used += 2
			d.phase = phaseSize
		case phaseTrailer:
			i := bytes.Index(rest, []byte("\r\n"))
			if i < 0 {
				if d.trailerBytes+len(rest) > d.limits.headSize() {
					return nil, used, ErrHeadTooLarge
				}
				return nil, used, nil
			}
			used += i + 2
			if i == 0 {
				d.state = StateComplete
				return nil, used, nil
			}
			d.trailerBytes += i + 2
			if d.trailerBytes > d.limits.headSize() {
				return nil, used, ErrHeadTooLarge
			}
			f, err := parseField(rest[:i])
			if err != nil {
				return nil, used, err
			}
			if len(d.trailers) >= d.limits.headerCount() {
				return nil, used, ErrTooManyHeaders
			}
			d.trailers = append(d.trailers, f)
		}
	}
}
