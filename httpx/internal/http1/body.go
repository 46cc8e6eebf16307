package http1

import (
	"os"
	"strconv"
	"strings"
)

// BodyKind says how a message body is delimited on the wire. It is a closed
// set: Absent, Fixed, Chunked, CloseDelimited and FileBacked.
type BodyKind interface {
	bodyKind()
	String() string
}

// Absent is a message without a body (HEAD responses, 1xx, 204, 304, or a
// request without framing headers).
type Absent struct{}

// Fixed is a Content-Length delimited body.
type Fixed struct{ Length uint64 }

type Chunked struct{}

// CloseDelimited is a response body that runs until the connection closes.
type CloseDelimited struct{}

// FileBacked is an outbound body sent from File[Offset:Offset+Length] by the
// zero-copy transfer collaborator. Length must be known.
type FileBacked struct {
	File   *os.File
	Offset int64
	Length int64
}

func (Absent) bodyKind()         {}
func (Fixed) bodyKind()          {}
func (Chunked) bodyKind()        {}
func (CloseDelimited) bodyKind() {}
func (FileBacked) bodyKind()     {}

func (Absent) String() string         { return "absent" }
func (k Fixed) String() string        { return "fixed(" + strconv.FormatUint(k.Length, 10) + ")" }
func (Chunked) String() string        { return "chunked" }
func (CloseDelimited) String() string { return "close-delimited" }
func (k FileBacked) String() string {
	return "file(" + strconv.FormatInt(k.Offset, 10) + "+" + strconv.FormatInt(k.Length, 10) + ")"
}

// RequestBodyKind derives the framing of a request body from its head.
func RequestBodyKind(h *Head) (BodyKind, error) {
	te := h.Header.Values("Transfer-Encoding")
	cl := h.Header.Values("Content-Length")
	if len(te) > 0 {
		if len(cl) > 0 {
			return nil, ErrConflictingFraming
		}
		chunked, err := chunkedLast(te)
		if err != nil {
			return nil, err
		}
		if !chunked {
			return nil, ErrTransferCoding
		}
		return Chunked{}, nil
	}
	if len(cl) > 0 {
		n, err := parseContentLength(cl)
		if err != nil {
			return nil, err
		}
		return Fixed{Length: n}, nil
	}
	return Absent{}, nil
}

// ResponseBodyKind derives the framing of a response body from its head and
// the method of the request it answers.
func ResponseBodyKind(method Method, h *Head) (BodyKind, error) {
	switch {
	case method == MethodHead,
		h.Status >= 100 && h.Status < 200,
		h.Status == 204, h.Status == 304:
		return Absent{}, nil
	case method == MethodConnect && h.Status >= 200 && h.Status < 300:
		return Absent{}, nil
	}
	te := h.Header.Values("Transfer-Encoding")
	cl := h.Header.Values("Content-Length")
	if len(te) > 0 {
		if len(cl) > 0 {
			return nil, ErrConflictingFraming
		}
		chunked, err := chunkedLast(te)
		if err != nil {
			return nil, err
		}
		if chunked {
			return Chunked{}, nil
		}
		return CloseDelimited{}, nil
	}
	if len(cl) > 0 {
		n, err := parseContentLength(cl)
		if err != nil {
			return nil, err
		}
		return Fixed{Length: n}, nil
	}
	return CloseDelimited{}, nil
}

// chunkedLast reports whether chunked is the final transfer coding. Chunked
// anywhere but last is malformed.
func chunkedLast(values []string) (bool, error) {
	var codings []string
	for _, v := range values {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				codings = append(codings, strings.ToLower(c))
			}
		}
	}
	if len(codings) == 0 {
		return false, ErrTransferCoding
	}
	for i, c := range codings {
		if c == "chunked" && i != len(codings)-1 {
			return false, ErrTransferCoding
		}
	}
	return codings[len(codings)-1] == "chunked", nil
}

// parseContentLength accepts repeated fields or comma lists only when every
// element carries the same decimal value.
func parseContentLength(values []string) (uint64, error) {
	var n uint64
	seen := false
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				return 0, ErrContentLength
			}
			for i := 0; i < len(s); i++ {
				if !isDigit(s[i]) {
					return 0, ErrContentLength
				}
			}
			x, err := strconv.ParseUint(s, 10, 63)
			if err != nil {
				return 0, ErrContentLength
			}
			if seen && x != n {
				return 0, ErrContentLength
			}
			n, seen = x, true
		}
	}
	return n, nil
}

// ApplyFraming rewrites the framing fields of h to describe kind. Absent
// leaves the head untouched so a HEAD or 304 response can still advertise
// the representation's length.
func ApplyFraming(h *Head, kind BodyKind) error {
	switch k := kind.(type) {
	case Absent:
		return nil
	case Fixed:
		h.Header.Del("Transfer-Encoding")
		h.Header.Set("Content-Length", string(itoa(k.Length)))
	case Chunked:
		h.Header.Del("Content-Length")
		h.Header.Set("Transfer-Encoding", "chunked")
	case CloseDelimited:
		h.Header.Del("Content-Length")
		h.Header.Del("Transfer-Encoding")
	case FileBacked:
		if k.Length < 0 {
			return ErrFileLengthUnknown
		}
		h.Header.Del("Transfer-Encoding")
		h.Header.Set("Content-Length", strconv.FormatInt(k.Length, 10))
	default:
		panic("http1: unknown body kind")
	}
	return nil
}
