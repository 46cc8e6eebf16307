package http1

import "strings"

type Version uint8

const (
	VersionUnknown Version = iota
	Version10
	Version11
)

func (v Version) String() string {
	switch v {
	case Version10:
		return "HTTP/1.0"
	case Version11:
		return "HTTP/1.1"
	default:
		return "HTTP/?"
	}
}

// Method is a request method token. Comparison is case-sensitive.
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodConnect Method = "CONNECT"
	MethodOptions Method = "OPTIONS"
	MethodTrace   Method = "TRACE"
	MethodPatch   Method = "PATCH"
)

// Registered reports whether m is one of the methods defined above. Other
// tokens are accepted on the wire as extension methods.
func (m Method) Registered() bool {
	switch m {
	case MethodGet, MethodHead, MethodPost, MethodPut, MethodDelete,
		MethodConnect, MethodOptions, MethodTrace, MethodPatch:
		return true
	}
	return false
}

// Head is a parsed request-line or status-line plus its header block. A
// request head has Method and Target set; a response head has Status set.
// Parsed heads own their strings and never alias the input buffer.
type Head struct {
	Method  Method
	Target  string
	Status  int
	Reason  string
	Version Version
	Header  Header
}

func (h *Head) IsResponse() bool { return h.Status != 0 }

// KeepAlive reports the persistence the message asks for: Connection tokens
// win, otherwise HTTP/1.1 defaults to persistent and HTTP/1.0 to close.
func (h *Head) KeepAlive() bool {
	if h.Header.HasToken("Connection", "close") {
		return false
	}
	if h.Version == Version11 {
		return true
	}
	return h.Header.HasToken("Connection", "keep-alive")
}

func (h *Head) ExpectContinue() bool {
	return h.Version == Version11 && strings.EqualFold(strings.TrimSpace(h.Header.Get("Expect")), "100-continue")
}

// IsUpgrade reports whether the message asks to switch to protocol.
func (h *Head) IsUpgrade(protocol string) bool {
	return h.Header.HasToken("Connection", "upgrade") && h.Header.HasToken("Upgrade", protocol)
}

// Host returns the authority of a request: the one in an absolute-form or
// authority-form target when present, the Host header otherwise.
func (h *Head) Host() string {
	if a, ok := targetAuthority(h.Method, h.Target); ok {
		return a
	}
	return h.Header.Get("Host")
}

// ConflictingHost reports a Host header that disagrees with the authority
// carried by the request target.
func (h *Head) ConflictingHost() bool {
	a, ok := targetAuthority(h.Method, h.Target)
	if !ok || !h.Header.Has("Host") {
		return false
	}
	return !strings.EqualFold(a, h.Header.Get("Host"))
}

func targetAuthority(m Method, target string) (string, bool) {
	if m == MethodConnect {
		return target, target != ""
	}
	i := strings.Index(target, "://")
	if i <= 0 {
		return "", false
	}
	rest := target[i+3:]
	if j := strings.IndexAny(rest, "/?#"); j >= 0 {
		rest = rest[:j]
	}
	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		rest = rest[at+1:]
	}
	return rest, true
}

// EndToEnd returns the fields of h without the hop-by-hop ones.
func (h *Head) EndToEnd() Header { return h.Header.EndToEnd() }

func (h *Head) Clone() *Head {
	h2 := *h
	h2.Header = h.Header.Clone()
	return &h2
}
