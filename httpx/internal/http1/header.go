package http1

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Field is one header line. Name and Value hold the bytes seen on the wire,
// minus the optional whitespace around the value.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered list of fields. Duplicates are kept in arrival order;
// lookups compare names case-insensitively.
type Header []Field

func (h Header) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

func (h Header) Values(name string) []string {
	var vv []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			vv = append(vv, f.Value)
		}
	}
	return vv
}

func (h Header) Has(name string) bool {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// HasToken reports whether any comma-separated element of the named field
// equals token, ignoring case.
func (h Header) HasToken(name, token string) bool {
	return httpguts.HeaderValuesContainsToken(h.Values(name), token)
}

func (h *Header) Add(name, value string) {
	*h = append(*h, Field{Name: name, Value: value})
}

// Set replaces the first field named name and removes the others, or appends
// a new field when none exists.
func (h *Header) Set(name, value string) {
	out := (*h)[:0]
	set := false
	for _, f := range *h {
		if strings.EqualFold(f.Name, name) {
			if set {
				continue
			}
			f.Value = value
			set = true
		}
		out = append(out, f)
	}
	if !set {
		out = append(out, Field{Name: name, Value: value})
	}
	*h = out
}

func (h *Header) Del(name string) {
	out := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	*h = out
}

func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	return append(Header(nil), h...)
}

// AppendTo writes the fields as "Name: Value\r\n" lines in order. Names that
// are not tokens are skipped and control characters are dropped from values,
// so application input cannot inject extra lines.
func (h Header) AppendTo(dst []byte) []byte {
	for _, f := range h {
		name := SanitizeHeaderKey(f.Name)
		if name == "" {
			continue
		}
		dst = append(dst, name...)
		dst = append(dst, ':', ' ')
		dst = append(dst, SanitizeHeaderValue(f.Value)...)
		dst = append(dst, '\r', '\n')
	}
	return dst
}

var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Transfer-Encoding",
	"Content-Length",
	"Upgrade",
	"Host",
	"TE",
	"Trailer",
}

// EndToEnd returns the fields that are not hop-by-hop: it drops the framing
// and connection-management fields, Host, and every field the Connection
// header nominates.
func (h Header) EndToEnd() Header {
	nominated := h.Values("Connection")
	var out Header
	for _, f := range h {
		if isHopByHop(f.Name) || httpguts.HeaderValuesContainsToken(nominated, f.Name) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isHopByHop(name string) bool {
	for _, n := range hopByHop {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
