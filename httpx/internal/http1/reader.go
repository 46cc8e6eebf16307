package http1

import (
	"bytes"
	"strconv"

	"golang.org/x/net/http/httpguts"
)

// Limits bound what the parser and body decoder will buffer.
type Limits struct {
	MaxHeadSize    int
	MaxHeaderCount int
	MaxChunkLine   int   // 0 means MaxHeadSize
	MaxBodySize    int64 // 0 means unlimited
}

func DefaultLimits() Limits {
	return Limits{MaxHeadSize: 8 << 10, MaxHeaderCount: 100, MaxChunkLine: 4 << 10}
}

func (l Limits) chunkLine() int {
	if l.MaxChunkLine > 0 {
		return l.MaxChunkLine
	}
	return l.headSize()
}

func (l Limits) headSize() int {
	if l.MaxHeadSize > 0 {
		return l.MaxHeadSize
	}
	return DefaultLimits().MaxHeadSize
}

func (l Limits) headerCount() int {
	if l.MaxHeaderCount > 0 {
		return l.MaxHeaderCount
	}
	return DefaultLimits().MaxHeaderCount
}

var crlfcrlf = []byte("\r\n\r\n")

// Parser incrementally parses message heads from the front of a connection's
// input. A call either completes a head, reports that more input is needed,
// or fails. The parser remembers how far it has scanned so growing input is
// not searched again from the start; the result never depends on how the
// input was split.
type Parser struct {
	Limits Limits

	scanned int
}

// ParseRequest parses a request head from buf. It returns the head and the
// number of bytes it occupies, or (nil, 0, nil) when buf does not yet hold a
// complete head. Empty lines before the request-line are skipped.
func (p *Parser) ParseRequest(buf []byte) (*Head, int, error) {
	start, end, err := p.frame(buf)
	if err != nil || end < 0 {
		return nil, 0, err
	}
	h, err := parseRequestHead(buf[start:end-2], p.Limits)
	if err != nil {
		return nil, 0, err
	}
	return h, end, nil
}

// ParseResponse is ParseRequest for status-lines.
func (p *Parser) ParseResponse(buf []byte) (*Head, int, error) {
	start, end, err := p.frame(buf)
	if err != nil || end < 0 {
		return nil, 0, err
	}
	h, err := parseResponseHead(buf[start:end-2], p.Limits)
	if err != nil {
		return nil, 0, err
	}
	return h, end, nil
}

// Reset forgets the scan position. The driver calls it whenever the bytes
// the parser saw are consumed or discarded.
func (p *Parser) Reset() { p.scanned = 0 }

// Scanned reports how many bytes of a pending head have been seen.
func (p *Parser) Scanned() int { return p.scanned }

// frame locates the head: start skips leading CRLFs, end is just past the
// blank line, or -1 when it has not arrived yet. Skipped CRLFs count
// against the head size.
func (p *Parser) frame(buf []byte) (start, end int, err error) {
	for start+1 < len(buf) && buf[start] == '\r' && buf[start+1] == '\n' {
		start += 2
	}
	from := p.scanned - 3
	if from < start {
		from = start
	}
	limit := p.Limits.headSize()
	i := bytes.Index(buf[from:], crlfcrlf)
	if i < 0 {
		p.scanned = len(buf)
		if len(buf) > limit {
			return 0, -1, ErrHeadTooLarge
		}
		return start, -1, nil
	}
	end = from + i + 4
	if end > limit {
		return 0, -1, ErrHeadTooLarge
	}
	p.scanned = 0
	return start, end, nil
}

// parseRequestHead parses block, which holds the request-line and fields,
// each terminated by CRLF, without the final blank line.
func parseRequestHead(block []byte, lim Limits) (*Head, error) {
	line, rest := cutLine(block)
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return nil, ErrRequestLine
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 <= 0 {
		return nil, ErrRequestLine
	}
	sp2 += sp1 + 1
	method, target, proto := line[:sp1], line[sp1+1:sp2], line[sp2+1:]

	if !httpguts.ValidHeaderFieldName(string(method)) {
		return nil, ErrMethod
	}
	if !validTarget(target) {
		return nil, ErrTarget
	}
	v, err := parseVersion(proto, ErrRequestLine)
	if err != nil {
		return nil, err
	}
	h := &Head{Method: Method(method), Target: string(target), Version: v}
	if h.Header, err = parseFields(rest, lim, nil); err != nil {
		return nil, err
	}
	if len(h.Header.Values("Host")) > 1 {
		return nil, ErrDuplicateHost
	}
	return h, nil
}

func parseResponseHead(block []byte, lim Limits) (*Head, error) {
	line, rest := cutLine(block)
	sp := bytes.IndexByte(line, ' ')
	if sp <= 0 {
		return nil, ErrStatusLine
	}
	v, err := parseVersion(line[:sp], ErrStatusLine)
	if err != nil {
		return nil, err
	}
	tail := line[sp+1:]
	if len(tail) < 3 || (len(tail) > 3 && tail[3] != ' ') {
		return nil, ErrStatusLine
	}
	code := 0
	for _, c := range tail[:3] {
		if c < '0' || c > '9' {
			return nil, ErrStatusLine
		}
		code = code*10 + int(c-'0')
	}
	if code < 100 {
		return nil, ErrStatusLine
	}
	var reason []byte
	if len(tail) > 3 {
		reason = tail[4:]
	}
	for _, c := range reason {
		if (c < 0x20 && c != '\t') || c == 0x7f {
			return nil, ErrStatusLine
		}
	}
	h := &Head{Status: code, Reason: string(reason), Version: v}
	if h.Header, err = parseFields(rest, lim, nil); err != nil {
		return nil, err
	}
	return h, nil
}

func parseVersion(b []byte, malformed error) (Version, error) {
	switch string(b) {
	case "HTTP/1.1":
		return Version11, nil
	case "HTTP/1.0":
		return Version10, nil
	}
	if len(b) == 8 && string(b[:5]) == "HTTP/" && isDigit(b[5]) && b[6] == '.' && isDigit(b[7]) {
		return VersionUnknown, ErrVersion
	}
	return VersionUnknown, malformed
}

// parseFields appends the "name: value" lines of block to dst.
func parseFields(block []byte, lim Limits, dst Header) (Header, error) {
	for len(block) > 0 {
		var line []byte
		line, block = cutLine(block)
		f, err := parseField(line)
		if err != nil {
			return nil, err
		}
		if len(dst) >= lim.headerCount() {
			return nil, ErrTooManyHeaders
		}
		dst = append(dst, f)
	}
	return dst, nil
}

func parseField(line []byte) (Field, error) {
	if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
		return Field{}, ErrObsFold
	}
	i := bytes.IndexByte(line, ':')
	if i <= 0 {
		return Field{}, ErrHeaderName
	}
	name := string(line[:i])
	if !httpguts.ValidHeaderFieldName(name) {
		return Field{}, ErrHeaderName
	}
	value := string(trimOWS(line[i+1:]))
	if !httpguts.ValidHeaderFieldValue(value) {
		return Field{}, ErrHeaderValue
	}
	return Field{Name: name, Value: value}, nil
}

// cutLine splits b at the first CRLF. Stray CR or LF bytes stay in the line
// and are rejected by the field validators.
func cutLine(b []byte) (line, rest []byte) {
	i := bytes.Index(b, []byte("\r\n"))
	if i < 0 {
		return b, nil
	}
	return b[:i], b[i+2:]
}

func trimOWS(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}

func validTarget(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c <= ' ' || c == 0x7f {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func itoa(n uint64) []byte { return strconv.AppendUint(nil, n, 10) }
