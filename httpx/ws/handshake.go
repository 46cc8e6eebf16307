package ws

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"slices"
	"strings"

	"dqx0.com/go/h1ws/httpx/internal/http1"
)

const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey computes the Sec-WebSocket-Accept value for a client key.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Handshake is a validated opening handshake. Protocols and Extensions are
// the client's offers, verbatim and in order.
type Handshake struct {
	Key        string
	Target     string
	Host       string
	Origin     string
	Protocols  []string
	Extensions []string
}

// Negotiate checks whether h is a WebSocket opening handshake. It returns
// (nil, nil) for requests that do not ask for websocket at all, and a
// *HandshakeError when they ask but get something wrong.
func Negotiate(h *http1.Head) (*Handshake, error) {
	if !h.Header.HasToken("Upgrade", "websocket") {
		return nil, nil
	}
	reject := func(status int, err error) (*Handshake, error) {
		return nil, &HandshakeError{Status: status, Err: err}
	}
	if h.Method != http1.MethodGet {
		return reject(405, ErrMethod)
	}
	if h.Version != http1.Version11 {
		return reject(400, ErrVersion)
	}
	if !h.Header.HasToken("Connection", "upgrade") {
		return reject(400, ErrConnection)
	}
	keys := h.Header.Values("Sec-WebSocket-Key")
	if len(keys) != 1 {
		return reject(400, ErrKey)
	}
	key := strings.TrimSpace(keys[0])
	if raw, err := base64.StdEncoding.DecodeString(key); err != nil || len(raw) != 16 {
		return reject(400, ErrKey)
	}
	if v := h.Header.Values("Sec-WebSocket-Version"); len(v) != 1 || strings.TrimSpace(v[0]) != "13" {
		return reject(426, ErrWSVersion)
	}
	kind, err := http1.RequestBodyKind(h)
	if err != nil {
		return reject(400, err)
	}
	switch k := kind.(type) {
	case http1.Absent:
	case http1.Fixed:
		if k.Length != 0 {
			return reject(400, ErrRequestBody)
		}
	default:
		return reject(400, ErrRequestBody)
	}
	return &Handshake{
		Key:        key,
		Target:     h.Target,
		Host:       h.Host(),
		Origin:     h.Header.Get("Origin"),
		Protocols:  splitList(h.Header.Values("Sec-WebSocket-Protocol")),
		Extensions: splitList(h.Header.Values("Sec-WebSocket-Extensions")),
	}, nil
}

// ResponseHead builds the 101 response. subprotocol must be empty or one of
// the client's offers; extensions are sent as given.
func (hs *Handshake) ResponseHead(subprotocol string, extensions []string) (*http1.Head, error) {
	if subprotocol != "" && !slices.Contains(hs.Protocols, subprotocol) {
		return nil, ErrUnofferedProtocol
	}
	h := &http1.Head{Status: 101, Version: http1.Version11}
	h.Header.Add("Upgrade", "websocket")
	h.Header.Add("Connection", "Upgrade")
	h.Header.Add("Sec-WebSocket-Accept", AcceptKey(hs.Key))
	if subprotocol != "" {
		h.Header.Add("Sec-WebSocket-Protocol", subprotocol)
	}
	if len(extensions) > 0 {
		h.Header.Add("Sec-WebSocket-Extensions", strings.Join(extensions, ", "))
	}
	return h, nil
}

// RejectHead builds the error response for a failed handshake.
func (e *HandshakeError) RejectHead() *http1.Head {
	h := &http1.Head{Status: e.Status, Version: http1.Version11}
	switch e.Status {
	case 405:
		h.Header.Add("Allow", "GET")
	case 426:
		h.Header.Add("Sec-WebSocket-Version", "13")
		h.Header.Add("Upgrade", "websocket")
	}
	return h
}

// NewClientKey returns a random Sec-WebSocket-Key.
func NewClientKey() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b[:]), nil
}

// ClientRequestHead builds an opening handshake request.
func ClientRequestHead(target, host, key string, protocols []string) *http1.Head {
	h := &http1.Head{Method: http1.MethodGet, Target: target, Version: http1.Version11}
	h.Header.Add("Host", host)
	h.Header.Add("Upgrade", "websocket")
	h.Header.Add("Connection", "Upgrade")
	h.Header.Add("Sec-WebSocket-Key", key)
	h.Header.Add("Sec-WebSocket-Version", "13")
	if len(protocols) > 0 {
		h.Header.Add("Sec-WebSocket-Protocol", strings.Join(protocols, ", "))
	}
	return h
}

// VerifyResponse checks the server's answer to a handshake sent with key and
// returns the selected subprotocol.
func VerifyResponse(h *http1.Head, key string, offered []string) (string, error) {
	if h.Status != 101 {
		return "", &HandshakeError{Status: h.Status, Err: ErrStatus}
	}
	if !h.Header.HasToken("Upgrade", "websocket") || !h.Header.HasToken("Connection", "upgrade") {
		return "", ErrUpgrade
	}
	if strings.TrimSpace(h.Header.Get("Sec-WebSocket-Accept")) != AcceptKey(key) {
		return "", ErrAccept
	}
	proto := strings.TrimSpace(h.Header.Get("Sec-WebSocket-Protocol"))
	if proto != "" && !slices.Contains(offered, proto) {
		return "", ErrBadProtocol
	}
	return proto, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
