package httpx

import (
	"io"
	"strings"
	"testing"

	"dqx0.com/go/h1ws/httpx/internal/http1"
)

func TestRequestHeadFraming(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   io.Reader
		want   http1.BodyKind
	}{
		{"get without body", "GET", nil, http1.Absent{}},
		{"post without body", "POST", nil, http1.Fixed{}},
		{"known length", "PUT", strings.NewReader("abc"), http1.Fixed{Length: 3}},
		{"unknown length", "POST", io.MultiReader(strings.NewReader("abc")), http1.Chunked{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRequest(tt.method, "http://example.com:8080/a?b=c", tt.body)
			if err != nil {
				t.Fatalf("new request: %v", err)
			}
			h, kind, err := r.head()
			if err != nil {
				t.Fatalf("head: %v", err)
			}
			if kind != tt.want {
				t.Fatalf("kind=%#v want %#v", kind, tt.want)
			}
			if h.Target != "/a?b=c" {
				t.Fatalf("target=%q", h.Target)
			}
			if h.Header[0].Name != "Host" || h.Header[0].Value != "example.com:8080" {
				t.Fatalf("first field=%+v", h.Header[0])
			}
		})
	}
}

func TestRequestHeadErrors(t *testing.T) {
	if _, _, err := (&Request{Method: "GET"}).head(); err != ErrURLScheme {
		t.Fatalf("missing URL: %v", err)
	}
	r, _ := NewRequest("POST", "http://example.com/", nil)
	r.ContentLength = 10
	if _, _, err := r.head(); err != ErrContentLength {
		t.Fatalf("length without body: %v", err)
	}
}

func TestParseTraceparent(t *testing.T) {
	valid := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	tr, ok := ParseTraceparent(valid)
	if !ok || tr.String() != valid {
		t.Fatalf("round trip: %v %q", ok, tr.String())
	}
	for _, v := range []string{
		"",
		"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7",
		"00-00000000000000000000000000000000-00f067aa0ba902b7-01",
		"00-4bf92f3577b34da6a3ce929d0e0e4736-0000000000000000-01",
		"00-4BF92F3577B34DA6A3CE929D0E0E4736-00f067aa0ba902b7-01",
		"ff-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	} {
		if _, ok := ParseTraceparent(v); ok {
			t.Errorf("accepted %q", v)
		}
	}
	fresh := NewTrace()
	if _, ok := ParseTraceparent(fresh.String()); !ok {
		t.Fatalf("fresh trace does not parse: %q", fresh.String())
	}
	if child := fresh.Child(); child.TraceID != fresh.TraceID || child.SpanID == fresh.SpanID {
		t.Fatalf("child=%+v parent=%+v", child, fresh)
	}
}

func TestSelectSubprotocol(t *testing.T) {
	if got := selectSubprotocol([]string{"a", "b"}, []string{"b", "a"}); got != "a" {
		t.Fatalf("got %q", got)
	}
	if got := selectSubprotocol([]string{"a"}, []string{"c"}); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestStatusHelpers(t *testing.T) {
	if got := itoaStatus(404); got != "404" {
		t.Fatalf("itoaStatus=%q", got)
	}
	if got := statusLine(418, ""); got != "418 "+http1.StatusText(418) {
		t.Fatalf("statusLine=%q", got)
	}
	if got := statusLine(200, "Fine"); got != "200 Fine" {
		t.Fatalf("statusLine=%q", got)
	}
}
