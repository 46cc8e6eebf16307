package ws

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"dqx0.com/go/h1ws/internal/errdef"
)

func TestDecodeUnmaskedClientFrameAtServer(t *testing.T) {
	wire := AppendFrame(nil, &Frame{Fin: true, Opcode: OpText, Payload: []byte("hi")})
	f, n, err := Decode(wire, RoleServer, 0)
	if !errors.Is(err, ErrUnmaskedFrame) || !errdef.Is(err, errdef.CodeProtocol) {
		t.Fatalf("err=%v", err)
	}
	if f != nil || n != 0 {
		t.Fatalf("frame=%v n=%d", f, n)
	}
}

func TestDecodeMaskedFrameAtClient(t *testing.T) {
	wire := AppendFrame(nil, &Frame{Fin: true, Opcode: OpBinary, Masked: true, Mask: [4]byte{1, 2, 3, 4}, Payload: []byte("x")})
	if _, _, err := Decode(wire, RoleClient, 0); !errors.Is(err, ErrMaskedFrame) {
		t.Fatalf("err=%v", err)
	}
}

func TestFrameRoundTripLengths(t *testing.T) {
	for _, size := range []int{0, 1, 125, 126, 127, 0xffff, 0x10000, 70000} {
		payload := bytes.Repeat([]byte{'a'}, size)
		in := &Frame{Fin: true, Opcode: OpBinary, Masked: true, Mask: [4]byte{0xde, 0xad, 0xbe, 0xef}, Payload: payload}
		wire := AppendFrame(nil, in)

		wantHdr := 2 + 4
		switch {
		case size > 0xffff:
			wantHdr += 8
		case size > 125:
			wantHdr += 2
		}
		if len(wire) != wantHdr+size {
			t.Fatalf("size %d: wire len=%d want %d", size, len(wire), wantHdr+size)
		}
		if !bytes.Equal(in.Payload, payload) || (size > 0 && in.Payload[0] != 'a') {
			t.Fatalf("size %d: encoder modified the caller's payload", size)
		}

		for cut := 0; cut < len(wire) && cut < 20; cut++ {
			if f, n, err := Decode(wire[:cut], RoleServer, 0); f != nil || n != 0 || err != nil {
				t.Fatalf("size %d cut %d: (%v, %d, %v)", size, cut, f, n, err)
			}
		}
		out, n, err := Decode(append(wire, 0x81), RoleServer, 0)
		if err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
		if n != len(wire) || !out.Fin || out.Opcode != OpBinary || out.Mask != in.Mask || !bytes.Equal(out.Payload, payload) {
			t.Fatalf("size %d: n=%d frame=%+v", size, n, out.Opcode)
		}
	}
}

func TestDecodeHeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		wire []byte
		want error
	}{
		{"rsv1", []byte{0xc1, 0x80}, ErrReservedBits},
		{"rsv3", []byte{0x91, 0x80}, ErrReservedBits},
		{"opcode 3", []byte{0x83, 0x80}, ErrUnknownOpcode},
		{"opcode 11", []byte{0x8b, 0x80}, ErrUnknownOpcode},
		{"fragmented ping", []byte{0x09, 0x80}, ErrFragmentedControl},
		{"long close", []byte{0x88, 0x80 | 126}, ErrControlTooLarge},
		{"length msb", []byte{0x82, 0x80 | 127, 0x80, 0, 0, 0, 0, 0, 0, 0}, ErrLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.wire, RoleServer, 0)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err=%v want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeMaxPayload(t *testing.T) {
	wire := AppendFrame(nil, &Frame{Fin: true, Opcode: OpBinary, Payload: make([]byte, 300)})
	_, _, err := Decode(wire[:4], RoleClient, 256)
	if !errors.Is(err, ErrFrameTooLarge) || !errdef.Is(err, errdef.CodeLimit) {
		t.Fatalf("err=%v", err)
	}
}

func TestMaskIsSelfInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 500; iter++ {
		p := make([]byte, rng.Intn(100))
		for i := range p {
			p[i] = byte(rng.Uint32())
		}
		var key [4]byte
		for i := range key {
			key[i] = byte(rng.Uint32())
		}
		orig := append([]byte(nil), p...)

		// Masking in two pieces must match masking in one.
		split := 0
		if len(p) > 0 {
			split = rng.Intn(len(p))
		}
		pos := MaskBytes(key, 0, p[:split])
		MaskBytes(key, pos, p[split:])
		whole := append([]byte(nil), orig...)
		MaskBytes(key, 0, whole)
		if !bytes.Equal(p, whole) {
			t.Fatalf("iter %d: split masking differs", iter)
		}
		MaskBytes(key, 0, p)
		if !bytes.Equal(p, orig) {
			t.Fatalf("iter %d: unmask(mask(p)) != p", iter)
		}
	}
}

func TestClosePayload(t *testing.T) {
	p := ClosePayload(CloseGoingAway, "bye")
	code, reason, err := ParseClosePayload(p)
	if err != nil || code != CloseGoingAway || reason != "bye" {
		t.Fatalf("code=%d reason=%q err=%v", code, reason, err)
	}
	if code, _, err := ParseClosePayload(nil); err != nil || code != CloseNoStatus {
		t.Fatalf("empty: code=%d err=%v", code, err)
	}
	if _, _, err := ParseClosePayload([]byte{0x03}); !errors.Is(err, ErrClosePayload) {
		t.Fatalf("one byte: %v", err)
	}
	if _, _, err := ParseClosePayload(ClosePayload(CloseAbnormal, "")); !errors.Is(err, ErrClosePayload) {
		t.Fatalf("1006 on the wire: %v", err)
	}
	if _, _, err := ParseClosePayload([]byte{0x03, 0xe8, 0xff}); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("bad reason: %v", err)
	}
	long := ClosePayload(CloseNormal, string(bytes.Repeat([]byte("é"), 100)))
	if len(long) > MaxControlPayload {
		t.Fatalf("close payload %d bytes", len(long))
	}
	if _, _, err := ParseClosePayload(long); err != nil {
		t.Fatalf("truncated reason: %v", err)
	}
}
