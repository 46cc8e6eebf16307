package errdef

import (
	"errors"
	"io"
	"testing"
)

func TestWrapNil(t *testing.T) {
	if err := Wrap(CodeEOF, nil, "reading body"); err != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", err)
	}
}

func TestCodeOfAndIs(t *testing.T) {
	base := New(CodeLimit, "head too large")
	wrapped := Wrap(CodeMalformed, base, "parse request")

	if got := CodeOf(wrapped); got != CodeMalformed {
		t.Fatalf("CodeOf = %q, want %q", got, CodeMalformed)
	}
	if !Is(wrapped, CodeLimit) {
		t.Fatal("inner code not found through chain")
	}
	if Is(wrapped, CodeTimeout) {
		t.Fatal("unexpected timeout code")
	}
	if !errors.Is(wrapped, base) {
		t.Fatal("errors.Is lost the sentinel")
	}
	if CodeOf(io.EOF) != CodeUnknown {
		t.Fatal("plain errors must report CodeUnknown")
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"message only", New(CodeProtocol, "ws: bad opcode %d", 3), "ws: bad opcode 3"},
		{"wrapped with message", Wrap(CodeEOF, io.ErrUnexpectedEOF, "body"), "body: unexpected EOF"},
		{"wrapped without message", Wrap(CodeEOF, io.ErrUnexpectedEOF, ""), "eof: unexpected EOF"},
		{"empty code", New("", ""), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}
