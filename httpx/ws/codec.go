package ws

import "encoding/binary"

// MaxHeaderSize is the longest frame header: two fixed bytes, an 8-byte
// extended length and a 4-byte mask.
const MaxHeaderSize = 14

// Decode parses one frame from the front of buf. It returns (nil, 0, nil)
// until the whole frame is buffered. Header violations are reported as soon
// as the header bytes arrive. maxPayload <= 0 disables the size limit.
func Decode(buf []byte, role Role, maxPayload int64) (*Frame, int, error) {
	if len(buf) < 2 {
		return nil, 0, nil
	}
	b0, b1 := buf[0], buf[1]
	f := &Frame{
		Fin:    b0&0x80 != 0,
		RSV1:   b0&0x40 != 0,
		RSV2:   b0&0x20 != 0,
		RSV3:   b0&0x10 != 0,
		Opcode: Opcode(b0 & 0x0f),
		Masked: b1&0x80 != 0,
	}
	if f.RSV1 || f.RSV2 || f.RSV3 {
		return nil, 0, ErrReservedBits
	}
	if !f.Opcode.known() {
		return nil, 0, ErrUnknownOpcode
	}
	length := uint64(b1 & 0x7f)
	if f.Opcode.IsControl() {
		if !f.Fin {
			return nil, 0, ErrFragmentedControl
		}
		if length > MaxControlPayload {
			return nil, 0, ErrControlTooLarge
		}
	}
	switch role {
	case RoleServer:
		if !f.Masked {
			return nil, 0, ErrUnmaskedFrame
		}
	case RoleClient:
		if f.Masked {
			return nil, 0, ErrMaskedFrame
		}
	}

	hdr := 2
	switch length {
	case 126:
		if len(buf) < 4 {
			return nil, 0, nil
		}
		length = uint64(binary.BigEndian.Uint16(buf[2:]))
		hdr = 4
	case 127:
		if len(buf) < 10 {
			return nil, 0, nil
		}
		length = binary.BigEndian.Uint64(buf[2:])
		if length>>63 != 0 {
			return nil, 0, ErrLength
		}
		hdr = 10
	}
	if maxPayload > 0 && length > uint64(maxPayload) {
		return nil, 0, ErrFrameTooLarge
	}
	if f.Masked {
		if len(buf) < hdr+4 {
			return nil, 0, nil
		}
		copy(f.Mask[:], buf[hdr:hdr+4])
		hdr += 4
	}
	if uint64(len(buf)-hdr) < length {
		return nil, 0, nil
	}
	end := hdr + int(length)
	f.Payload = append([]byte(nil), buf[hdr:end]...)
	if f.Masked {
		MaskBytes(f.Mask, 0, f.Payload)
	}
	return f, end, nil
}

// AppendFrame encodes f onto dst using the shortest length form. When
// f.Masked is set the payload is masked with f.Mask in the output; f.Payload
// itself is left untouched.
func AppendFrame(dst []byte, f *Frame) []byte {
	b0 := byte(f.Opcode) & 0x0f
	if f.Fin {
		b0 |= 0x80
	}
	if f.RSV1 {
		b0 |= 0x40
	}
	if f.RSV2 {
		b0 |= 0x20
	}
	if f.RSV3 {
		b0 |= 0x10
	}
	var b1 byte
	if f.Masked {
		b1 = 0x80
	}
	n := len(f.Payload)
	switch {
	case n <= 125:
		dst = append(dst, b0, b1|byte(n))
	case n <= 0xffff:
		dst = append(dst, b0, b1|126)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b0, b1|127)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}
	if !f.Masked {
		return append(dst, f.Payload...)
	}
	dst = append(dst, f.Mask[:]...)
	start := len(dst)
	dst = append(dst, f.Payload...)
	MaskBytes(f.Mask, 0, dst[start:])
	return dst
}

// MaskBytes XORs b in place with key, starting at key offset pos, and
// returns the offset for the byte after b. Applying it twice restores b.
func MaskBytes(key [4]byte, pos int, b []byte) int {
	pos &= 3
	for i := range b {
		b[i] ^= key[pos]
		pos = (pos + 1) & 3
	}
	return pos
}
