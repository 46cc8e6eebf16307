package http1

import "strconv"

// parseChunkSize reads "<hex>[ OWS ][;ext...]". Extensions are ignored.
func parseChunkSize(line []byte) (uint64, error) {
	for i, c := range line {
		if c == ';' {
			line = line[:i]
			break
		}
	}
	line = trimOWS(line)
	if len(line) == 0 || len(line) > 16 {
		return 0, ErrChunkFraming
	}
	var n uint64
	for _, c := range line {
		if !isHex(c) {
			return 0, ErrChunkFraming
		}
		n <<= 4
		switch {
		case c >= '0' && c <= '9':
			n |= uint64(c - '0')
		case c >= 'a' && c <= 'f':
			n |= uint64(c-'a') + 10
		default:
			n |= uint64(c-'A') + 10
		}
	}
	if n>>63 != 0 {
		return 0, ErrChunkFraming
	}
	return n, nil
}

// AppendChunk writes one chunk for p. Empty p writes nothing, since a
// zero-size chunk would end the body.
func AppendChunk(dst, p []byte) []byte {
	if len(p) == 0 {
		return dst
	}
	dst = strconv.AppendUint(dst, uint64(len(p)), 16)
	dst = append(dst, '\r', '\n')
	dst = append(dst, p...)
	return append(dst, '\r', '\n')
}

// AppendLastChunk writes the terminating zero-size chunk, the trailer fields
// and the final blank line.
func AppendLastChunk(dst []byte, trailers Header) []byte {
	dst = append(dst, '0', '\r', '\n')
	dst = trailers.AppendTo(dst)
	return append(dst, '\r', '\n')
}
