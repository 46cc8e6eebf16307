package httpx

import "os"

// Flusher allows a handler to flush buffered data to the client
// mid-response (useful for streaming and server-sent events).
type Flusher interface {
	Flush() error
}

// FileSender is implemented by ResponseWriters that can send a file region
// as the whole body, moved by the server's FileTransfer.
type FileSender interface {
	SendFile(f *os.File, offset, length int64) error
}

// TrailerSetter is implemented by ResponseWriters that can send trailer
// fields after a chunked body.
type TrailerSetter interface {
	Trailer() *Header
}
