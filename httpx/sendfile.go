package httpx

import (
	"io"
	"net"
	"os"
)

// FileTransfer moves n bytes of f starting at off to dst. It returns the
// number of bytes written even when it fails part way.
type FileTransfer interface {
	Transfer(dst net.Conn, f *os.File, off, n int64) (int64, error)
}

// SendfileTransfer uses sendfile(2) where the platform and connection allow
// it and copies through user space otherwise.
type SendfileTransfer struct{}

// CopyTransfer always copies through user space.
type CopyTransfer struct{}

func (CopyTransfer) Transfer(dst net.Conn, f *os.File, off, n int64) (int64, error) {
	return copyRegion(dst, f, off, n)
}

func copyRegion(dst io.Writer, f *os.File, off, n int64) (int64, error) {
	written, err := io.Copy(dst, io.NewSectionReader(f, off, n))
	if err == nil && written < n {
		err = io.ErrUnexpectedEOF
	}
	return written, err
}
