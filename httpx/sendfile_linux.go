//go:build linux

package httpx

import (
	"io"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// maxSendfileChunk bounds a single sendfile call.
const maxSendfileChunk = 4 << 20

func (SendfileTransfer) Transfer(dst net.Conn, f *os.File, off, n int64) (int64, error) {
	sc, ok := dst.(syscall.Conn)
	if !ok {
		return copyRegion(dst, f, off, n)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return copyRegion(dst, f, off, n)
	}
	src := int(f.Fd())
	var written int64
	var serr error
	err = rc.Write(func(fd uintptr) bool {
		for written < n {
			pos := off + written
			m, e := unix.Sendfile(int(fd), src, &pos, int(min(n-written, maxSendfileChunk)))
			if m > 0 {
				written += int64(m)
			}
			switch {
			case e == unix.EAGAIN:
				return false
			case e == unix.EINTR:
				continue
			case e != nil:
				serr = e
				return true
			case m == 0:
				serr = io.ErrUnexpectedEOF
				return true
			}
		}
		return true
	})
	if err == nil {
		err = serr
	}
	return written, err
}
