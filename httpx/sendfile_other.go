//go:build !linux

package httpx

import (
	"net"
	"os"
)

func (SendfileTransfer) Transfer(dst net.Conn, f *os.File, off, n int64) (int64, error) {
	return copyRegion(dst, f, off, n)
}
