//go:build linux || darwin

package utils

import "golang.org/x/sys/unix"

// socket buffers for high-thread-mode connections
const socketBufferSize = 1024 * 1024

func setSocketOptions(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, socketBufferSize); err != nil {
		return err
	}
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, socketBufferSize)
}
