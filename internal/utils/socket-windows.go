//go:build windows

package utils

import "golang.org/x/sys/windows"

const socketBufferSize = 1024 * 1024

func setSocketOptions(fd uintptr) error {
	h := windows.Handle(fd)
	if err := windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_RCVBUF, socketBufferSize); err != nil {
		return err
	}
	return windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_SNDBUF, socketBufferSize)
}
