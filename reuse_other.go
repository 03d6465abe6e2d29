//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package mdnssd

import "syscall"

func reuseControl(network, address string, c syscall.RawConn) error {
	return nil
}
