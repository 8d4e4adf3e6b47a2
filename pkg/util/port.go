package util

import (
	"fmt"
	"net"
)

// MustGetFreePort reserves an ephemeral TCP port and returns it. It panics
// when the OS cannot hand one out, which only happens on exhausted hosts.
func MustGetFreePort() int {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		panic(fmt.Errorf("failed to resolve tcp addr: %w", err))
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		panic(fmt.Errorf("failed to listen on tcp addr: %w", err))
	}
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port
}
