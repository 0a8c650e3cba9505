package stream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSocketOptions(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		if conn, err := ln.Accept(); err == nil {
			defer conn.Close()
			conn.Read(make([]byte, 1))
		}
	}()

	d := &Dialer{Options: &Options{NoDelay: true, KeepAlive: 10 * time.Second}}
	tr, err := d.Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer tr.Close()

	raw, err := tr.(*net.TCPConn).SyscallConn()
	require.NoError(t, err)
	var noDelay, keepAlive, idle int
	var optErr error
	require.NoError(t, raw.Control(func(fd uintptr) {
		if noDelay, optErr = unix.GetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY); optErr != nil {
			return
		}
		if keepAlive, optErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE); optErr != nil {
			return
		}
		idle, optErr = unix.GetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE)
	}))
	require.NoError(t, optErr)
	require.NotZero(t, noDelay)
	require.NotZero(t, keepAlive)
	require.Equal(t, 10, idle)
}
