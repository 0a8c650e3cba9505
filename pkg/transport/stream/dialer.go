// Package stream provides TCP and TLS transports for CoAP over reliable
// transports.
package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/coap.go/pkg/coap/comm"
)

// Default ports (RFC 8323 §8).
const (
	DefaultPort    = "5683"
	DefaultTLSPort = "5684"
)

// ALPN protocol id of CoAP over TLS.
const ALPN = "coap"

// Options of TCP sockets.
type Options struct {
	// NoDelay disables Nagle's algorithm.
	NoDelay bool
	// KeepAlive is the idle time before keepalive probes, disabled if zero.
	KeepAlive time.Duration
}

// DefaultOptions are used when Dialer.Options is nil.
var DefaultOptions = Options{
	NoDelay:   true,
	KeepAlive: 30 * time.Second,
}

// Dialer implements comm.Dialer for TCP, and TLS when TLS is set.
type Dialer struct {
	TLS     *tls.Config
	Timeout time.Duration
	Options *Options
}

// NewTLSDialer creates a Dialer with TLS. ALPN "coap" is requested.
func NewTLSDialer(insecure bool) *Dialer {
	return &Dialer{
		TLS: &tls.Config{
			NextProtos:         []string{ALPN},
			InsecureSkipVerify: insecure,
		},
	}
}

// Dial implements comm.Dialer.
func (d *Dialer) Dial(ctx context.Context, addr string) (comm.Transport, error) {
	opts := d.Options
	if opts == nil {
		opts = &DefaultOptions
	}
	nd := &net.Dialer{
		Timeout: d.Timeout,
		// keepalive is set by the socket options
		KeepAlive: -1,
		Control: func(network, address string, c syscall.RawConn) error {
			return control(c, opts)
		},
	}
	addr = withDefaultPort(addr, d.TLS != nil)
	if d.TLS == nil {
		conn, err := nd.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		glog.V(2).Infof("tcp connected %s", conn.RemoteAddr())
		return conn, nil
	}
	td := &tls.Dialer{NetDialer: nd, Config: d.TLS}
	conn, err := td.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	glog.V(2).Infof("tls connected %s", conn.RemoteAddr())
	return conn, nil
}

// Hook returns a comm.SocketHook applying opts to TCP based transports.
// Other transports are left untouched.
func Hook(opts Options) comm.SocketHook {
	return func(t comm.Transport) error {
		conn, ok := t.(net.Conn)
		if !ok {
			return nil
		}
		if tc, ok := conn.(*tls.Conn); ok {
			conn = tc.NetConn()
		}
		sc, ok := conn.(syscall.Conn)
		if !ok {
			return nil
		}
		raw, err := sc.SyscallConn()
		if err != nil {
			return err
		}
		return control(raw, &opts)
	}
}

func control(c syscall.RawConn, opts *Options) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = setSockOpts(int(fd), opts)
	}); err != nil {
		return err
	}
	if sockErr != nil {
		return fmt.Errorf("socket options: %w", sockErr)
	}
	return nil
}

func withDefaultPort(addr string, secure bool) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	port := DefaultPort
	if secure {
		port = DefaultTLSPort
	}
	return net.JoinHostPort(addr, port)
}
