// Package websocket implements CoAP over WebSockets (RFC 8323 §4).
//
// WebSocket messages carry one CoAP message each, without the Len field of
// the stream framing. The Transport converts between both forms so the conn
// always sees the stream framing.
package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/coap.go/pkg/coap/comm"
	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

const (
	// Protocol is the WebSocket subprotocol.
	Protocol = "coap"
	// DefaultPath is the well-known path of the CoAP endpoint.
	DefaultPath = "/.well-known/coap"
)

// ErrLengthSet indicates a WebSocket message with a non-zero Len nibble.
var ErrLengthSet = errors.New("length field must be zero")

// Dialer implements comm.Dialer.
type Dialer struct {
	Secure bool
	TLS    *tls.Config
	// Path of the endpoint, DefaultPath if empty.
	Path string
	// Origin of the handshake, derived from the endpoint if empty.
	Origin string
	// MaxFrameSize limits outbound frames, comm.DefaultConfig().BufferSize if zero.
	MaxFrameSize int
}

// Dial implements comm.Dialer. addr is host[:port].
func (d *Dialer) Dial(ctx context.Context, addr string) (comm.Transport, error) {
	u := &url.URL{Scheme: "ws", Host: addr, Path: d.Path}
	origin := &url.URL{Scheme: "http", Host: addr}
	if d.Secure {
		u.Scheme, origin.Scheme = "wss", "https"
	}
	if u.Path == "" {
		u.Path = DefaultPath
	}
	config, err := websocket.NewConfig(u.String(), origin.String())
	if err != nil {
		return nil, err
	}
	if d.Origin != "" {
		if config.Origin, err = url.Parse(d.Origin); err != nil {
			return nil, fmt.Errorf("invalid origin: %w", err)
		}
	}
	config.Protocol = []string{Protocol}
	config.TlsConfig = d.TLS
	conn, err := config.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	glog.V(2).Infof("websocket connected %s", u)
	return New(conn, d.MaxFrameSize), nil
}

// Transport adapts a WebSocket connection to comm.Transport.
type Transport struct {
	conn *websocket.Conn

	// inbound, used by the reader only
	pending []byte

	writeLock sync.Mutex
	outbound  *comm.Reassembler
}

// New wraps an established connection.
func New(conn *websocket.Conn, maxFrameSize int) *Transport {
	if maxFrameSize <= 0 {
		maxFrameSize = int(comm.DefaultConfig().BufferSize)
	}
	conn.PayloadType = websocket.BinaryFrame
	return &Transport{conn: conn, outbound: comm.NewReassembler(maxFrameSize)}
}

// Read implements io.Reader. Each WebSocket message is returned in the
// stream framing.
func (t *Transport) Read(p []byte) (int, error) {
	for len(t.pending) == 0 {
		var msg []byte
		if err := websocket.Message.Receive(t.conn, &msg); err != nil {
			return 0, err
		}
		frame, err := ToStream(msg)
		if err != nil {
			return 0, err
		}
		t.pending = frame
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// Write implements io.Writer. Bytes are accumulated until complete frames
// are available, which are sent as individual WebSocket messages.
func (t *Transport) Write(p []byte) (int, error) {
	t.writeLock.Lock()
	defer t.writeLock.Unlock()
	written := 0
	for len(p) > 0 {
		n, err := t.outbound.Write(p)
		written += n
		p = p[n:]
		for {
			size, nextErr := t.outbound.Next()
			if nextErr != nil {
				return written, nextErr
			}
			if size == 0 {
				break
			}
			msg := FromStream(t.outbound.Frame(size))
			t.outbound.Consume(size)
			if sendErr := websocket.Message.Send(t.conn, msg); sendErr != nil {
				return written, sendErr
			}
		}
		if err != nil && len(p) == 0 {
			return written, err
		}
	}
	return written, nil
}

// Close implements io.Closer.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// ToStream converts a WebSocket message to the stream framing.
func ToStream(msg []byte) ([]byte, error) {
	if len(msg) < 2 {
		return nil, msgs.ErrTruncated
	}
	if msg[0]>>4 != 0 {
		return nil, ErrLengthSet
	}
	tkl := int(msg[0] & 0x0f)
	if tkl > msgs.MaxTokenLen {
		return nil, msgs.ErrInvalidTokenLen
	}
	bodyLen := len(msg) - 2 - tkl
	if bodyLen < 0 {
		return nil, msgs.ErrTruncated
	}
	nibble, ext := msgs.LengthClass(bodyLen)
	frame := make([]byte, 0, 1+len(ext)+len(msg)-1)
	frame = append(frame, nibble<<4|byte(tkl))
	frame = append(frame, ext...)
	return append(frame, msg[1:]...), nil
}

// FromStream converts one complete stream frame to a WebSocket message.
func FromStream(frame []byte) []byte {
	hdr := msgs.HeaderLen(frame[0])
	msg := make([]byte, 0, 1+len(frame)-hdr)
	msg = append(msg, frame[0]&0x0f)
	return append(msg, frame[hdr:]...)
}
