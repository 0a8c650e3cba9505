// Package mqtt tunnels the CoAP stream framing through an MQTT broker.
//
// Each frame is published as one message to "<peer>/req" and responses are
// consumed from "<peer>/rsp", both relative to the broker URL's path.
package mqtt

import (
	"context"
	"io"
	"sync"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	uuid "github.com/hashicorp/go-uuid"

	"github.com/robotalks/coap.go/pkg/coap/comm"
)

// Closer is returned by Broker.Subscribe.
type Closer = io.Closer

// Broker is the pub/sub surface used by Tunnel.
type Broker interface {
	Publish(topic string, payload []byte) error
	Subscribe(filter string, handler Handler) (Closer, error)
}

// Topic suffixes.
const (
	RequestTopic  = "req"
	ResponseTopic = "rsp"
)

const tunnelQueueLen = 16

// DefaultClientID derives a stable client id from the machine id.
func DefaultClientID() string {
	if id, err := machineid.ProtectedID("coap"); err == nil {
		return "coap:" + id[:16]
	}
	id, err := uuid.GenerateUUID()
	if err != nil {
		panic(err)
	}
	return "coap:" + id
}

// Tunnel implements comm.Transport over a Broker.
type Tunnel struct {
	broker   Broker
	pubTopic string
	sub      Closer

	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closer    io.Closer

	// used by the reader only
	pending []byte
}

// NewTunnel subscribes the response topic of peer.
func NewTunnel(broker Broker, peer string) (*Tunnel, error) {
	t := &Tunnel{
		broker:   broker,
		pubTopic: peer + "/" + RequestTopic,
		frames:   make(chan []byte, tunnelQueueLen),
		done:     make(chan struct{}),
	}
	sub, err := broker.Subscribe(peer+"/"+ResponseTopic, t.receive)
	if err != nil {
		return nil, err
	}
	t.sub = sub
	return t, nil
}

func (t *Tunnel) receive(_ string, payload []byte) {
	frame := append([]byte(nil), payload...)
	select {
	case t.frames <- frame:
	case <-t.done:
	}
}

// Read implements io.Reader.
func (t *Tunnel) Read(p []byte) (int, error) {
	if len(t.pending) == 0 {
		select {
		case frame := <-t.frames:
			t.pending = frame
		case <-t.done:
			return 0, io.EOF
		}
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// Write implements io.Writer. p is published as one message, the conn
// writes one complete frame per call.
func (t *Tunnel) Write(p []byte) (int, error) {
	select {
	case <-t.done:
		return 0, io.ErrClosedPipe
	default:
	}
	if err := t.broker.Publish(t.pubTopic, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer.
func (t *Tunnel) Close() (err error) {
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.sub.Close()
		if t.closer != nil {
			if closeErr := t.closer.Close(); err == nil {
				err = closeErr
			}
		}
	})
	return
}

// Dialer implements comm.Dialer. Each Dial connects its own client.
type Dialer struct {
	// BrokerURL like mqtt://host:1883/topic/prefix
	BrokerURL string
	// ClientID overrides the id from BrokerURL or DefaultClientID.
	ClientID string
}

// Dial implements comm.Dialer. addr is the peer name used in topics.
func (d *Dialer) Dial(ctx context.Context, addr string) (comm.Transport, error) {
	opts, prefix, err := ClientOptionsFromURL(d.BrokerURL)
	if err != nil {
		return nil, err
	}
	switch {
	case d.ClientID != "":
		opts.SetClientID(d.ClientID)
	case opts.ClientID == "":
		opts.SetClientID(DefaultClientID())
	}
	q := NewQueue(opts, prefix)
	token := q.Connect()
	connected := make(chan struct{})
	go func() {
		token.Wait()
		close(connected)
	}()
	select {
	case <-connected:
	case <-ctx.Done():
		q.Close()
		return nil, ctx.Err()
	}
	if err = token.Error(); err != nil {
		return nil, err
	}
	glog.Infof("mqtt tunnel to %q via %s", addr, d.BrokerURL)
	t, err := NewTunnel(q, addr)
	if err != nil {
		q.Close()
		return nil, err
	}
	t.closer = q
	return t, nil
}
