package comm

import (
	"context"
	"io"
	"net"
	"sync"
)

// Transport is a reliable, ordered byte stream.
// Read may return partial frames, Write must write all bytes or fail.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Transport, error)
}

// DialFunc is func type of Dialer.
type DialFunc func(ctx context.Context, addr string) (Transport, error)

// Dial implements Dialer.
func (f DialFunc) Dial(ctx context.Context, addr string) (Transport, error) {
	return f(ctx, addr)
}

// SocketHook configures a freshly dialed transport before it is used.
type SocketHook func(Transport) error

// TCPDialer dials plain TCP.
var TCPDialer = DialFunc(func(ctx context.Context, addr string) (Transport, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
})

// NonBlockingReader reads without waiting.
// It returns ErrWouldBlock when nothing is available.
type NonBlockingReader interface {
	TryRead([]byte) (int, error)
}

const pumpQueueLen = 4

// pump reads the transport in the background and queues chunks, so the
// worker can consume them without blocking.
type pump struct {
	transport Transport
	chunkSize int
	notify    func()

	chunks  chan []byte
	done    chan struct{}
	stopped sync.Once
	err     error

	// accessed by the consumer only
	pending []byte
}

func newPump(t Transport, chunkSize int, notify func()) *pump {
	return &pump{
		transport: t,
		chunkSize: chunkSize,
		notify:    notify,
		chunks:    make(chan []byte, pumpQueueLen),
		done:      make(chan struct{}),
	}
}

func (p *pump) run() {
	for {
		buf := make([]byte, p.chunkSize)
		n, err := p.transport.Read(buf)
		if n > 0 {
			select {
			case p.chunks <- buf[:n]:
				p.notify()
			case <-p.done:
				close(p.chunks)
				return
			}
		}
		if err != nil {
			p.err = err
			close(p.chunks)
			p.notify()
			return
		}
	}
}

func (p *pump) stop() {
	p.stopped.Do(func() { close(p.done) })
}

// TryRead implements NonBlockingReader.
func (p *pump) TryRead(dst []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case chunk, ok := <-p.chunks:
			if !ok {
				if p.err == nil {
					return 0, io.EOF
				}
				return 0, p.err
			}
			p.pending = chunk
		default:
			return 0, ErrWouldBlock
		}
	}
	n := copy(dst, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// buffered indicates more data can be read without waiting.
func (p *pump) buffered() bool {
	return len(p.pending) > 0 || len(p.chunks) > 0
}
