package comm

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

// testTransport is a chan backed Transport. Bytes injected to readCh are
// read by the conn, frames written by the conn are queued to writeCh.
type testTransport struct {
	readCh    chan []byte
	writeCh   chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newTestTransport() *testTransport {
	return &testTransport{
		readCh:  make(chan []byte, 16),
		writeCh: make(chan []byte, 64),
		closeCh: make(chan struct{}),
	}
}

func (s *testTransport) Read(p []byte) (int, error) {
	select {
	case b, ok := <-s.readCh:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, b), nil
	case <-s.closeCh:
		return 0, io.ErrClosedPipe
	}
}

func (s *testTransport) Write(p []byte) (int, error) {
	frame := append([]byte(nil), p...)
	select {
	case s.writeCh <- frame:
		return len(p), nil
	case <-s.closeCh:
		return 0, io.ErrClosedPipe
	}
}

func (s *testTransport) Close() error {
	s.closeOnce.Do(func() { close(s.closeCh) })
	return nil
}

func (s *testTransport) closed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

func TestPumpTryRead(t *testing.T) {
	tr := newTestTransport()
	notifyCh := make(chan struct{}, 16)
	p := newPump(tr, 8, func() { notifyCh <- struct{}{} })
	go p.run()
	defer p.stop()

	buf := make([]byte, 4)
	_, err := p.TryRead(buf)
	require.Equal(t, ErrWouldBlock, err)

	tr.readCh <- []byte("abcdef")
	<-notifyCh
	n, err := p.TryRead(buf)
	require.NoError(t, err)
	require.Equal(t, "abcd", string(buf[:n]))
	require.True(t, p.buffered())
	n, err = p.TryRead(buf)
	require.NoError(t, err)
	require.Equal(t, "ef", string(buf[:n]))
	require.False(t, p.buffered())

	close(tr.readCh)
	<-notifyCh
	_, err = p.TryRead(buf)
	require.Equal(t, io.EOF, err)
}

func TestPumpStop(t *testing.T) {
	tr := newTestTransport()
	p := newPump(tr, 8, func() {})
	doneCh := make(chan struct{})
	go func() {
		p.run()
		close(doneCh)
	}()
	p.stop()
	tr.Close()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("pump not stopped")
	}
	_, err := p.TryRead(make([]byte, 1))
	require.Equal(t, io.ErrClosedPipe, err)
}

func marshal(t *testing.T, msg *msgs.Message) []byte {
	frame, err := msg.Marshal()
	require.NoError(t, err)
	return frame
}
