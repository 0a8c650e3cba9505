package comm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

// chunkReader returns at most size bytes per read.
type chunkReader struct {
	data []byte
	size int
}

func (r *chunkReader) TryRead(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, ErrWouldBlock
	}
	n := r.size
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func testFrames(t *testing.T) ([]byte, []int) {
	var stream []byte
	var sizes []int
	for _, msg := range []msgs.Message{
		{Code: msgs.CSM, Options: msgs.Options{}.AddUint(msgs.MaxMessageSize, 1024)},
		{Code: msgs.Content, Token: []byte{1, 2, 3, 4}, Payload: []byte("hello")},
		{Code: msgs.Content, Token: []byte{5}, Payload: bytes.Repeat([]byte{0xaa}, 300)},
		{Code: msgs.Ping},
	} {
		frame, err := msg.Marshal()
		require.NoError(t, err)
		stream = append(stream, frame...)
		sizes = append(sizes, len(frame))
	}
	return stream, sizes
}

func TestReassemblerSplitInvariance(t *testing.T) {
	stream, expected := testFrames(t)
	for chunk := 1; chunk <= len(stream); chunk++ {
		r := NewReassembler(512)
		src := &chunkReader{data: stream, size: chunk}
		var sizes []int
		for {
			_, err := r.Fill(src)
			if err == ErrWouldBlock && r.Buffered() == 0 {
				break
			}
			size, err := r.Next()
			require.NoError(t, err)
			if size == 0 {
				if len(src.data) == 0 {
					break
				}
				continue
			}
			_, err = msgs.Unmarshal(r.Frame(size))
			require.NoError(t, err)
			sizes = append(sizes, size)
			r.Consume(size)
		}
		require.Equalf(t, expected, sizes, "chunk size %d", chunk)
		require.Zero(t, r.Buffered())
	}
}

func TestReassemblerErrors(t *testing.T) {
	testCases := []struct {
		name  string
		input []byte
		err   error
	}{
		{"oversized", []byte{0xe0, 0x10, 0x00, byte(msgs.Content)}, ErrFrameTooLarge},
		{"token length", []byte{0x0c, byte(msgs.Content)}, msgs.ErrInvalidTokenLen},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReassembler(256)
			_, err := r.Write(tc.input)
			require.NoError(t, err)
			size, err := r.Next()
			require.Equal(t, tc.err, err)
			require.Zero(t, size)
			require.Zero(t, r.Buffered())
		})
	}
}

func TestReassemblerIncompleteHeader(t *testing.T) {
	r := NewReassembler(256)
	_, err := r.Write([]byte{0xe0, 0x00})
	require.NoError(t, err)
	size, err := r.Next()
	require.NoError(t, err)
	require.Zero(t, size)
	require.Equal(t, 2, r.Buffered())
}

func TestReassemblerResidual(t *testing.T) {
	stream, sizes := testFrames(t)
	r := NewReassembler(len(stream))
	_, err := r.Write(stream[:sizes[0]+3])
	require.NoError(t, err)
	size, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, sizes[0], size)
	r.Consume(size)
	require.Equal(t, 3, r.Buffered())
	require.Equal(t, stream[sizes[0]:sizes[0]+3], r.Frame(3))
}
