package comm

import (
	"fmt"
	"io"
	"time"

	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

// Payload is the body of a request.
type Payload interface {
	// Size returns the total size of the body.
	Size() int
	// ReadAt fills buf with bytes starting at offset.
	ReadAt(buf []byte, offset int64) (int, error)
}

// BytesPayload is a body held in memory.
type BytesPayload []byte

// Size implements Payload.
func (p BytesPayload) Size() int {
	return len(p)
}

// ReadAt implements Payload.
func (p BytesPayload) ReadAt(buf []byte, offset int64) (int, error) {
	if offset > int64(len(p)) {
		return 0, fmt.Errorf("offset %d beyond payload size %d", offset, len(p))
	}
	n := copy(buf, p[offset:])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

// ProducerPayload produces the body lazily, one block at a time.
type ProducerPayload struct {
	Total   int
	Produce func(offset int, buf []byte) (int, error)
}

// Size implements Payload.
func (p *ProducerPayload) Size() int {
	return p.Total
}

// ReadAt implements Payload.
func (p *ProducerPayload) ReadAt(buf []byte, offset int64) (int, error) {
	return p.Produce(int(offset), buf)
}

// Request describes one logical request.
type Request struct {
	Method        msgs.Code
	Path          string
	ContentFormat msgs.MediaType
	// Payload is optional. Content-Format is only sent with a payload.
	Payload Payload
	// Options are appended to the generated ones.
	Options msgs.Options
	Handler ResponseHandler
	// UserData is not interpreted.
	UserData interface{}
	// Timeout overrides Config.RequestTimeout when nonzero.
	Timeout time.Duration
	// Observe registers a subscription which keeps the exchange until canceled.
	Observe bool
}

// Response is delivered to ResponseHandler, once per fragment.
type Response struct {
	Code msgs.Code
	// Offset is the position of Payload in the whole body. When a
	// block-wise request body is acknowledged, it's the offset of the
	// acknowledged block.
	Offset  int
	Payload []byte
	// Last is set on the final delivery of the exchange.
	Last bool
	// Err is set when the exchange terminates without a response.
	Err     error
	Request *Request
	Message *msgs.Message
}

// ResponseHandler receives responses.
type ResponseHandler interface {
	HandleResponse(*Response)
}

// HandleResponseFunc is func type of ResponseHandler.
type HandleResponseFunc func(*Response)

// HandleResponse implements ResponseHandler.
func (f HandleResponseFunc) HandleResponse(resp *Response) {
	f(resp)
}

// Result is the outcome of Conn.Do.
type Result struct {
	Code    msgs.Code
	Payload []byte
	Message *msgs.Message
}

func payloadSize(p Payload) int {
	if p == nil {
		return 0
	}
	return p.Size()
}
