package comm

import (
	"fmt"
	"io"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

type buildMode int

const (
	// a new request, with a new token
	buildFresh buildMode = iota
	// next block of a block-wise transfer
	buildContinue
	// the same request again, keeping the token
	buildReconstruct
)

const (
	tokenLen      = 8
	requestTagLen = 4
)

// newTokenLocked generates a token unique among ongoing slots.
func (c *Conn) newTokenLocked(s *slot) ([]byte, error) {
	for {
		token, err := uuid.GenerateRandomBytes(tokenLen)
		if err != nil {
			return nil, err
		}
		if !c.slots.tokenInUse(token, s) {
			return token, nil
		}
	}
}

// buildLocked encodes the next frame of the slot's request.
// The send context advances only when the frame is built successfully.
func (c *Conn) buildLocked(s *slot, mode buildMode) ([]byte, error) {
	req := s.req
	switch {
	case mode == buildReconstruct && s.token != nil:
	case mode == buildContinue && c.cfg.ReuseBlockToken && s.token != nil:
	default:
		token, err := c.newTokenLocked(s)
		if err != nil {
			return nil, err
		}
		s.token = token
		if mode == buildFresh && s.persistent {
			s.observeToken = token
		}
	}

	msg := &msgs.Message{Code: req.Method, Token: s.token}
	msg.Options = msgs.Options{}.SetPath(req.Path)

	size := payloadSize(req.Payload)
	ceiling := c.cfg.ceiling(c.maxMsgSize)
	segmented := req.Payload != nil && c.peerBlockWise &&
		(s.send.Active() || size > ceiling)

	for _, opt := range req.Options {
		switch opt.ID {
		case msgs.Block2:
			if s.recv.Current > 0 {
				continue
			}
		case msgs.Block1, msgs.Size1, msgs.RequestTag:
			if segmented {
				continue
			}
		case msgs.Observe:
			if req.Observe {
				continue
			}
		}
		msg.Options = append(msg.Options, opt)
	}
	if req.Observe && mode != buildContinue {
		msg.Options = msg.Options.AddUint(msgs.Observe, 0)
	}
	if s.recv.Current > 0 {
		msg.Options = msg.Options.AddUint(msgs.Block2, s.recv.Block(false).Value())
	}
	if len(c.echo) > 0 {
		msg.Options = msg.Options.Add(msgs.Echo, c.echo)
	}

	var send msgs.BlockContext
	var requestTag []byte
	var offset int
	if size > 0 {
		msg.Options = msg.Options.AddUint(msgs.ContentFormat, uint32(req.ContentFormat))
		n := size
		if segmented {
			send, requestTag = s.send, s.requestTag
			if !send.Active() {
				send.Init(c.cfg.BlockSize(c.maxMsgSize), size)
				tag, err := uuid.GenerateRandomBytes(requestTagLen)
				if err != nil {
					return nil, err
				}
				requestTag = tag
			}
			offset = send.Current
			n = send.Size.Bytes()
			if send.Size.IsBERT() {
				n = ceiling / n * n
			}
			if rest := size - offset; n > rest {
				n = rest
			}
			msg.Options = msg.Options.AddUint(msgs.Block1, send.Block(offset+n < size).Value())
			if offset == 0 {
				msg.Options = msg.Options.AddUint(msgs.Size1, uint32(size))
			}
			msg.Options = msg.Options.Add(msgs.RequestTag, requestTag)
			send.Advance(n)
		}
		if n > 0 {
			msg.Payload = make([]byte, n)
			read, err := req.Payload.ReadAt(msg.Payload, int64(offset))
			if err != nil && err != io.EOF {
				return nil, err
			}
			if read < n {
				return nil, fmt.Errorf("payload short read at %d: %d of %d bytes", offset, read, n)
			}
		}
	}

	frame, err := msg.Marshal()
	if err != nil {
		return nil, err
	}
	if len(frame) > int(c.cfg.BufferSize) {
		return nil, ErrMessageTooLarge
	}
	if segmented {
		s.send, s.requestTag, s.sentOffset = send, requestTag, offset
	}
	c.echo = nil
	return frame, nil
}
