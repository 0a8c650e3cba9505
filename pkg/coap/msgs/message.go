package msgs

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxTokenLen is the maximum length of a token.
const MaxTokenLen = 8

// Length classes of the frame header (RFC 8323 §3.2).
const (
	lenInlineMax = 12
	lenExt8      = 13
	lenExt16     = 14
	lenExt32     = 15

	lenExt8Base  = 13
	lenExt16Base = 269
	lenExt32Base = 65805
)

var (
	// ErrInvalidTokenLen indicates TKL greater than 8.
	ErrInvalidTokenLen = errors.New("invalid token length")
	// ErrTruncated indicates the frame ends before the announced length.
	ErrTruncated = errors.New("frame truncated")
)

// Message is a CoAP message without transport specific fields.
type Message struct {
	Code    Code
	Token   []byte
	Options Options
	Payload []byte
}

// Path returns the Uri-Path of the message.
func (m *Message) Path() string {
	return m.Options.Path()
}

// String implements Stringer.
func (m *Message) String() string {
	return fmt.Sprintf("%s token=%x options=%d payload=%d", m.Code, m.Token, len(m.Options), len(m.Payload))
}

// LengthClass returns the Len nibble and extended length bytes encoding n.
func LengthClass(n int) (byte, []byte) {
	switch {
	case n <= lenInlineMax:
		return byte(n), nil
	case n < lenExt16Base:
		return lenExt8, []byte{byte(n - lenExt8Base)}
	case n < lenExt32Base:
		ext := make([]byte, 2)
		binary.BigEndian.PutUint16(ext, uint16(n-lenExt16Base))
		return lenExt16, ext
	default:
		ext := make([]byte, 4)
		binary.BigEndian.PutUint32(ext, uint32(n-lenExt32Base))
		return lenExt32, ext
	}
}

// ExtendedLen returns the number of extended length bytes for a Len nibble.
func ExtendedLen(nibble byte) int {
	switch nibble {
	case lenExt8:
		return 1
	case lenExt16:
		return 2
	case lenExt32:
		return 4
	}
	return 0
}

// HeaderLen returns the size of the Len/TKL byte plus extended length
// bytes as announced by the first byte of a frame.
func HeaderLen(first byte) int {
	return 1 + ExtendedLen(first>>4)
}

func decodeLength(nibble byte, ext []byte) int {
	switch nibble {
	case lenExt8:
		return int(ext[0]) + lenExt8Base
	case lenExt16:
		return int(binary.BigEndian.Uint16(ext)) + lenExt16Base
	case lenExt32:
		return int(binary.BigEndian.Uint32(ext)) + lenExt32Base
	}
	return int(nibble)
}

// FrameSize resolves the total size of the frame at the beginning of buf.
// It returns 0 when buf is too short to resolve the header.
func FrameSize(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	tkl := int(buf[0] & 0x0f)
	if tkl > MaxTokenLen {
		return 0, ErrInvalidTokenLen
	}
	hdr := HeaderLen(buf[0])
	if len(buf) < hdr {
		return 0, nil
	}
	return hdr + 1 + tkl + decodeLength(buf[0]>>4, buf[1:hdr]), nil
}

// AppendBody encodes options and payload.
func (m *Message) AppendBody(dst []byte) ([]byte, error) {
	dst, err := AppendOptions(dst, m.Options)
	if err != nil {
		return dst, err
	}
	if len(m.Payload) > 0 {
		dst = append(dst, PayloadMarker)
		dst = append(dst, m.Payload...)
	}
	return dst, nil
}

// Marshal encodes the message as one frame of the stream framing.
func (m *Message) Marshal() ([]byte, error) {
	if len(m.Token) > MaxTokenLen {
		return nil, ErrInvalidTokenLen
	}
	body, err := m.AppendBody(nil)
	if err != nil {
		return nil, err
	}
	nibble, ext := LengthClass(len(body))
	frame := make([]byte, 0, 1+len(ext)+1+len(m.Token)+len(body))
	frame = append(frame, nibble<<4|byte(len(m.Token)))
	frame = append(frame, ext...)
	frame = append(frame, byte(m.Code))
	frame = append(frame, m.Token...)
	return append(frame, body...), nil
}

// Unmarshal decodes exactly one frame.
func Unmarshal(frame []byte) (*Message, error) {
	size, err := FrameSize(frame)
	if err != nil {
		return nil, err
	}
	if size == 0 || len(frame) < size {
		return nil, ErrTruncated
	}
	hdr := HeaderLen(frame[0])
	tkl := int(frame[0] & 0x0f)
	m := &Message{Code: Code(frame[hdr])}
	if tkl > 0 {
		m.Token = append([]byte(nil), frame[hdr+1:hdr+1+tkl]...)
	}
	if m.Options, m.Payload, err = ParseOptions(frame[hdr+1+tkl : size]); err != nil {
		return nil, err
	}
	if m.Payload != nil {
		m.Payload = append([]byte(nil), m.Payload...)
	}
	return m, nil
}
