package msgs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLengthClass(t *testing.T) {
	testCases := []struct {
		n      int
		nibble byte
		ext    []byte
	}{
		{0, 0, nil},
		{12, 12, nil},
		{13, 13, []byte{0}},
		{268, 13, []byte{255}},
		{269, 14, []byte{0, 0}},
		{65804, 14, []byte{0xff, 0xff}},
		{65805, 15, []byte{0, 0, 0, 0}},
	}
	for _, tc := range testCases {
		nibble, ext := LengthClass(tc.n)
		require.Equalf(t, tc.nibble, nibble, "len %d nibble", tc.n)
		require.Equalf(t, tc.ext, ext, "len %d ext", tc.n)
		require.Equalf(t, len(tc.ext), ExtendedLen(nibble), "len %d ext len", tc.n)
		require.Equalf(t, tc.n, decodeLength(nibble, ext), "len %d decode", tc.n)
	}
}

func TestFrameSize(t *testing.T) {
	testCases := []struct {
		name   string
		in     []byte
		expect int
		err    error
	}{
		{"empty", nil, 0, nil},
		{"inline", []byte{0x32}, 1 + 1 + 2 + 3, nil},
		{"ext8 incomplete", []byte{0xd0}, 0, nil},
		{"ext8", []byte{0xd0, 0x02}, 2 + 1 + 15, nil},
		{"ext16 incomplete", []byte{0xe0, 0x01}, 0, nil},
		{"ext16", []byte{0xe0, 0x00, 0x01}, 3 + 1 + 270, nil},
		{"ext32", []byte{0xf8, 0, 0, 0, 1}, 5 + 1 + 8 + 65806, nil},
		{"bad token length", []byte{0x09}, 0, ErrInvalidTokenLen},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			size, err := FrameSize(tc.in)
			require.Equal(t, tc.err, err)
			require.Equal(t, tc.expect, size)
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		msg  Message
	}{
		{"empty get", Message{Code: GET}},
		{"path and token", Message{
			Code:    GET,
			Token:   []byte{1, 2, 3, 4},
			Options: Options{}.SetPath("/sensors/temp").AddString(URIQuery, "unit=c"),
		}},
		{"payload", Message{
			Code:    POST,
			Token:   []byte{0xaa},
			Options: Options{}.SetPath("data").AddUint(ContentFormat, uint32(AppJSON)),
			Payload: []byte(`{"v":1}`),
		}},
		{"large payload", Message{
			Code:    PUT,
			Token:   []byte{1, 2, 3, 4, 5, 6, 7, 8},
			Options: Options{}.AddUint(Block1, Block{Num: 3, More: true, Size: Block1024}.Value()).Add(Echo, bytes.Repeat([]byte{7}, 40)),
			Payload: bytes.Repeat([]byte{0x5a}, 70000),
		}},
		{"signal", Message{
			Code:    CSM,
			Options: Options{}.AddUint(MaxMessageSize, 4096).Add(BlockWiseTransfer, nil),
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := tc.msg.Marshal()
			require.NoError(t, err)
			size, err := FrameSize(frame)
			require.NoError(t, err)
			require.Equal(t, len(frame), size)

			msg, err := Unmarshal(frame)
			require.NoError(t, err)
			require.Equal(t, tc.msg.Code, msg.Code)
			require.Equal(t, len(tc.msg.Token), len(msg.Token))
			if len(tc.msg.Token) > 0 {
				require.Equal(t, tc.msg.Token, msg.Token)
			}
			require.Equal(t, tc.msg.Options.Path(), msg.Path())
			require.Equal(t, len(tc.msg.Options), len(msg.Options))
			for _, opt := range tc.msg.Options {
				require.Contains(t, msg.Options.All(opt.ID), normalize(opt.Value))
			}
			require.Equal(t, len(tc.msg.Payload), len(msg.Payload))
			if len(tc.msg.Payload) > 0 {
				require.Equal(t, tc.msg.Payload, msg.Payload)
			}
		})
	}
}

func normalize(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return v
}

func TestMarshalHeader(t *testing.T) {
	msg := Message{Code: Content, Token: []byte{9}, Payload: bytes.Repeat([]byte{1}, 11)}
	frame, err := msg.Marshal()
	require.NoError(t, err)
	// 11 bytes of payload plus the marker: inline length 12.
	require.Equal(t, []byte{0xc1, byte(Content), 9, 0xff}, frame[:4])

	msg.Payload = append(msg.Payload, 1)
	frame, err = msg.Marshal()
	require.NoError(t, err)
	require.Equal(t, []byte{0xd1, 0, byte(Content), 9, 0xff}, frame[:5])
}

func TestMarshalInvalidToken(t *testing.T) {
	msg := Message{Code: GET, Token: make([]byte, 9)}
	_, err := msg.Marshal()
	require.Equal(t, ErrInvalidTokenLen, err)
}

func TestUnmarshalMalformed(t *testing.T) {
	testCases := []struct {
		name string
		in   []byte
		err  error
	}{
		{"truncated header", []byte{0xd0}, ErrTruncated},
		{"truncated body", []byte{0x30, byte(GET), 0xb1}, ErrTruncated},
		{"bad token length", []byte{0x0a, byte(GET)}, ErrInvalidTokenLen},
		{"empty payload", []byte{0x10, byte(Content), 0xff}, ErrEmptyPayload},
		{"option past end", []byte{0x20, byte(GET), 0xb3, 'a'}, ErrOptionTruncated},
		{"reserved delta", []byte{0x10, byte(GET), 0xf1}, ErrOptionInvalid},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unmarshal(tc.in)
			require.Equal(t, tc.err, err)
		})
	}
}
