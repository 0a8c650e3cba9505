package msgs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeUint(t *testing.T) {
	testCases := []struct {
		v      uint32
		expect []byte
	}{
		{0, []byte{}},
		{1, []byte{1}},
		{0xff, []byte{0xff}},
		{0x100, []byte{1, 0}},
		{0x12345678, []byte{0x12, 0x34, 0x56, 0x78}},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expect, EncodeUint(tc.v))
		require.Equal(t, tc.v, DecodeUint(tc.expect))
	}
}

func TestOptionsPath(t *testing.T) {
	opts := Options{}.SetPath("/a/b//c/")
	require.Equal(t, "/a/b/c", opts.Path())
	require.Len(t, opts.All(URIPath), 3)
	opts = opts.SetPath("x")
	require.Equal(t, "/x", opts.Path())
	require.Equal(t, "/", Options{}.Path())
}

func TestOptionsEncoding(t *testing.T) {
	opts := Options{}.
		AddUint(ContentFormat, uint32(AppJSON)).
		AddString(URIPath, "a").
		AddString(URIPath, "b").
		Add(Echo, []byte{1, 2})
	data, err := AppendOptions(nil, opts)
	require.NoError(t, err)
	require.Equal(t, []byte{
		0xb1, 'a', // Uri-Path delta 11
		0x01, 'b', // Uri-Path delta 0
		0x11, 50, // Content-Format delta 1
		0xd2, 252 - 12 - 13, 1, 2, // Echo delta 240
	}, data)

	parsed, payload, err := ParseOptions(data)
	require.NoError(t, err)
	require.Nil(t, payload)
	require.Equal(t, "/a/b", parsed.Path())
	cf, ok := parsed.Uint(ContentFormat)
	require.True(t, ok)
	require.Equal(t, uint32(AppJSON), cf)
	echo, ok := parsed.Bytes(Echo)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2}, echo)
}

func TestOptionsWordDelta(t *testing.T) {
	opts := Options{}.Add(RequestTag, []byte{9})
	data, err := AppendOptions(nil, opts)
	require.NoError(t, err)
	require.Equal(t, []byte{0xe1, 0, 292 - 269, 9}, data)
	parsed, _, err := ParseOptions(data)
	require.NoError(t, err)
	require.Equal(t, Options{{ID: RequestTag, Value: []byte{9}}}, parsed)
}

func TestOptionsValueLength(t *testing.T) {
	testCases := []struct {
		name string
		size int
		err  error
	}{
		{"longest", MaxOptionLen, nil},
		{"too long", MaxOptionLen + 1, ErrOptionTooLong},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := Options{}.Add(ETag, make([]byte, tc.size))
			data, err := AppendOptions(nil, opts)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				_, err = (&Message{Code: GET, Options: opts}).Marshal()
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, []byte{0x4e, 0xff, 0xff}, data[:3])
			parsed, _, err := ParseOptions(data)
			require.NoError(t, err)
			require.Len(t, parsed[0].Value, tc.size)
		})
	}
}

func TestOptionsRemove(t *testing.T) {
	opts := Options{}.AddUint(Block2, 1).AddString(URIPath, "a").AddUint(Block2, 2)
	removed := opts.Remove(Block2)
	require.Len(t, removed, 1)
	require.Len(t, opts, 3)
	require.False(t, removed.Has(Block2))
	require.True(t, opts.Has(Block2))
}

func TestParseMediaType(t *testing.T) {
	testCases := []struct {
		in       string
		expected MediaType
		ok       bool
	}{
		{"json", AppJSON, true},
		{"CBOR", AppCBOR, true},
		{"42", OctetStream, true},
		{"11050", MediaType(11050), true},
		{"yaml", 0, false},
		{"70000", 0, false},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			mt, err := ParseMediaType(tc.in)
			if !tc.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, mt)
		})
	}
}
