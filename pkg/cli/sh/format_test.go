package sh

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/coap.go/pkg/coap/comm"
	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

func TestFormatPayload(t *testing.T) {
	testCases := []struct {
		name     string
		payload  []byte
		expected string
	}{
		{"empty", nil, ""},
		{"text", []byte("22.5 C\n"), "22.5 C\n"},
		{"binary", []byte{0x00, 0xff, 0x10}, "00ff10"},
		{"invalid utf8", []byte{'a', 0xc3}, "61c3"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, FormatPayload(tc.payload))
		})
	}
}

func TestFormatResult(t *testing.T) {
	res := &comm.Result{
		Code:    msgs.Content,
		Payload: []byte("hello"),
		Message: &msgs.Message{Options: msgs.Options{}.AddUint(msgs.ContentFormat, 0)},
	}
	require.Equal(t, "2.05 Content cf=0 (5 B)\nhello", FormatResult(res))
	require.Equal(t, "2.04 Changed", FormatResult(&comm.Result{Code: msgs.Changed}))
}

func TestFormatNotification(t *testing.T) {
	req := &comm.Request{Path: "/temp"}
	resp := &comm.Response{
		Code:    msgs.Content,
		Payload: []byte("21"),
		Request: req,
		Message: &msgs.Message{Options: msgs.Options{}.AddUint(msgs.Observe, 7)},
	}
	require.Equal(t, "[/temp #7] 2.05 Content 21", FormatNotification(resp))
	require.Equal(t, "[/temp] timeout",
		FormatNotification(&comm.Response{Err: errors.New("timeout"), Request: req}))
}

func TestFormatEvent(t *testing.T) {
	require.Equal(t, "peer CSM: max-message-size=1.0 KiB block-wise=true",
		FormatEvent(&comm.Event{Type: comm.EventCSM, MaxMessageSize: 1024, BlockWise: true}))
	require.Equal(t, "Pong rtt=5ms",
		FormatEvent(&comm.Event{Type: comm.EventPong, RTT: 5 * time.Millisecond}))
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload("inline")
	require.NoError(t, err)
	require.Equal(t, comm.BytesPayload("inline"), p)

	fn := filepath.Join(t.TempDir(), "body.bin")
	require.NoError(t, os.WriteFile(fn, []byte{1, 2, 3}, 0644))
	p, err = ParsePayload("@" + fn)
	require.NoError(t, err)
	require.Equal(t, 3, p.Size())

	_, err = ParsePayload("@" + fn + ".missing")
	require.Error(t, err)
}
