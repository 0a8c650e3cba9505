package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchTopic(t *testing.T) {
	testCases := []struct {
		topic, filter string
		match         bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/+/c", true},
		{"a/b/c", "+/+/+", true},
		{"a/b/c", "a/#", true},
		{"a/b/c", "#", true},
		{"a/b", "a/b/#", true},
		{"a/b/c", "a/b", false},
		{"a/b", "a/b/c", false},
		{"a/b/c", "a/+", false},
		{"a/x/c", "a/b/c", false},
		{"dev/rsp", "dev/rsp", true},
	}
	for _, tc := range testCases {
		t.Run(tc.topic+"~"+tc.filter, func(t *testing.T) {
			require.Equal(t, tc.match, MatchTopic(tc.topic, tc.filter))
		})
	}
}

func TestClientOptionsFromURL(t *testing.T) {
	testCases := []struct {
		url      string
		server   string
		prefix   string
		user     string
		clientID string
	}{
		{"mqtt://localhost:1883", "tcp://localhost:1883", "", "", ""},
		{"mqtt://localhost:1883/coap/", "tcp://localhost:1883", "coap/", "", ""},
		{"mqtts://u:p@broker:8883/a/b?client-id=me", "ssl://broker:8883", "a/b/", "u", "me"},
		{"ws://broker:80/x", "ws://broker:80", "x/", "", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			opts, prefix, err := ClientOptionsFromURL(tc.url)
			require.NoError(t, err)
			require.Len(t, opts.Servers, 1)
			require.Equal(t, tc.server, opts.Servers[0].String())
			require.Equal(t, tc.prefix, prefix)
			require.Equal(t, tc.user, opts.Username)
			require.Equal(t, tc.clientID, opts.ClientID)
		})
	}
}
