package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/coap.go/pkg/transport/mqtt"
	"github.com/robotalks/coap.go/pkg/transport/stream"
	"github.com/robotalks/coap.go/pkg/transport/websocket"
)

func TestEndpoint(t *testing.T) {
	testCases := []struct {
		url  string
		addr string
		kind interface{}
	}{
		{"coap+tcp://host:1234", "host:1234", &stream.Dialer{}},
		{"coaps+tcp://host", "host", &stream.Dialer{}},
		{"coap+ws://host:80/coap", "host:80", &websocket.Dialer{}},
		{"coaps+ws://host", "host", &websocket.Dialer{}},
		{"coap+mqtt://broker:1883/prefix?peer=dev1", "dev1", &mqtt.Dialer{}},
	}
	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			conf := NewConfig()
			conf.URL = tc.url
			ep, err := conf.Endpoint()
			require.NoError(t, err)
			require.Equal(t, tc.addr, ep.Addr)
			require.IsType(t, tc.kind, ep.Dialer)
		})
	}
}

func TestEndpointDetails(t *testing.T) {
	conf := NewConfig()
	conf.URL, conf.MQTTClientID = "coap+mqtt://broker:1883/prefix?peer=dev1", "me"
	ep, err := conf.Endpoint()
	require.NoError(t, err)
	d := ep.Dialer.(*mqtt.Dialer)
	require.Equal(t, "mqtt://broker:1883/prefix", d.BrokerURL)
	require.Equal(t, "me", d.ClientID)

	conf.URL = "coaps+tcp://host"
	conf.Insecure = true
	ep, err = conf.Endpoint()
	require.NoError(t, err)
	sd := ep.Dialer.(*stream.Dialer)
	require.True(t, sd.TLS.InsecureSkipVerify)
	require.Equal(t, []string{stream.ALPN}, sd.TLS.NextProtos)
	require.NotNil(t, ep.Hook)

	conf.URL = "coap+ws://host/custom"
	ep, err = conf.Endpoint()
	require.NoError(t, err)
	require.Equal(t, "/custom", ep.Dialer.(*websocket.Dialer).Path)
}

func TestEndpointErrors(t *testing.T) {
	for _, u := range []string{
		"http://host",
		"coap+tcp://",
		"coap+mqtt://broker:1883/prefix",
		"://bad",
	} {
		t.Run(u, func(t *testing.T) {
			conf := NewConfig()
			conf.URL = u
			_, err := conf.Endpoint()
			require.Error(t, err)
		})
	}
}

func TestLoadConnConfig(t *testing.T) {
	conf := NewConfig()
	conf.ConfigFile = ""
	connConf, err := conf.LoadConnConfig()
	require.NoError(t, err)
	require.Equal(t, 4, connConf.MaxExchanges)

	fn := filepath.Join(t.TempDir(), "conn.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("max_exchanges: 2\nrequest_timeout: 2s\n"), 0644))
	conf.ConfigFile = fn
	connConf, err = conf.LoadConnConfig()
	require.NoError(t, err)
	require.Equal(t, 2, connConf.MaxExchanges)
	require.Equal(t, 2*time.Second, connConf.RequestTimeout.Duration())
}

func TestBindFlags(t *testing.T) {
	conf := NewConfig()
	cmd := &cobra.Command{Use: "test", Run: func(*cobra.Command, []string) {}}
	conf.BindFlags(cmd)
	cmd.SetArgs([]string{"-u", "coap+ws://x", "--insecure", "--metrics-addr", ":9090"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "coap+ws://x", conf.URL)
	require.True(t, conf.Insecure)
	require.Equal(t, ":9090", conf.MetricsAddr)
}

func TestLoadEnv(t *testing.T) {
	saved := defaultConfig
	t.Cleanup(func() { defaultConfig = saved })
	t.Setenv("COAP_URL", "coap+ws://envhost")
	t.Setenv("COAP_INSECURE", "true")
	t.Setenv("COAP_MQTT_CLIENT_ID", "env-client")
	LoadEnv()
	conf := NewConfig()
	require.Equal(t, "coap+ws://envhost", conf.URL)
	require.True(t, conf.Insecure)
	require.Equal(t, "env-client", conf.MQTTClientID)
}
