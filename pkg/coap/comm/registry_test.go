package comm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

func TestRegistryRegister(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 2
	r := NewRegistry(cfg)
	defer r.Stop()

	c1, c2, c3 := NewConn(cfg), NewConn(cfg), NewConn(cfg)
	require.NoError(t, r.Register(c1))
	require.Equal(t, ErrAlreadyRegistered, r.Register(c1))
	require.NoError(t, r.Register(c2))
	require.Equal(t, ErrRegistryFull, r.Register(c3))
	require.Equal(t, ErrAlreadyRegistered, r.Register(c2))
	require.Equal(t, []*Conn{c1, c2}, r.Conns())

	other := NewRegistry(cfg)
	defer other.Stop()
	require.Equal(t, ErrAlreadyRegistered, other.Register(c1))
	require.NoError(t, other.Register(c3))
}

func TestRegistryUnregister(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	r := NewRegistry(cfg)
	defer r.Stop()

	c1, c2 := NewConn(cfg), NewConn(cfg)
	require.NoError(t, r.Register(c1))
	require.Equal(t, ErrRegistryFull, r.Register(c2))
	require.False(t, r.Unregister(c2))
	require.True(t, r.Unregister(c1))
	require.Empty(t, r.Conns())
	require.NoError(t, r.Register(c2))
	// c1 may join another registry
	other := NewRegistry(cfg)
	defer other.Stop()
	require.NoError(t, other.Register(c1))
}

func TestRegistryRestart(t *testing.T) {
	cfg := testConfig()
	r := NewRegistry(cfg)
	require.NoError(t, r.Register(NewConn(cfg)))
	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())

	conn := NewConn(cfg)
	require.NoError(t, r.Register(conn))
	defer r.Stop()
	tr := newTestTransport()
	require.NoError(t, conn.Attach(tr))
	defer conn.Close()

	tr.readCh <- marshal(t, &msgs.Message{Code: msgs.Ping})
	select {
	case frame := <-tr.writeCh:
		msg, err := msgs.Unmarshal(frame)
		require.NoError(t, err)
		require.Equal(t, msgs.Pong, msg.Code)
	case <-time.After(testWait):
		t.Fatal("worker not restarted")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	cfg := testConfig()
	r := NewRegistry(cfg)
	defer r.Stop()

	var transports []*testTransport
	for n := 0; n < 3; n++ {
		conn := NewConn(cfg)
		require.NoError(t, r.Register(conn))
		tr := newTestTransport()
		require.NoError(t, conn.Attach(tr))
		transports = append(transports, tr)
	}
	require.NoError(t, r.CloseAll())
	for _, tr := range transports {
		require.True(t, tr.closed())
	}
	for _, conn := range r.Conns() {
		require.False(t, conn.Connected())
	}
	require.Len(t, r.Conns(), 3)
}

func TestAttachUsesDefaultRegistry(t *testing.T) {
	conn := NewConn(testConfig())
	require.NoError(t, conn.Attach(newTestTransport()))
	defer conn.Close()
	require.Contains(t, DefaultRegistry().Conns(), conn)
}

// expectParked waits for the worker to settle and checks it runs no cycle
// for several wake intervals.
func (c *connTestCtx) expectParked() uint64 {
	interval := c.conn.Config().WakeInterval.Duration()
	time.Sleep(3 * interval)
	cycles := c.registry.Cycles()
	time.Sleep(5 * interval)
	require.Equal(c.t, cycles, c.registry.Cycles(), "worker not parked")
	return cycles
}

func (c *connTestCtx) expectTicking(since uint64) {
	interval := c.conn.Config().WakeInterval.Duration()
	require.Eventually(c.t, func() bool {
		return c.registry.Cycles() >= since+3
	}, testWait, interval)
}

func TestRegistryParksWhenIdle(t *testing.T) {
	c := newConnTestCtx(t, nil)
	cycles := c.expectParked()

	require.NoError(t, c.conn.Ping())
	msg := c.expectFrame()
	require.Equal(t, msgs.Ping, msg.Code)
	c.expectTicking(cycles)
	c.inject(&msgs.Message{Code: msgs.Pong, Token: msg.Token})
	c.expectEvent(EventPong)
	cycles = c.expectParked()

	resps := newResponses()
	msg = c.mustSubmit(&Request{Method: msgs.GET, Path: "/a", Handler: resps.handler()})
	c.expectTicking(cycles)
	c.inject(&msgs.Message{Code: msgs.Content, Token: msg.Token})
	require.NoError(t, resps.expect(t).Err)
	c.expectParked()
}
