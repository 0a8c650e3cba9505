package comm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

type connState int

const (
	stateIdle connState = iota
	stateConnected
	stateFailed
	stateClosed
)

// Conn is a CoAP client connection over one transport.
type Conn struct {
	// Dialer is used by Connect, TCPDialer if nil.
	Dialer Dialer
	// SocketHook is invoked on dialed transports before use.
	SocketHook SocketHook
	// Events receives connection level events.
	Events EventHandler

	cfg      *Config
	registry atomic.Pointer[Registry]
	readable atomic.Bool

	lock          sync.Mutex
	writeLock     sync.Mutex
	state         connState
	transport     Transport
	pump          *pump
	rx            *Reassembler
	slots         slotTable
	maxMsgSize    int
	peerBlockWise bool
	echo          []byte
	pingPending   bool
	pingAt        time.Time
	// terminal deliveries held until the running callback returns
	deferred map[slotGen]*delivery

	now func() time.Time
}

// NewConn creates a Conn. DefaultConfig is used if cfg is nil.
func NewConn(cfg *Config) *Conn {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &Conn{
		cfg:        cfg,
		rx:         NewReassembler(int(cfg.BufferSize)),
		slots:      newSlotTable(cfg.MaxExchanges, cfg.ExchangeLifetime.Duration()),
		maxMsgSize: DefaultMaxMessageSize,
		now:        time.Now,
	}
	return c
}

// Config returns the configuration.
func (c *Conn) Config() *Config {
	return c.cfg
}

// Connect dials addr and attaches the transport. A CSM is sent
// afterwards, failing to send it doesn't fail Connect.
func (c *Conn) Connect(ctx context.Context, addr string) error {
	dialer := c.Dialer
	if dialer == nil {
		dialer = TCPDialer
	}
	t, err := dialer.Dial(ctx, addr)
	if err != nil {
		return err
	}
	if hook := c.SocketHook; hook != nil {
		if err = hook(t); err != nil {
			t.Close()
			return err
		}
	}
	if err = c.Attach(t); err != nil {
		t.Close()
		return err
	}
	glog.Infof("connected %s", addr)
	if err = c.SendCSM(); err != nil {
		glog.Warningf("send CSM to %s: %v", addr, err)
	}
	return nil
}

// Attach uses an established transport. The conn is registered with
// DefaultRegistry if it's not registered yet.
func (c *Conn) Attach(t Transport) error {
	if c.registry.Load() == nil {
		if err := DefaultRegistry().Register(c); err != nil && err != ErrAlreadyRegistered {
			return err
		}
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.transport != nil {
		return ErrAlreadyConnected
	}
	c.transport, c.state = t, stateConnected
	c.rx.Reset()
	c.resetPeerLocked()
	c.pump = newPump(t, c.rx.Cap(), c.markReadable)
	go c.pump.run()
	return nil
}

// Connected indicates a usable transport is attached.
func (c *Conn) Connected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state == stateConnected
}

// PeerMaxMessageSize returns the negotiated Max-Message-Size of the peer.
func (c *Conn) PeerMaxMessageSize() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.maxMsgSize
}

// PeerBlockWise indicates the peer announced block-wise transfer support.
func (c *Conn) PeerBlockWise() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.peerBlockWise
}

// Submit admits a request and sends its first frame. The response is
// delivered to req.Handler asynchronously. Admission and build failures
// are returned without invoking the handler.
func (c *Conn) Submit(req *Request) error {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.cfg.RequestTimeout.Duration()
	}
	c.lock.Lock()
	var s *slot
	for {
		if c.state != stateConnected {
			c.lock.Unlock()
			return ErrNotConnected
		}
		now := c.now()
		if s = c.slots.free(now); s != nil {
			break
		}
		victim := c.slots.evictable(now)
		if victim == nil {
			c.lock.Unlock()
			return ErrNoSlot
		}
		glog.V(2).Infof("evict exchange token=%x", victim.token)
		d := c.terminateLocked(victim, ErrEvicted)
		c.lock.Unlock()
		d.run()
		c.lock.Lock()
	}
	lastActive := s.lastActive
	c.slots.admit(s, req, timeout, c.now())
	frame, err := c.buildLocked(s, buildFresh)
	if err != nil {
		c.slots.release(s, false)
		s.lastActive = lastActive
		c.lock.Unlock()
		return err
	}
	t := c.transport
	glog.V(2).Infof("SND %s %s token=%x", req.Method, req.Path, s.token)
	c.lock.Unlock()
	if err = c.writeFrame(t, frame, kindRequest); err != nil {
		c.fail(err)
		return nil
	}
	c.wake()
	return nil
}

// Do submits a request and waits for the whole response body.
// Observe is ignored.
func (c *Conn) Do(ctx context.Context, req *Request) (*Result, error) {
	r := *req
	r.Observe = false
	var res Result
	doneCh := make(chan error, 1)
	r.Handler = HandleResponseFunc(func(resp *Response) {
		if resp.Err != nil {
			doneCh <- resp.Err
			return
		}
		if len(resp.Payload) > 0 {
			if resp.Offset <= len(res.Payload) {
				res.Payload = append(res.Payload[:resp.Offset], resp.Payload...)
			} else {
				res.Payload = append(res.Payload, resp.Payload...)
			}
		}
		res.Code, res.Message = resp.Code, resp.Message
		if resp.Last {
			doneCh <- nil
		}
	})
	if err := c.Submit(&r); err != nil {
		return nil, err
	}
	select {
	case err := <-doneCh:
		if err != nil {
			return nil, err
		}
		return &res, nil
	case <-ctx.Done():
		c.Cancel(&r)
		return nil, ctx.Err()
	}
}

// Cancel terminates the exchange of req with ErrCanceled.
// It returns false if req is not ongoing.
func (c *Conn) Cancel(req *Request) bool {
	c.lock.Lock()
	s := c.slots.findRequest(req)
	if s == nil {
		c.lock.Unlock()
		return false
	}
	d := c.terminateLocked(s, ErrCanceled)
	c.lock.Unlock()
	d.run()
	return true
}

// CancelAll terminates every ongoing exchange with ErrCanceled, then
// waits one wake interval for the worker to settle.
func (c *Conn) CancelAll() {
	c.lock.Lock()
	ds := c.terminateAllLocked(ErrCanceled)
	c.lock.Unlock()
	runDeliveries(ds)
	time.Sleep(c.cfg.WakeInterval.Duration())
}

// Reset cancels all exchanges and forgets everything learned from the peer.
// The transport stays attached.
func (c *Conn) Reset() {
	c.lock.Lock()
	ds := c.terminateAllLocked(ErrCanceled)
	for n := range c.slots.slots {
		if s := &c.slots.slots[n]; !s.ongoing {
			s.lastActive = time.Time{}
		}
	}
	c.resetPeerLocked()
	c.rx.Reset()
	c.lock.Unlock()
	runDeliveries(ds)
}

// Close cancels all exchanges and closes the transport.
// The conn stays in its registry and may be connected again.
func (c *Conn) Close() error {
	c.lock.Lock()
	ds := c.terminateAllLocked(ErrCanceled)
	if c.state != stateIdle {
		c.state = stateClosed
	}
	t, p := c.detachLocked()
	c.lock.Unlock()
	runDeliveries(ds)
	if p != nil {
		p.stop()
	}
	if t != nil {
		return t.Close()
	}
	return nil
}

func (c *Conn) resetPeerLocked() {
	c.maxMsgSize = DefaultMaxMessageSize
	c.peerBlockWise = false
	c.echo = nil
	c.pingPending = false
}

func (c *Conn) detachLocked() (Transport, *pump) {
	t, p := c.transport, c.pump
	c.transport, c.pump = nil, nil
	c.pingPending = false
	return t, p
}

// fail tears down the transport and reports cause to every exchange.
func (c *Conn) fail(cause error) {
	c.lock.Lock()
	if c.state != stateConnected {
		c.lock.Unlock()
		return
	}
	c.state = stateFailed
	ds := c.terminateAllLocked(&ConnError{Cause: cause})
	t, p := c.detachLocked()
	c.rx.Reset()
	c.lock.Unlock()

	glog.Errorf("connection failed: %v", cause)
	if isFramingError(cause) {
		msg := &msgs.Message{Code: msgs.Abort, Payload: []byte(cause.Error())}
		if frame, err := msg.Marshal(); err == nil {
			c.writeFrame(t, frame, kindSignal)
		}
	}
	p.stop()
	t.Close()
	runDeliveries(ds)
	c.emit(&Event{Type: EventFailed, Err: cause})
}

func isFramingError(err error) bool {
	return errors.Is(err, ErrFrameTooLarge) || errors.Is(err, msgs.ErrInvalidTokenLen)
}

func (c *Conn) writeFrame(t Transport, frame []byte, kind string) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if _, err := t.Write(frame); err != nil {
		return err
	}
	framesSent.WithLabelValues(kind).Inc()
	return nil
}

func (c *Conn) emit(evt *Event) {
	evt.Conn = c
	glog.V(2).Infof("event %s", evt.Type)
	if h := c.Events; h != nil {
		h.HandleEvent(evt)
	}
}

func (c *Conn) markReadable() {
	c.readable.Store(true)
	c.wake()
}

func (c *Conn) wake() {
	if r := c.registry.Load(); r != nil {
		r.Wake()
	}
}

// hasWork indicates the worker must keep sweeping this conn.
func (c *Conn) hasWork() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state == stateConnected && (c.pingPending || c.slots.hasOngoing())
}

// service reads once from the transport and dispatches complete frames.
func (c *Conn) service() {
	c.lock.Lock()
	p := c.pump
	if p == nil || c.state != stateConnected {
		c.lock.Unlock()
		return
	}
	if _, err := c.rx.Fill(p); err != nil && err != ErrWouldBlock {
		c.lock.Unlock()
		c.fail(err)
		return
	}
	for c.state == stateConnected && c.pump == p {
		size, err := c.rx.Next()
		if err != nil {
			c.lock.Unlock()
			c.fail(err)
			return
		}
		if size == 0 {
			break
		}
		msg, err := msgs.Unmarshal(c.rx.Frame(size))
		c.rx.Consume(size)
		if err != nil {
			glog.Warningf("drop malformed frame: %v", err)
			continue
		}
		acts := c.dispatchLocked(msg)
		c.lock.Unlock()
		c.perform(acts)
		c.lock.Lock()
	}
	if c.pump == p && p.buffered() {
		c.markReadable()
	}
	c.lock.Unlock()
}

// sweep terminates exchanges past their deadline.
func (c *Conn) sweep() {
	now := c.now()
	c.lock.Lock()
	var ds []*delivery
	for _, s := range c.slots.expired(now) {
		glog.V(2).Infof("exchange timeout token=%x", s.token)
		ds = append(ds, c.terminateLocked(s, ErrTimeout))
	}
	c.lock.Unlock()
	runDeliveries(ds)
}

type delivery struct {
	handler ResponseHandler
	resp    *Response
}

func (d *delivery) run() {
	if d != nil && d.handler != nil {
		d.handler.HandleResponse(d.resp)
	}
}

func runDeliveries(ds []*delivery) {
	for _, d := range ds {
		d.run()
	}
}

type slotGen struct {
	s   *slot
	gen uint64
}

// terminateLocked releases the slot and prepares the terminal delivery.
// While the slot's callback runs, the delivery is held and handed over by
// perform once the callback returns, unless that callback is already final.
func (c *Conn) terminateLocked(s *slot, err error) *delivery {
	req, inCallback, final, gen := s.req, s.inCallback, s.finalInCallback, s.gen
	c.slots.release(s, s.persistent)
	recordResult(err)
	d := &delivery{
		handler: req.Handler,
		resp:    &Response{Err: err, Last: true, Request: req},
	}
	if !inCallback {
		return d
	}
	glog.V(2).Infof("exchange terminated inside its callback: %v", err)
	if !final {
		if c.deferred == nil {
			c.deferred = make(map[slotGen]*delivery)
		}
		c.deferred[slotGen{s: s, gen: gen}] = d
	}
	return nil
}

// takeDeferredLocked pops the delivery held for a slot generation.
func (c *Conn) takeDeferredLocked(s *slot, gen uint64) *delivery {
	key := slotGen{s: s, gen: gen}
	d := c.deferred[key]
	delete(c.deferred, key)
	return d
}

func (c *Conn) terminateAllLocked(err error) []*delivery {
	var ds []*delivery
	for _, s := range c.slots.ongoing() {
		if d := c.terminateLocked(s, err); d != nil {
			ds = append(ds, d)
		}
	}
	return ds
}
