package comm

import (
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

// SendCSM announces our capabilities: BufferSize as Max-Message-Size and
// block-wise transfer support if enabled.
func (c *Conn) SendCSM() error {
	opts := msgs.Options{}.AddUint(msgs.MaxMessageSize, uint32(c.cfg.BufferSize))
	if c.cfg.BlockWise {
		opts = opts.Add(msgs.BlockWiseTransfer, nil)
	}
	return c.sendSignal(msgs.CSM, opts, nil)
}

// Ping sends a Ping. The round trip time is reported by EventPong.
func (c *Conn) Ping() error {
	return c.sendSignal(msgs.Ping, nil, nil)
}

// Release asks the peer for an orderly teardown. Both arguments are optional.
func (c *Conn) Release(altAddress string, holdOff time.Duration) error {
	var opts msgs.Options
	if altAddress != "" {
		opts = opts.AddString(msgs.AlternativeAddress, altAddress)
	}
	if holdOff > 0 {
		opts = opts.AddUint(msgs.HoldOff, uint32(holdOff/time.Second))
	}
	return c.sendSignal(msgs.Release, opts, nil)
}

// Abort tells the peer the connection can't be used any more.
// The transport is not closed.
func (c *Conn) Abort(diagnostic string) error {
	var payload []byte
	if diagnostic != "" {
		payload = []byte(diagnostic)
	}
	return c.sendSignal(msgs.Abort, nil, payload)
}

func (c *Conn) sendSignal(code msgs.Code, opts msgs.Options, payload []byte) error {
	msg := &msgs.Message{Code: code, Options: opts, Payload: payload}
	frame, err := msg.Marshal()
	if err != nil {
		return err
	}
	c.lock.Lock()
	if c.state != stateConnected {
		c.lock.Unlock()
		return ErrNotConnected
	}
	t := c.transport
	if code == msgs.Ping {
		c.pingPending, c.pingAt = true, c.now()
	}
	c.lock.Unlock()
	glog.V(2).Infof("SND %s", msg)
	if err = c.writeFrame(t, frame, kindSignal); err != nil {
		c.fail(err)
		return err
	}
	if code == msgs.Ping {
		c.wake()
	}
	return nil
}

func (c *Conn) handleSignalLocked(msg *msgs.Message) *actions {
	glog.V(2).Infof("RCV %s", msg)
	a := &actions{transport: c.transport}
	evt := &Event{Message: msg}
	switch msg.Code {
	case msgs.CSM:
		if v, ok := msg.Options.Uint(msgs.MaxMessageSize); ok {
			c.maxMsgSize = int(v)
		}
		// capabilities only accumulate
		if msg.Options.Has(msgs.BlockWiseTransfer) {
			c.peerBlockWise = true
		}
		evt.Type, evt.MaxMessageSize, evt.BlockWise = EventCSM, c.maxMsgSize, c.peerBlockWise
	case msgs.Ping:
		pong := &msgs.Message{Code: msgs.Pong, Token: msg.Token}
		frame, err := pong.Marshal()
		if err != nil {
			glog.Warningf("encode Pong: %v", err)
			return nil
		}
		a.writes = append(a.writes, frame)
		return a
	case msgs.Pong:
		if !c.pingPending {
			glog.V(2).Info("unexpected Pong")
			return nil
		}
		c.pingPending = false
		evt.Type, evt.RTT = EventPong, c.now().Sub(c.pingAt)
		pingRTT.Observe(evt.RTT.Seconds())
	case msgs.Release:
		evt.Type = EventRelease
		if v, ok := msg.Options.Bytes(msgs.AlternativeAddress); ok {
			evt.AltAddress = string(v)
		}
		if v, ok := msg.Options.Uint(msgs.HoldOff); ok {
			evt.HoldOff = time.Duration(v) * time.Second
		}
	case msgs.Abort:
		evt.Type, evt.Diagnostic = EventAbort, string(msg.Payload)
		if v, ok := msg.Options.Uint(msgs.BadCSMOption); ok {
			evt.BadCSMOption = msgs.OptionID(v)
		}
	default:
		glog.Warningf("ignore signal %s", msg.Code)
		return nil
	}
	a.events = append(a.events, evt)
	return a
}
