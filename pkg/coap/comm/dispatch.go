package comm

import (
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

// actions are the effects of one dispatched frame, performed after the
// conn lock is released.
type actions struct {
	transport Transport
	writes    [][]byte
	events    []*Event

	delivery *delivery
	slot     *slot
	gen      uint64
	// send the next block after the callback
	next bool
	// release the slot after the callback
	release bool
}

// dispatchLocked correlates one inbound frame.
func (c *Conn) dispatchLocked(msg *msgs.Message) *actions {
	if msg.Code.IsSignal() {
		framesReceived.WithLabelValues(kindSignal).Inc()
		return c.handleSignalLocked(msg)
	}
	framesReceived.WithLabelValues(kindResponse).Inc()
	if msg.Code == msgs.Empty {
		return nil
	}
	s := c.slots.find(msg.Token)
	if s == nil {
		glog.Warningf("drop %s: no exchange", msg)
		return nil
	}
	if s.inCallback {
		glog.Warningf("refuse nested delivery of %s", msg)
		return nil
	}
	glog.V(2).Infof("RCV %s", msg)
	now := c.now()
	s.lastActive = now
	a := &actions{transport: c.transport}

	if echo, ok := msg.Options.Bytes(msgs.Echo); ok {
		c.echo = append([]byte(nil), echo...)
		if msg.Code == msgs.Unauthorized && !s.echoRetried {
			s.echoRetried = true
			s.send.Reset()
			s.recv.Reset()
			s.requestTag, s.delivered = nil, 0
			frame, err := c.buildLocked(s, buildReconstruct)
			if err != nil {
				a.delivery = c.terminateLocked(s, err)
				return a
			}
			s.touch(now)
			a.writes = append(a.writes, frame)
			return a
		}
	}

	block2, hasBlock2 := msg.Options.Uint(msgs.Block2)
	blk := msgs.ParseBlock(block2)
	if s.persistent && !msg.Options.Has(msgs.Observe) && (!hasBlock2 || blk.Num == 0) {
		// registration refused, this is the final response
		s.persistent = false
	}

	resp := &Response{
		Code:    msg.Code,
		Payload: msg.Payload,
		Request: s.req,
		Message: msg,
	}
	switch {
	case hasBlock2:
		if blk.Num == 0 {
			s.recv.Init(blk.Size, 0)
			s.delivered = 0
		}
		var total int
		if size2, ok := msg.Options.Uint(msgs.Size2); ok {
			total = int(size2)
		}
		s.recv.Update(blk, total)
		resp.Offset = s.recv.Current
		resp.Last = !blk.More
		s.delivered += len(msg.Payload)
		if blk.More {
			if blk.Size.IsBERT() {
				s.recv.Advance(len(msg.Payload))
			} else {
				s.recv.Advance(blk.Size.Bytes())
			}
			a.next = true
		} else {
			s.recv.Reset()
		}
	case s.send.Active() && !s.send.Finished() && msg.Code.IsSuccess():
		if v, ok := msg.Options.Uint(msgs.Block1); ok {
			if acked := msgs.ParseBlock(v); acked.Size < s.send.Size && !s.send.Size.IsBERT() {
				s.send.Size = acked.Size
			}
		}
		resp.Offset = s.sentOffset
		a.next = true
	default:
		resp.Last = true
	}

	if !a.next {
		if s.persistent {
			s.deadline = time.Time{}
		} else {
			a.release = true
		}
	}
	s.inCallback, s.finalInCallback = true, a.release
	a.delivery = &delivery{handler: s.req.Handler, resp: resp}
	a.slot, a.gen = s, s.gen
	return a
}

// perform runs the effects of a dispatched frame without holding the lock.
func (c *Conn) perform(a *actions) {
	if a == nil {
		return
	}
	for _, frame := range a.writes {
		if err := c.writeFrame(a.transport, frame, kindFor(frame)); err != nil {
			c.fail(err)
			return
		}
	}
	for _, evt := range a.events {
		c.emit(evt)
	}
	if a.delivery == nil {
		return
	}
	a.delivery.run()
	if a.slot == nil {
		return
	}

	c.lock.Lock()
	s := a.slot
	if s.gen != a.gen || !s.ongoing {
		// terminated during the callback
		d := c.takeDeferredLocked(s, a.gen)
		c.lock.Unlock()
		d.run()
		return
	}
	s.inCallback = false
	var frame []byte
	var d *delivery
	switch {
	case a.next:
		f, err := c.buildLocked(s, buildContinue)
		if err != nil {
			d = c.terminateLocked(s, err)
			break
		}
		s.touch(c.now())
		frame = f
	case a.release:
		c.slots.release(s, false)
		recordResult(nil)
	}
	t := c.transport
	c.lock.Unlock()

	d.run()
	if frame != nil {
		if err := c.writeFrame(t, frame, kindRequest); err != nil {
			c.fail(err)
		}
	}
}

func kindFor(frame []byte) string {
	if len(frame) > 0 {
		hdr := msgs.HeaderLen(frame[0])
		if len(frame) > hdr && msgs.Code(frame[hdr]).IsSignal() {
			return kindSignal
		}
	}
	return kindRequest
}
