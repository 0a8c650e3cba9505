package comm

import (
	"bytes"
	"time"

	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

// slot is one exchange: free, ongoing, or cooling down after release.
type slot struct {
	ongoing    bool
	persistent bool
	lastActive time.Time
	timeout    time.Duration
	deadline   time.Time

	token      []byte
	requestTag []byte
	send       msgs.BlockContext
	recv       msgs.BlockContext
	// offset of the last block sent
	sentOffset int
	delivered  int

	// notifications keep arriving on the registration token
	observeToken []byte

	req             *Request
	inCallback      bool
	finalInCallback bool
	gen             uint64
	echoRetried     bool
}

type slotTable struct {
	slots    []slot
	lifetime time.Duration
}

func newSlotTable(size int, lifetime time.Duration) slotTable {
	return slotTable{slots: make([]slot, size), lifetime: lifetime}
}

func (t *slotTable) lifetimeElapsed(s *slot, now time.Time) bool {
	return s.lastActive.IsZero() || now.Sub(s.lastActive) >= t.lifetime
}

// free finds a slot which is not ongoing and has cooled down.
func (t *slotTable) free(now time.Time) *slot {
	for n := range t.slots {
		if s := &t.slots[n]; !s.ongoing && t.lifetimeElapsed(s, now) {
			return s
		}
	}
	return nil
}

// evictable finds the least recently active ongoing slot which is neither
// persistent nor within its lifetime.
func (t *slotTable) evictable(now time.Time) *slot {
	var victim *slot
	for n := range t.slots {
		s := &t.slots[n]
		if !s.ongoing || s.persistent || s.inCallback || !t.lifetimeElapsed(s, now) {
			continue
		}
		if victim == nil || s.lastActive.Before(victim.lastActive) {
			victim = s
		}
	}
	return victim
}

func (t *slotTable) admit(s *slot, req *Request, timeout time.Duration, now time.Time) {
	gen := s.gen + 1
	*s = slot{
		ongoing:    true,
		persistent: req.Observe,
		timeout:    timeout,
		req:        req,
		gen:        gen,
	}
	s.touch(now)
}

// release ends the exchange. Lifetime bookkeeping is kept unless clearLifetime.
func (t *slotTable) release(s *slot, clearLifetime bool) {
	lastActive := s.lastActive
	if clearLifetime {
		lastActive = time.Time{}
	}
	*s = slot{lastActive: lastActive, gen: s.gen + 1}
}

// find matches an ongoing slot by token, or a persistent slot by its
// registration token.
func (t *slotTable) find(token []byte) *slot {
	for n := range t.slots {
		if s := &t.slots[n]; s.ongoing && s.owns(token) {
			return s
		}
	}
	return nil
}

// findRequest matches an ongoing slot by request.
func (t *slotTable) findRequest(req *Request) *slot {
	for n := range t.slots {
		if s := &t.slots[n]; s.ongoing && s.req == req {
			return s
		}
	}
	return nil
}

func (t *slotTable) tokenInUse(token []byte, except *slot) bool {
	for n := range t.slots {
		if s := &t.slots[n]; s != except && s.ongoing && s.owns(token) {
			return true
		}
	}
	return false
}

// expired collects ongoing slots whose deadline passed.
func (t *slotTable) expired(now time.Time) []*slot {
	var slots []*slot
	for n := range t.slots {
		s := &t.slots[n]
		if s.ongoing && !s.inCallback && !s.deadline.IsZero() && !now.Before(s.deadline) {
			slots = append(slots, s)
		}
	}
	return slots
}

func (t *slotTable) ongoing() []*slot {
	var slots []*slot
	for n := range t.slots {
		if s := &t.slots[n]; s.ongoing {
			slots = append(slots, s)
		}
	}
	return slots
}

func (t *slotTable) hasOngoing() bool {
	for n := range t.slots {
		if t.slots[n].ongoing {
			return true
		}
	}
	return false
}

func (s *slot) owns(token []byte) bool {
	return bytes.Equal(s.token, token) ||
		(s.observeToken != nil && bytes.Equal(s.observeToken, token))
}

func (s *slot) touch(now time.Time) {
	s.lastActive = now
	if s.timeout > 0 {
		s.deadline = now.Add(s.timeout)
	} else {
		s.deadline = time.Time{}
	}
}
