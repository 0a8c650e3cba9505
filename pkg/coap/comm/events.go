package comm

import (
	"fmt"
	"time"

	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

// EventType identifies connection level events.
type EventType int

// Event types.
const (
	// EventCSM is emitted when the peer's capabilities are received.
	EventCSM EventType = iota + 1
	// EventPong is emitted when a Pong answers our Ping.
	EventPong
	// EventRelease is emitted when the peer asks for an orderly teardown.
	EventRelease
	// EventAbort is emitted when the peer aborts the connection.
	EventAbort
	// EventFailed is emitted when the connection fails.
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventCSM:
		return "CSM"
	case EventPong:
		return "Pong"
	case EventRelease:
		return "Release"
	case EventAbort:
		return "Abort"
	case EventFailed:
		return "Failed"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is a connection level event.
type Event struct {
	Type EventType
	Conn *Conn

	// EventCSM
	MaxMessageSize int
	BlockWise      bool
	// EventPong
	RTT time.Duration
	// EventRelease
	AltAddress string
	HoldOff    time.Duration
	// EventAbort
	Diagnostic   string
	BadCSMOption msgs.OptionID
	// EventFailed
	Err error

	Message *msgs.Message
}

// EventHandler receives connection level events.
type EventHandler interface {
	HandleEvent(*Event)
}

// HandleEventFunc is func type of EventHandler.
type HandleEventFunc func(*Event)

// HandleEvent implements EventHandler.
func (f HandleEventFunc) HandleEvent(evt *Event) {
	f(evt)
}
