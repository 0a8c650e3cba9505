package sh

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/robotalks/coap.go/pkg/coap/comm"
	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

// ParsePayload reads "@file" from a file, otherwise uses the text as is.
func ParsePayload(arg string) (comm.Payload, error) {
	if strings.HasPrefix(arg, "@") {
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, err
		}
		return comm.BytesPayload(data), nil
	}
	return comm.BytesPayload(arg), nil
}

// FormatPayload renders printable UTF-8 as text and anything else as hex.
func FormatPayload(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	if utf8.Valid(payload) && strings.IndexFunc(string(payload), notPrintable) < 0 {
		return string(payload)
	}
	return hex.EncodeToString(payload)
}

func notPrintable(r rune) bool {
	return !unicode.IsPrint(r) && !unicode.IsSpace(r)
}

// FormatResult prints a result with the size of its body.
func FormatResult(res *comm.Result) string {
	var sb strings.Builder
	sb.WriteString(res.Code.String())
	if res.Message != nil {
		if cf, ok := res.Message.Options.Uint(msgs.ContentFormat); ok {
			fmt.Fprintf(&sb, " cf=%d", cf)
		}
	}
	if len(res.Payload) > 0 {
		fmt.Fprintf(&sb, " (%s)\n%s", humanize.IBytes(uint64(len(res.Payload))), FormatPayload(res.Payload))
	}
	return sb.String()
}

// FormatNotification prints one delivery of an observation.
func FormatNotification(resp *comm.Response) string {
	path := ""
	if resp.Request != nil {
		path = resp.Request.Path
	}
	if resp.Err != nil {
		return fmt.Sprintf("[%s] %v", path, resp.Err)
	}
	seq := "-"
	if resp.Message != nil {
		if v, ok := resp.Message.Options.Uint(msgs.Observe); ok {
			seq = fmt.Sprint(v)
		}
	}
	return fmt.Sprintf("[%s #%s] %s %s", path, seq, resp.Code, FormatPayload(resp.Payload))
}

// FormatEvent prints a connection event.
func FormatEvent(evt *comm.Event) string {
	switch evt.Type {
	case comm.EventCSM:
		return fmt.Sprintf("peer CSM: max-message-size=%s block-wise=%v",
			humanize.IBytes(uint64(evt.MaxMessageSize)), evt.BlockWise)
	case comm.EventPong:
		return fmt.Sprintf("Pong rtt=%s", evt.RTT)
	case comm.EventRelease:
		return fmt.Sprintf("peer Release: alt=%q hold-off=%s", evt.AltAddress, evt.HoldOff)
	case comm.EventAbort:
		return fmt.Sprintf("peer Abort: %q bad-csm-option=%d", evt.Diagnostic, evt.BadCSMOption)
	case comm.EventFailed:
		return fmt.Sprintf("connection failed: %v", evt.Err)
	}
	return evt.Type.String()
}
