package sh

import (
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/coap.go/pkg/coap/comm"
	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

func requestCmd(method msgs.Code, withPayload bool) func(c *ishell.Context, conn *comm.Conn) {
	return func(c *ishell.Context, conn *comm.Conn) {
		if len(c.Args) < 1 {
			c.Err(fmt.Errorf("PATH required"))
			return
		}
		req := &comm.Request{Method: method, Path: c.Args[0]}
		if withPayload {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("PAYLOAD required"))
				return
			}
			payload, err := ParsePayload(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			req.Payload = payload
			req.ContentFormat = msgs.TextPlain
			if len(c.Args) > 2 {
				if req.ContentFormat, err = msgs.ParseMediaType(c.Args[2]); err != nil {
					c.Err(err)
					return
				}
			}
		}
		res, err := ShellFrom(c).Do(conn, req)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(FormatResult(res))
	}
}

var (
	// ConnectCmd connects a peer.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[URL]",
		Func: func(c *ishell.Context) {
			var url string
			if len(c.Args) > 0 {
				url = c.Args[0]
			}
			if err := ShellFrom(c).Connect(url); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd closes the current connection.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// GetCmd sends GET.
	GetCmd = ishell.Cmd{
		Name: "get",
		Help: "PATH",
		Func: MustBeConnected(requestCmd(msgs.GET, false)),
	}

	// PostCmd sends POST.
	PostCmd = ishell.Cmd{
		Name: "post",
		Help: "PATH PAYLOAD|@FILE [CONTENT-FORMAT]",
		Func: MustBeConnected(requestCmd(msgs.POST, true)),
	}

	// PutCmd sends PUT.
	PutCmd = ishell.Cmd{
		Name: "put",
		Help: "PATH PAYLOAD|@FILE [CONTENT-FORMAT]",
		Func: MustBeConnected(requestCmd(msgs.PUT, true)),
	}

	// DeleteCmd sends DELETE.
	DeleteCmd = ishell.Cmd{
		Name:    "delete",
		Aliases: []string{"del"},
		Help:    "PATH",
		Func:    MustBeConnected(requestCmd(msgs.DELETE, false)),
	}

	// ObserveCmd observes a resource in the background.
	ObserveCmd = ishell.Cmd{
		Name:    "observe",
		Aliases: []string{"obs"},
		Help:    "PATH",
		Func: MustBeConnected(func(c *ishell.Context, conn *comm.Conn) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("PATH required"))
				return
			}
			if err := ShellFrom(c).Observe(conn, c.Args[0]); err != nil {
				c.Err(err)
			}
		}),
	}

	// CancelCmd cancels observations.
	CancelCmd = ishell.Cmd{
		Name: "cancel",
		Help: "[PATH]",
		Func: MustBeConnected(func(c *ishell.Context, conn *comm.Conn) {
			var path string
			if len(c.Args) > 0 {
				path = c.Args[0]
			}
			c.Printf("%d canceled\n", ShellFrom(c).CancelObserve(conn, path))
		}),
	}

	// PingCmd sends Ping, the RTT is printed when Pong arrives.
	PingCmd = ishell.Cmd{
		Name: "ping",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context, conn *comm.Conn) {
			if err := conn.Ping(); err != nil {
				c.Err(err)
			}
		}),
	}

	// CSMCmd sends CSM and prints the known peer capabilities.
	CSMCmd = ishell.Cmd{
		Name: "csm",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context, conn *comm.Conn) {
			if err := conn.SendCSM(); err != nil {
				c.Err(err)
				return
			}
			c.Printf("peer max-message-size=%d block-wise=%v\n",
				conn.PeerMaxMessageSize(), conn.PeerBlockWise())
		}),
	}

	// ReleaseCmd sends Release.
	ReleaseCmd = ishell.Cmd{
		Name: "release",
		Help: "[ALT-ADDRESS] [HOLD-OFF(s)]",
		Func: MustBeConnected(func(c *ishell.Context, conn *comm.Conn) {
			var alt string
			var holdOff time.Duration
			if len(c.Args) > 0 {
				alt = c.Args[0]
			}
			if len(c.Args) > 1 {
				secs, err := strconv.Atoi(c.Args[1])
				if err != nil {
					c.Err(fmt.Errorf("invalid HOLD-OFF: %v", err))
					return
				}
				holdOff = time.Duration(secs) * time.Second
			}
			if err := conn.Release(alt, holdOff); err != nil {
				c.Err(err)
			}
		}),
	}
)
