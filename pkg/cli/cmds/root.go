// Package cmds provides the coapctl command tree.
package cmds

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/robotalks/coap.go/pkg/cli/sh"
	"github.com/robotalks/coap.go/pkg/coap/comm"
	"github.com/robotalks/coap.go/pkg/env"
)

// Root holds state shared by all commands.
type Root struct {
	Config  *env.Config
	Timeout time.Duration
	Command *cobra.Command
}

// New builds the command tree.
func New(conf *env.Config) *Root {
	r := &Root{Config: conf, Timeout: 30 * time.Second}
	r.Command = &cobra.Command{
		Use:           "coapctl",
		Short:         "CoAP client over TCP, TLS, WebSockets and MQTT tunnels",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// glog reads flags from the go flag set
			return flag.CommandLine.Parse(nil)
		},
	}
	conf.BindFlags(r.Command)
	flags := r.Command.PersistentFlags()
	flags.DurationVarP(&r.Timeout, "timeout", "t", r.Timeout, "Command timeout.")
	flags.AddGoFlagSet(flag.CommandLine)

	r.Command.AddCommand(
		r.requestCmd("get", false),
		r.requestCmd("post", true),
		r.requestCmd("put", true),
		r.requestCmd("delete", false),
		r.observeCmd(),
		r.pingCmd(),
		r.releaseCmd(),
		r.loadCmd(),
		r.shellCmd(),
	)
	return r
}

// Execute runs the command line.
func (r *Root) Execute(ctx context.Context) error {
	return r.Command.ExecuteContext(ctx)
}

func (r *Root) connect(ctx context.Context, events comm.EventHandler) (*comm.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	conn, err := r.Config.Connect(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", r.Config.URL, err)
	}
	return conn, nil
}

func printEvent(evt *comm.Event) {
	switch evt.Type {
	case comm.EventRelease, comm.EventAbort, comm.EventFailed:
		fmt.Fprintln(os.Stderr, sh.FormatEvent(evt))
	}
}
