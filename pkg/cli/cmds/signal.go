package cmds

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/robotalks/coap.go/pkg/coap/comm"
)

func (r *Root) pingCmd() *cobra.Command {
	var count int
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Send Ping signals and report round trip times",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pongCh := make(chan time.Duration, 1)
			conn, err := r.connect(cmd.Context(), comm.HandleEventFunc(func(evt *comm.Event) {
				if evt.Type == comm.EventPong {
					select {
					case pongCh <- evt.RTT:
					default:
					}
					return
				}
				printEvent(evt)
			}))
			if err != nil {
				return err
			}
			defer conn.Close()

			out := cmd.OutOrStdout()
			for n := 0; count <= 0 || n < count; n++ {
				if n > 0 {
					select {
					case <-time.After(interval):
					case <-cmd.Context().Done():
						return nil
					}
				}
				if err = conn.Ping(); err != nil {
					return err
				}
				select {
				case rtt := <-pongCh:
					fmt.Fprintf(out, "Pong from %s: seq=%d rtt=%s\n", r.Config.URL, n, rtt)
				case <-time.After(r.Timeout):
					fmt.Fprintf(out, "Pong from %s: seq=%d timeout\n", r.Config.URL, n)
				case <-cmd.Context().Done():
					return nil
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of pings, 0 for unlimited.")
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "Interval between pings.")
	return cmd
}

func (r *Root) releaseCmd() *cobra.Command {
	var holdOff time.Duration
	cmd := &cobra.Command{
		Use:   "release [ALT-ADDRESS]",
		Short: "Ask the peer to release the connection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var alt string
			if len(args) > 0 {
				alt = args[0]
			}
			conn, err := r.connect(cmd.Context(), comm.HandleEventFunc(printEvent))
			if err != nil {
				return err
			}
			defer conn.Close()
			return conn.Release(alt, holdOff)
		},
	}
	cmd.Flags().DurationVar(&holdOff, "hold-off", 0, "Hold-Off option, whole seconds.")
	return cmd
}
