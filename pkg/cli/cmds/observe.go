package cmds

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robotalks/coap.go/pkg/cli/sh"
	"github.com/robotalks/coap.go/pkg/coap/comm"
	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

func (r *Root) observeCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "observe PATH",
		Short: "Observe a resource until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := r.connect(cmd.Context(), comm.HandleEventFunc(printEvent))
			if err != nil {
				return err
			}
			defer conn.Close()

			out := cmd.OutOrStdout()
			doneCh := make(chan error, 1)
			finish := func(err error) {
				select {
				case doneCh <- err:
				default:
				}
			}
			received, observable := 0, true
			req := &comm.Request{Method: msgs.GET, Path: args[0], Observe: true}
			req.Handler = comm.HandleResponseFunc(func(resp *comm.Response) {
				if resp.Err != nil {
					finish(resp.Err)
					return
				}
				if resp.Offset == 0 {
					observable = resp.Message.Options.Has(msgs.Observe)
				}
				fmt.Fprintln(out, sh.FormatNotification(resp))
				if !resp.Last {
					return
				}
				received++
				if !observable {
					finish(fmt.Errorf("not observable: %s", resp.Code))
					return
				}
				if count > 0 && received >= count {
					finish(nil)
				}
			})
			if err = conn.Submit(req); err != nil {
				return err
			}
			select {
			case err = <-doneCh:
			case <-cmd.Context().Done():
			}
			conn.Cancel(req)
			return err
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Stop after this number of notifications.")
	return cmd
}
