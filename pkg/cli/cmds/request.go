package cmds

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/robotalks/coap.go/pkg/cli/sh"
	"github.com/robotalks/coap.go/pkg/coap/comm"
	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

func (r *Root) requestCmd(name string, withPayload bool) *cobra.Command {
	method, err := msgs.ParseMethod(name)
	if err != nil {
		panic(err)
	}
	var contentFormat string
	var accept string
	var queries []string
	use := name + " PATH"
	argsCheck := cobra.ExactArgs(1)
	if withPayload {
		use += " PAYLOAD|@FILE"
		argsCheck = cobra.ExactArgs(2)
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Send %s", strings.ToUpper(name)),
		Args:  argsCheck,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &comm.Request{Method: method, Path: args[0], Timeout: r.Timeout}
			for _, q := range queries {
				req.Options = req.Options.AddString(msgs.URIQuery, q)
			}
			if accept != "" {
				mt, err := msgs.ParseMediaType(accept)
				if err != nil {
					return err
				}
				req.Options = req.Options.AddUint(msgs.Accept, uint32(mt))
			}
			if withPayload {
				payload, err := sh.ParsePayload(args[1])
				if err != nil {
					return err
				}
				if req.ContentFormat, err = msgs.ParseMediaType(contentFormat); err != nil {
					return err
				}
				req.Payload = payload
			}
			conn, err := r.connect(cmd.Context(), comm.HandleEventFunc(printEvent))
			if err != nil {
				return err
			}
			defer conn.Close()
			res, err := conn.Do(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sh.FormatResult(res))
			if !res.Code.IsSuccess() {
				return fmt.Errorf("request failed: %s", res.Code)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&accept, "accept", "a", "", "Accept option (name or number).")
	flags.StringArrayVarP(&queries, "query", "q", nil, "Uri-Query options, repeatable.")
	if withPayload {
		flags.StringVarP(&contentFormat, "content-format", "f", "text", "Content-Format of the payload (name or number).")
	}
	return cmd
}
