package cmds

import (
	"github.com/spf13/cobra"

	"github.com/robotalks/coap.go/pkg/cli/sh"
)

func (r *Root) shellCmd() *cobra.Command {
	var evalOnly, noConnect bool
	cmd := &cobra.Command{
		Use:   "shell [COMMAND ARGS...]",
		Short: "Interactive shell over one connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := sh.New(r.Config, !evalOnly).WithAutoConnect(!noConnect)
			s.Timeout = r.Timeout
			return s.Run(args...)
		},
	}
	cmd.Flags().BoolVarP(&evalOnly, "eval", "e", false, "Evaluation only, no interactive shell.")
	cmd.Flags().BoolVar(&noConnect, "no-connect", false, "Don't connect on start.")
	return cmd
}
