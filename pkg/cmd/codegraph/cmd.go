package codegraph

import (
	"os"

	"github.com/spf13/cobra"
)

func NewCodegraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codegraph",
		Short: "Chart source code metrics recorded per revision",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}

	cmd.AddCommand(
		NewRenderCommand(),
		NewImportCommand(),
		NewFetchCommand(),
		NewServeCommand(),
	)
	return cmd
}
