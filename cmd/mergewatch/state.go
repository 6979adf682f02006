package main

import (
	"github.com/spf13/cobra"

	"github.com/steveyegge/mergewatch/internal/ui"
)

var stateCmd = &cobra.Command{
	Use:   "state NODE...",
	Short: "Show the merge service's view of nodes and their edges",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api := newAPI(settings)
		for _, node := range args {
			bs, err := api.BranchState(rootCtx, settings.Bot, node)
			if err != nil {
				return err
			}
			printf("%s\n", ui.RenderBranchState(bs))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
}
