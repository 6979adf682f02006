package main

import (
	"github.com/spf13/cobra"

	"github.com/steveyegge/mergewatch/internal/functest/suite"
	"github.com/steveyegge/mergewatch/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known functional tests",
	Long:  `List every known test, or the ones a --suite manifest selects.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := selectTests(nil)
		if err != nil {
			return err
		}
		selected := make(map[string]bool, len(names))
		for _, n := range names {
			selected[n] = true
		}
		for _, n := range suite.Names() {
			if selected[n] {
				printf("%s %s\n", ui.RenderPassIcon(), n)
			} else {
				printf("%s %s\n", ui.RenderSkipIcon(), ui.RenderMuted(n))
			}
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&suiteFile, "suite", "", "YAML manifest selecting tests")
	rootCmd.AddCommand(listCmd)
}
