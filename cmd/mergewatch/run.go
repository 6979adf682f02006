package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/mergewatch/internal/functest"
	"github.com/steveyegge/mergewatch/internal/functest/suite"
	"github.com/steveyegge/mergewatch/internal/ui"
)

var suiteFile string

var runCmd = &cobra.Command{
	Use:   "run [test...]",
	Short: "Run functional tests against the merge service",
	Long: `Run the named tests, the tests a --suite manifest selects, or every known
test. A manifest's bot overrides the configured one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := selectTests(args)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			FatalErrorWithHint("no tests selected", "Check the tests and skip lists in the manifest")
		}

		env := newEnv(settings)
		tests, err := suite.Build(names, env)
		if err != nil {
			return err
		}
		logger.Info(fmt.Sprintf("Running %d tests against %s", len(tests), env.Bot))

		results, runErr := (&functest.Runner{Env: env, Tests: tests}).Run(rootCtx)
		outcomes := make([]ui.Outcome, len(results))
		for i, r := range results {
			outcomes[i] = ui.Outcome{Name: r.Name, Err: r.Err, Duration: r.Duration}
		}
		if !ui.WriteSummary(os.Stdout, outcomes) || runErr != nil {
			return fmt.Errorf("functional tests failed")
		}
		return nil
	},
}

// selectTests resolves the command's test list and applies the manifest's
// bot, if any.
func selectTests(args []string) ([]string, error) {
	if len(args) > 0 {
		return (&suite.Manifest{Tests: args}).Select()
	}
	if suiteFile == "" {
		return suite.Names(), nil
	}
	m, err := suite.LoadManifest(suiteFile)
	if err != nil {
		return nil, err
	}
	if m.Bot != "" {
		settings.Bot = m.Bot
	}
	return m.Select()
}

func init() {
	runCmd.Flags().StringVar(&suiteFile, "suite", "", "YAML manifest selecting tests")
	rootCmd.AddCommand(runCmd)
}
