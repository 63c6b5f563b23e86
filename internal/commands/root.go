// Package commands implements the headhunter-validate CLI.
//
// Purpose:
//
//	One subcommand per validation mode (full run, ramp, scenario, pipeline,
//	isolation, cost). Every traffic-generating command loads the typed run
//	configuration, executes its phases, writes the JSON report, and maps the
//	verdict onto the process exit code.
package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

// ErrValidationFailed marks a completed run whose verdict failed or whose
// error list is non-empty. main() translates it into exit code 1 without a
// stack trace: the report already has the details.
var ErrValidationFailed = errors.New("validation failed")

// NewRootCommand builds the CLI command tree.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "headhunter-validate",
		Short: "Validate a headhunter platform deployment",
		Long: `headhunter-validate generates controlled synthetic traffic against a
deployed headhunter platform and asserts latency, scaling, cost, and
tenant-isolation requirements. It is a single-shot run: the JSON report is
the diagnostic record and the exit code is the CI gate.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCommand())
	root.AddCommand(newRampCommand())
	root.AddCommand(newScenarioCommand())
	root.AddCommand(newPipelineCommand())
	root.AddCommand(newIsolationCommand())
	root.AddCommand(newCostCommand())

	return root
}

func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVar(configPath, "config", "validation.yaml", "Path to the run configuration file")
}
