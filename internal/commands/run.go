package commands

import (
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the full validation run",
		Long: `Execute every phase in order: ramp, scenarios, pipeline iterations, and
the tenant-isolation suite. The verdict is evaluated over the combined
observations and the report written once at the end.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRunner(configPath)
			if err != nil {
				return err
			}
			return r.execute(cmd.Context(), "run", phases{
				ramp:      true,
				scenarios: true,
				pipeline:  true,
				isolation: true,
			})
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}

func newRampCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "ramp",
		Short: "Execute only the ramp phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRunner(configPath)
			if err != nil {
				return err
			}
			return r.execute(cmd.Context(), "ramp", phases{ramp: true})
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}

func newScenarioCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Execute only the configured benchmark scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRunner(configPath)
			if err != nil {
				return err
			}
			return r.execute(cmd.Context(), "scenario", phases{scenarios: true})
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}

func newPipelineCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Execute only the end-to-end pipeline iterations",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRunner(configPath)
			if err != nil {
				return err
			}
			return r.execute(cmd.Context(), "pipeline", phases{pipeline: true})
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}

func newIsolationCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "isolation",
		Short: "Execute only the tenant-isolation suite",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRunner(configPath)
			if err != nil {
				return err
			}
			return r.execute(cmd.Context(), "isolation", phases{isolation: true})
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}
