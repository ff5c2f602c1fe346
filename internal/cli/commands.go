package cli

import (
	"io"

	"github.com/spf13/cobra"
)

func newRunCommand(outW io.Writer, flags *rootFlags) *cobra.Command {
	var jobs int
	var dryRun bool
	var noEnvs bool
	var condaBinary string

	cmd := &cobra.Command{
		Use:   "run [TARGET...]",
		Short: "Bring the requested targets up to date",
		Long: `Run resolves each TARGET to the chain of tasks that produces it, executes
the stale ones, and reports per-target outcomes. Without arguments the
workflow block's default targets are used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := flags.appConfig()
			cfg.Targets = args
			cfg.Jobs = jobs
			cfg.DryRun = dryRun
			cfg.NoEnvs = noEnvs
			cfg.CondaBinary = condaBinary

			a, err := newApp(cmd, outW, cfg)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Global execution slot budget (default: all CPUs)")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Plan and report without executing anything")
	cmd.Flags().BoolVar(&noEnvs, "no-envs", false, "Skip environment provisioning and run every task on the host")
	cmd.Flags().StringVar(&condaBinary, "conda", "", "Conda-compatible binary used for env provisioning (default: conda)")
	return cmd
}

func newCleanCommand(outW io.Writer, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean [TARGET...]",
		Short: "Remove all generated artifacts and task logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := flags.appConfig()
			cfg.Targets = args

			a, err := newApp(cmd, outW, cfg)
			if err != nil {
				return err
			}
			return a.Clean(cmd.Context())
		},
	}
}

func newGraphCommand(outW io.Writer, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "graph [TARGET...]",
		Short: "Print the dependency graph in DOT format",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := flags.appConfig()
			cfg.Targets = args
			// Keep the DOT stream clean of log lines.
			cfg.LogLevel = "error"

			a, err := newApp(cmd, outW, cfg)
			if err != nil {
				return err
			}
			return a.Graph(cmd.Context())
		},
	}
}

func newStatusCommand(outW io.Writer, flags *rootFlags) *cobra.Command {
	var last int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent runs from the run journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, outW, flags.appConfig())
			if err != nil {
				return err
			}
			return a.Status(cmd.Context(), last)
		},
	}
	cmd.Flags().IntVar(&last, "last", 10, "Number of recent runs to show")
	return cmd
}
