// Package cli wires the orchestrator's subcommands. Each command builds
// an App from the shared flags and hands control to internal/app.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pipewright/internal/app"
	"pipewright/internal/hclwf"
)

// ExitError is an error carrying a specific process exit code. Code 2 is
// reserved for usage errors.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	workflowPath string
	configPath   string
	workDir      string
	logDir       string
	logFormat    string
	logLevel     string
}

func (f *rootFlags) validate() error {
	f.logFormat = strings.ToLower(f.logFormat)
	if f.logFormat != "text" && f.logFormat != "json" {
		return usageError("invalid log-format: must be 'text' or 'json'")
	}
	f.logLevel = strings.ToLower(f.logLevel)
	switch f.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	return nil
}

func (f *rootFlags) appConfig() *app.Config {
	return &app.Config{
		WorkflowPath: f.workflowPath,
		ConfigPath:   f.configPath,
		WorkDir:      f.workDir,
		LogDir:       f.logDir,
		LogFormat:    f.logFormat,
		LogLevel:     f.logLevel,
	}
}

// newApp builds an App for one command invocation.
func newApp(cmd *cobra.Command, outW io.Writer, cfg *app.Config) (*app.App, error) {
	return app.New(cmd.Context(), outW, cfg, hclwf.NewLoader())
}

// NewRootCommand builds the pipewright command tree.
func NewRootCommand(outW io.Writer) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "pipewright",
		Short:         "A declarative, file-based incremental task orchestrator",
		Long: `Pipewright rebuilds file artifacts from declarative HCL rules. It resolves
requested target files to the tasks that produce them, skips everything
already up to date, and runs the rest concurrently under a core budget.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetOut(outW)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError("%s", err.Error())
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.workflowPath, "workflow", "f", "", "Workflow .hcl file or directory (default: current directory)")
	pf.StringVarP(&flags.configPath, "config", "c", "", "TOML run configuration file (default: pipeline.toml)")
	pf.StringVar(&flags.workDir, "work-dir", "", "Orchestrator state directory (default: .pipewright)")
	pf.StringVar(&flags.logDir, "log-dir", "", "Directory for task logs without a declared path (default: logs)")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log output format: 'text' or 'json'")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Logging level: 'debug', 'info', 'warn', or 'error'")

	rootCmd.AddCommand(newRunCommand(outW, flags))
	rootCmd.AddCommand(newCleanCommand(outW, flags))
	rootCmd.AddCommand(newGraphCommand(outW, flags))
	rootCmd.AddCommand(newStatusCommand(outW, flags))

	return rootCmd
}
