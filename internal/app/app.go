package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"pipewright/internal/config"
	"pipewright/internal/ctxlog"
)

// Config holds everything an App instance needs to run.
type Config struct {
	// WorkflowPath is an .hcl file or a directory of .hcl files.
	WorkflowPath string
	// ConfigPath is the TOML run configuration. A missing file yields the
	// zero configuration.
	ConfigPath string
	// Targets are the requested artifact paths. Empty means the workflow
	// block's default targets.
	Targets []string
	// Jobs is the global execution slot budget. Zero means all CPUs.
	Jobs int
	// DryRun plans and reports without executing anything.
	DryRun bool
	// NoEnvs disables environment provisioning; every task runs on the
	// host regardless of its env declaration.
	NoEnvs bool
	// CondaBinary is the conda-compatible executable used for
	// provisioning. Empty means "conda".
	CondaBinary string
	// WorkDir is the orchestrator's own state area (run lock, journal).
	WorkDir string
	// LogDir receives log files of tasks that declare no log path.
	LogDir string

	LogFormat string
	LogLevel  string
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.WorkflowPath == "" {
		out.WorkflowPath = "."
	}
	if out.ConfigPath == "" {
		out.ConfigPath = "pipeline.toml"
	}
	if out.CondaBinary == "" {
		out.CondaBinary = "conda"
	}
	if out.WorkDir == "" {
		out.WorkDir = ".pipewright"
	}
	if out.LogDir == "" {
		out.LogDir = "logs"
	}
	return &out
}

// App encapsulates the orchestrator's dependencies, configuration, and
// lifecycle. Construct it with New and drive it through Run, Clean,
// Graph, or Status.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	cfg    *Config
	model  *config.Model
	runCfg *config.RunConfig
}

// New loads the workflow and the run configuration and returns a fully
// initialized App with its own isolated logger.
func New(ctx context.Context, outW io.Writer, cfg *Config, loader config.Loader) (*App, error) {
	cfg = cfg.withDefaults()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)

	model, err := loader.Load(ctx, cfg.WorkflowPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	logger.Debug("Workflow loaded.", "rules", len(model.Rules), "envs", len(model.Envs))

	runCfg, err := config.LoadRunConfig(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load run configuration: %w", err)
	}
	logger.Debug("Run configuration loaded.", "path", cfg.ConfigPath)

	return &App{
		outW:   outW,
		logger: logger,
		cfg:    cfg,
		model:  model,
		runCfg: runCfg,
	}, nil
}

// Model returns the loaded workflow model. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}

// targets resolves the requested targets, falling back to the workflow
// block's defaults.
func (a *App) targets() ([]string, error) {
	if len(a.cfg.Targets) > 0 {
		return a.cfg.Targets, nil
	}
	if a.model.Defaults != nil && len(a.model.Defaults.Targets) > 0 {
		return a.model.Defaults.Targets, nil
	}
	return nil, fmt.Errorf("no targets requested and the workflow declares no defaults")
}
