package provision

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pipewright/internal/config"
	"pipewright/internal/ctxlog"
)

// Conda provisions environments with a conda-compatible tool (conda,
// mamba, micromamba). `env update --prune` is idempotent: it creates the
// environment when absent and reconciles it with the spec file otherwise.
//
// Environment creation downloads packages, so transient network failures
// are retried with exponential backoff. Task execution is never retried;
// only provisioning is.
type Conda struct {
	// Binary is the conda-compatible executable. Defaults to "conda".
	Binary string
	// MaxElapsed bounds the total retry window for one environment.
	MaxElapsed time.Duration
}

// NewConda creates a Conda provisioner using the given binary name, or
// "conda" when empty.
func NewConda(binary string) *Conda {
	if binary == "" {
		binary = "conda"
	}
	return &Conda{Binary: binary, MaxElapsed: 5 * time.Minute}
}

// Provision ensures the named environment matches its spec file.
func (c *Conda) Provision(ctx context.Context, env *config.Env) (Runner, error) {
	logger := ctxlog.FromContext(ctx).With("env", env.Name)
	logger.Info("Ensuring environment.", "spec", env.File)

	operation := func() error {
		cmd := exec.CommandContext(ctx, c.Binary,
			"env", "update", "--name", env.Name, "--file", env.File, "--prune", "--quiet")
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%s env update %s: %w: %s",
				c.Binary, env.Name, err, strings.TrimSpace(string(output)))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.MaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("provisioning environment %q: %w", env.Name, err)
	}

	logger.Info("Environment ready.")
	return &condaRunner{binary: c.Binary, env: env.Name}, nil
}

// condaRunner scopes scripts to a provisioned conda environment.
type condaRunner struct {
	binary string
	env    string
}

func (r *condaRunner) Command(ctx context.Context, script string) *exec.Cmd {
	return exec.CommandContext(ctx, r.binary, "run", "--name", r.env, "sh", "-c", script)
}
