// Package provision abstracts the isolated execution environments that
// tasks may declare. The orchestrator treats environment management as an
// external capability: a Provisioner ensures a declared environment
// exists and hands back a Runner able to build commands scoped to it.
package provision

import (
	"context"
	"os/exec"

	"pipewright/internal/config"
)

// Runner builds commands that execute a shell script inside a provisioned
// environment. The returned command is not started.
type Runner interface {
	Command(ctx context.Context, script string) *exec.Cmd
}

// Provisioner ensures a declared environment exists, creating or updating
// it as needed, and returns a Runner scoped to it.
type Provisioner interface {
	Provision(ctx context.Context, env *config.Env) (Runner, error)
}

// hostRunner executes scripts directly in the host shell.
type hostRunner struct{}

func (hostRunner) Command(ctx context.Context, script string) *exec.Cmd {
	return exec.CommandContext(ctx, "sh", "-c", script)
}

// Passthrough is a Provisioner that performs no isolation: every task
// runs in the host environment. It backs tasks with no env declaration
// and the --no-envs escape hatch.
type Passthrough struct{}

// Provision implements Provisioner.
func (Passthrough) Provision(ctx context.Context, env *config.Env) (Runner, error) {
	return hostRunner{}, nil
}
