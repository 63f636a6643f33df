package changes

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Runner executes an external command and returns its stdout. Abstracted
// so the detector can be tested without a git checkout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct {
	dir string
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.dir

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s failed: %s", name, string(exitErr.Stderr))
		}
		return nil, err
	}
	return output, nil
}
