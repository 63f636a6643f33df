package builder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/DrSkyle/layerline/pkg/catalog"
)

// Resolver vendors a dependency closure into a target directory.
// Resolution itself is delegated to the platform package manager; the
// builder only cares about the installed file set.
type Resolver interface {
	Install(ctx context.Context, deps []catalog.Dependency, target string) error
}

// PipResolver shells out to pip. The managed functions are Python, and
// re-implementing wheel resolution would be a much worse idea than running
// the real thing.
type PipResolver struct {
	// Python is the interpreter to run pip under. Defaults to python3.
	Python string
}

func (r *PipResolver) Install(ctx context.Context, deps []catalog.Dependency, target string) error {
	if len(deps) == 0 {
		return nil
	}

	python := r.Python
	if python == "" {
		python = "python3"
	}

	// pip wants a requirements file; hand it the exact declared set.
	var reqs strings.Builder
	for _, d := range deps {
		reqs.WriteString(d.String())
		reqs.WriteByte('\n')
	}
	reqFile := filepath.Join(os.TempDir(), fmt.Sprintf("layerline-reqs-%d.txt", time.Now().UnixNano()))
	if err := os.WriteFile(reqFile, []byte(reqs.String()), 0600); err != nil {
		return fmt.Errorf("failed to write requirements file: %w", err)
	}
	defer os.Remove(reqFile)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, python, "-m", "pip", "install",
		"--target", target,
		"--requirement", reqFile,
		"--no-compile",
		"--disable-pip-version-check",
		"--quiet",
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pip install failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}
