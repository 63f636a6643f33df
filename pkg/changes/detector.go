// Package changes determines which units differ between two revisions.
package changes

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/DrSkyle/layerline/pkg/catalog"
)

// ComparisonError reports an unusable revision pair (e.g. shallow history
// missing the base commit). It is fatal for the run: silently treating the
// tree as all-changed or all-unchanged would be wrong in different ways.
type ComparisonError struct {
	Revision string
	Err      error
}

func (e *ComparisonError) Error() string {
	return fmt.Sprintf("cannot resolve revision %q: %v", e.Revision, e.Err)
}

func (e *ComparisonError) Unwrap() error { return e.Err }

// Detector computes ChangeSets from git history.
type Detector struct {
	runner   Runner
	repoRoot string
}

// NewDetector creates a detector for the repository at repoRoot.
func NewDetector(repoRoot string) *Detector {
	return &Detector{runner: &execRunner{dir: repoRoot}, repoRoot: repoRoot}
}

// NewDetectorWithRunner injects a command runner (tests).
func NewDetectorWithRunner(repoRoot string, r Runner) *Detector {
	return &Detector{runner: r, repoRoot: repoRoot}
}

// Changed returns the set of unit IDs whose source tree differs between
// base and head. An empty base means no prior deployment exists: every
// unit is treated as changed (deliberate first-run fallback, not an error).
func (d *Detector) Changed(ctx context.Context, base, head string, units []catalog.Unit) (map[string]bool, error) {
	changed := make(map[string]bool, len(units))

	if base == "" {
		for _, u := range units {
			changed[u.ID] = true
		}
		return changed, nil
	}

	for _, rev := range []string{base, head} {
		if err := d.verify(ctx, rev); err != nil {
			return nil, &ComparisonError{Revision: rev, Err: err}
		}
	}

	out, err := d.runner.Run(ctx, "git", "diff", "--name-only", base, head)
	if err != nil {
		return nil, fmt.Errorf("git diff %s..%s failed: %w", base, head, err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		path := strings.TrimSpace(line)
		if path == "" {
			continue
		}
		for _, u := range units {
			if changed[u.ID] {
				continue
			}
			if underRoot(d.repoRoot, u.SourceRoot, path) {
				changed[u.ID] = true
			}
		}
	}

	return changed, nil
}

func (d *Detector) verify(ctx context.Context, rev string) error {
	_, err := d.runner.Run(ctx, "git", "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	return err
}

// underRoot reports whether a repo-relative changed path falls inside the
// unit's source root.
func underRoot(repoRoot, sourceRoot, changedPath string) bool {
	rel, err := filepath.Rel(repoRoot, sourceRoot)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	changedPath = filepath.ToSlash(changedPath)
	return changedPath == rel || strings.HasPrefix(changedPath, rel+"/")
}
