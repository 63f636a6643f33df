package catalog

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Dependency is one declared package requirement: a normalized name plus
// an optional version constraint ("==1.26.4", ">=2.0", ...).
type Dependency struct {
	Name       string
	Constraint string
}

// String renders the dependency back into requirement syntax.
func (d Dependency) String() string {
	return d.Name + d.Constraint
}

// ParseManifest reads a pip requirements file. Comments, blank lines and
// pip option lines are skipped; resolution itself is delegated to pip, so
// only the name/constraint split matters here.
func ParseManifest(path string) ([]Dependency, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	var deps []Dependency
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}

		// Strip trailing comments and environment markers.
		if i := strings.IndexAny(line, "#;"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		deps = append(deps, parseRequirement(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	return deps, nil
}

func parseRequirement(line string) Dependency {
	// Package names never contain comparison characters, so the first one
	// starts the constraint.
	if i := strings.IndexAny(line, "=<>!~"); i >= 0 {
		return Dependency{
			Name:       NormalizeName(line[:i]),
			Constraint: strings.ReplaceAll(line[i:], " ", ""),
		}
	}
	return Dependency{Name: NormalizeName(line)}
}

// NormalizeName canonicalizes a package name so the same dependency
// declared as "Requests" and "requests" compares equal (PEP 503 folding).
func NormalizeName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, ".", "-")
	// Drop extras: "boto3[crt]" -> "boto3".
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return name
}

// Names returns the normalized name set of a dependency list.
func Names(deps []Dependency) map[string]bool {
	set := make(map[string]bool, len(deps))
	for _, d := range deps {
		set[d.Name] = true
	}
	return set
}
