// Package catalog discovers deployable units from a repository tree.
//
// The layout convention comes from the managed repos: each directory whose
// name ends in "-lambda" holds one function (entrypoint app.py), and the
// "shared" directory holds the modules published as the shared Lambda layer.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// UnitKind tags a unit at discovery time. Downstream stages branch on the
// tag, never on directory names.
type UnitKind int

const (
	KindFunction UnitKind = iota
	KindSharedLayer
)

func (k UnitKind) String() string {
	switch k {
	case KindSharedLayer:
		return "SharedLayer"
	case KindFunction:
		return "Function"
	default:
		return "Unknown"
	}
}

// Unit is one deployable entity: a function or the shared layer.
type Unit struct {
	ID           string
	Kind         UnitKind
	Project      string
	SourceRoot   string
	Dependencies []Dependency
}

// ManifestPath returns the unit's dependency manifest location. The file
// may not exist for functions with no private dependencies.
func (u Unit) ManifestPath() string {
	return filepath.Join(u.SourceRoot, manifestName)
}

// DiscoveryError reports a directory that matches the unit naming
// convention but is missing a required descriptor file. It aborts the run
// before any build starts.
type DiscoveryError struct {
	Path   string
	Reason string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("unit layout error at %s: %s", e.Path, e.Reason)
}

const (
	functionSuffix = "-lambda"
	sharedDirName  = "shared"
	entrypointName = "app.py"
	manifestName   = "requirements.txt"
)

// Discover walks the repository root and returns all units, ordered
// lexicographically by ID so downstream parallel processing is
// reproducible. The walk is read-only and units are never persisted.
func Discover(repoRoot, project string) ([]Unit, error) {
	entries, err := os.ReadDir(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read repo root %s: %w", repoRoot, err)
	}

	var units []Unit
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		name := entry.Name()
		dir := filepath.Join(repoRoot, name)

		switch {
		case name == sharedDirName:
			u, err := discoverLayer(dir, project)
			if err != nil {
				return nil, err
			}
			units = append(units, u)

		case strings.HasSuffix(name, functionSuffix):
			u, err := discoverFunction(dir, name, project)
			if err != nil {
				return nil, err
			}
			units = append(units, u)
		}
	}

	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units, nil
}

// Layer returns the single shared-layer unit, or false when the project
// does not opt into layering.
func Layer(units []Unit) (Unit, bool) {
	for _, u := range units {
		if u.Kind == KindSharedLayer {
			return u, true
		}
	}
	return Unit{}, false
}

// Functions returns the function units in catalog order.
func Functions(units []Unit) []Unit {
	var fns []Unit
	for _, u := range units {
		if u.Kind == KindFunction {
			fns = append(fns, u)
		}
	}
	return fns
}

func discoverLayer(dir, project string) (Unit, error) {
	manifest := filepath.Join(dir, manifestName)
	if _, err := os.Stat(manifest); err != nil {
		return Unit{}, &DiscoveryError{Path: dir, Reason: "shared layer has no " + manifestName}
	}

	deps, err := ParseManifest(manifest)
	if err != nil {
		return Unit{}, &DiscoveryError{Path: manifest, Reason: err.Error()}
	}

	return Unit{
		ID:           project + "-shared",
		Kind:         KindSharedLayer,
		Project:      project,
		SourceRoot:   dir,
		Dependencies: deps,
	}, nil
}

func discoverFunction(dir, name, project string) (Unit, error) {
	if _, err := os.Stat(filepath.Join(dir, entrypointName)); err != nil {
		return Unit{}, &DiscoveryError{Path: dir, Reason: "missing entrypoint " + entrypointName}
	}

	u := Unit{
		ID:         name,
		Kind:       KindFunction,
		Project:    project,
		SourceRoot: dir,
	}

	// Function manifests are optional: absent means no private deps.
	manifest := filepath.Join(dir, manifestName)
	if _, err := os.Stat(manifest); err == nil {
		deps, err := ParseManifest(manifest)
		if err != nil {
			return Unit{}, &DiscoveryError{Path: manifest, Reason: err.Error()}
		}
		u.Dependencies = deps
	}

	return u, nil
}
