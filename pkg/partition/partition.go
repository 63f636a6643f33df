// Package partition splits a function's declared dependencies into the set
// already satisfied by the shared layer and the function-private remainder.
//
// This is the correctness-critical step of the pipeline: under-partitioning
// bloats every function and risks two incompatible copies of a package
// coexisting at runtime; over-partitioning surfaces as a missing module at
// invocation time. Conflicts are rejected loudly instead of letting a
// private copy shadow the layer's.
package partition

import (
	"fmt"
	"sort"

	"github.com/DrSkyle/layerline/pkg/catalog"
)

// Partition holds the two disjoint dependency sets for one function unit.
type Partition struct {
	// ProvidedByLayer lists normalized names satisfied by the layer closure.
	ProvidedByLayer []string
	// Private lists the requirements the function must vendor itself.
	Private []catalog.Dependency
}

// ConflictError reports a function constraint that the layer's copy of the
// same dependency cannot satisfy. Fatal for the one function only.
type ConflictError struct {
	Name               string
	FunctionConstraint string
	LayerConstraint    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("dependency conflict on %q: function requires %q, layer provides %q",
		e.Name, e.FunctionConstraint, e.LayerConstraint)
}

// Compute partitions fn's declared dependencies against the layer unit.
//
// Guarantees: ProvidedByLayer and Private are disjoint, their union covers
// every declared dependency (by normalized name), and both are in sorted
// order for reproducible builds.
func Compute(fn, layer catalog.Unit) (Partition, error) {
	layerByName := make(map[string]catalog.Dependency, len(layer.Dependencies))
	for _, d := range layer.Dependencies {
		layerByName[d.Name] = d
	}

	var p Partition
	seen := make(map[string]bool, len(fn.Dependencies))
	for _, dep := range fn.Dependencies {
		if seen[dep.Name] {
			continue
		}
		seen[dep.Name] = true

		layerDep, provided := layerByName[dep.Name]
		if !provided {
			p.Private = append(p.Private, dep)
			continue
		}

		if !Compatible(dep.Constraint, layerDep.Constraint) {
			return Partition{}, &ConflictError{
				Name:               dep.Name,
				FunctionConstraint: dep.Constraint,
				LayerConstraint:    layerDep.Constraint,
			}
		}
		p.ProvidedByLayer = append(p.ProvidedByLayer, dep.Name)
	}

	sort.Strings(p.ProvidedByLayer)
	sort.Slice(p.Private, func(i, j int) bool { return p.Private[i].Name < p.Private[j].Name })
	return p, nil
}

// PrivateNames returns the normalized name set of the private partition.
func (p Partition) PrivateNames() map[string]bool {
	set := make(map[string]bool, len(p.Private))
	for _, d := range p.Private {
		set[d.Name] = true
	}
	return set
}

// LayerNames returns the provided-by-layer set.
func (p Partition) LayerNames() map[string]bool {
	set := make(map[string]bool, len(p.ProvidedByLayer))
	for _, n := range p.ProvidedByLayer {
		set[n] = true
	}
	return set
}
