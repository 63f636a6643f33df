package orchestrator

import (
	"context"
	"errors"

	"github.com/DrSkyle/layerline/pkg/catalog"
	"github.com/DrSkyle/layerline/pkg/ledger"
	"github.com/DrSkyle/layerline/pkg/partition"
)

// PlanAction is what a run would do with a unit.
type PlanAction string

const (
	ActionPublishLayer PlanAction = "publish-layer"
	ActionDeploy       PlanAction = "deploy"
	ActionSkip         PlanAction = "skip"
)

// PlanEntry describes one unit's planned treatment.
type PlanEntry struct {
	UnitID    string     `json:"unit_id"`
	Kind      string     `json:"kind"`
	Action    PlanAction `json:"action"`
	FromLayer []string   `json:"from_layer,omitempty"`
	Private   []string   `json:"private,omitempty"`
}

// Plan is the dry-run result: what would deploy, with each function's
// dependency partition, without building or touching the platform.
type Plan struct {
	Project      string      `json:"project"`
	Base         string      `json:"base,omitempty"`
	Head         string      `json:"head,omitempty"`
	LayerVersion int64       `json:"pinned_layer_version,omitempty"`
	Entries      []PlanEntry `json:"entries"`
}

// Plan computes the deployment plan without side effects.
func (e *Engine) Plan(ctx context.Context) (*Plan, error) {
	ctx, span := e.Tracer.Start(ctx, "Orchestrator.Plan")
	defer span.End()

	units, changed, err := e.resolveUnits(ctx)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Project: e.config.Project.Name,
		Base:    e.config.BaseRevision,
		Head:    e.config.HeadRevision,
	}

	layerUnit, hasLayer := catalog.Layer(units)
	if hasLayer {
		action := ActionSkip
		if changed[layerUnit.ID] {
			action = ActionPublishLayer
		} else {
			state, err := e.Ledger.Current(ctx, layerUnit.Project)
			switch {
			case err == nil:
				plan.LayerVersion = state.Version
			case errors.Is(err, ledger.ErrNotFound):
				// Nothing to pin: the run would publish anyway.
				action = ActionPublishLayer
			default:
				return nil, err
			}
		}
		plan.Entries = append(plan.Entries, PlanEntry{
			UnitID: layerUnit.ID,
			Kind:   layerUnit.Kind.String(),
			Action: action,
		})
	}

	for _, fn := range catalog.Functions(units) {
		entry := PlanEntry{UnitID: fn.ID, Kind: fn.Kind.String(), Action: ActionSkip}

		if changed[fn.ID] {
			entry.Action = ActionDeploy
			part, err := partition.Compute(fn, layerUnit)
			if err != nil {
				return nil, err
			}
			entry.FromLayer = part.ProvidedByLayer
			for _, d := range part.Private {
				entry.Private = append(entry.Private, d.String())
			}
		}
		plan.Entries = append(plan.Entries, entry)
	}

	return plan, nil
}
