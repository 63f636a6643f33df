package orchestrator

import (
	"context"
	"testing"
)

func TestPlanPartitionsChangedFunctions(t *testing.T) {
	env := newTestEnv(t, "v1.2.0", "orders-lambda/app.py\n")
	ctx := context.Background()

	if _, err := env.ledger.Advance(ctx, "billing", "h3", "arn:v3", 3); err != nil {
		t.Fatal(err)
	}

	plan, err := env.engine.Plan(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if plan.LayerVersion != 3 {
		t.Errorf("pinned layer version = %d, want 3", plan.LayerVersion)
	}
	if len(env.mock.Published)+len(env.mock.Updated) != 0 {
		t.Error("plan must not touch the platform")
	}

	byID := map[string]PlanEntry{}
	for _, e := range plan.Entries {
		byID[e.UnitID] = e
	}

	if byID["billing-shared"].Action != ActionSkip {
		t.Errorf("layer action = %s", byID["billing-shared"].Action)
	}
	if byID["menus-lambda"].Action != ActionSkip {
		t.Errorf("menus action = %s", byID["menus-lambda"].Action)
	}

	orders := byID["orders-lambda"]
	if orders.Action != ActionDeploy {
		t.Fatalf("orders action = %s", orders.Action)
	}
	if len(orders.FromLayer) != 1 || orders.FromLayer[0] != "boto3" {
		t.Errorf("FromLayer = %v", orders.FromLayer)
	}
	if len(orders.Private) != 1 || orders.Private[0] != "stripe==7.0.0" {
		t.Errorf("Private = %v", orders.Private)
	}
}

func TestPlanFirstRunPublishesEverything(t *testing.T) {
	env := newTestEnv(t, "", "")

	plan, err := env.engine.Plan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	actions := map[string]PlanAction{}
	for _, e := range plan.Entries {
		actions[e.UnitID] = e.Action
	}

	want := map[string]PlanAction{
		"billing-shared": ActionPublishLayer,
		"orders-lambda":  ActionDeploy,
		"menus-lambda":   ActionDeploy,
	}
	for id, action := range want {
		if actions[id] != action {
			t.Errorf("%s action = %s, want %s", id, actions[id], action)
		}
	}
}
