package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DrSkyle/layerline/pkg/storage"
)

func TestRecordLogAppendAndList(t *testing.T) {
	log := NewRecordLog(storage.NewLocalStore(t.TempDir()))
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := []Record{
		{UnitID: "billing-shared", Project: "billing", ContentHash: "h1", LayerVersion: 1, Status: "published", Timestamp: ts},
		{UnitID: "orders-lambda", Project: "billing", ContentHash: "h2", Status: "deployed", Timestamp: ts},
	}
	if err := log.Append(ctx, "billing", first); err != nil {
		t.Fatal(err)
	}

	second := []Record{
		{UnitID: "orders-lambda", Project: "billing", ContentHash: "h3", Status: "deployed", Timestamp: ts.Add(time.Hour)},
	}
	if err := log.Append(ctx, "billing", second); err != nil {
		t.Fatal(err)
	}

	got, err := log.List(ctx, "billing")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].UnitID != "billing-shared" || got[2].ContentHash != "h3" {
		t.Errorf("records out of order: %+v", got)
	}
}

func TestRecordLogEmptyProject(t *testing.T) {
	log := NewRecordLog(storage.NewLocalStore(t.TempDir()))

	got, err := log.List(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestRecordLogAppendNothing(t *testing.T) {
	store := storage.NewLocalStore(t.TempDir())
	log := NewRecordLog(store)

	if err := log.Append(context.Background(), "billing", nil); err != nil {
		t.Fatal(err)
	}
	keys, err := store.List(context.Background(), "records/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("empty append must not create the log object, got %v", keys)
	}
}
