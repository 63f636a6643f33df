package storage

import (
	"context"
	"errors"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()

	if err := s.Put(ctx, "artifacts/u/abc.zip", []byte("payload")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, err := s.Get(ctx, "artifacts/u/abc.zip")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Get = %q", data)
	}

	ok, err := s.Exists(ctx, "artifacts/u/abc.zip")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}

	keys, err := s.List(ctx, "artifacts")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "artifacts/u/abc.zip" {
		t.Errorf("List = %v", keys)
	}
}

func TestLocalStoreMissingKey(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if ok, err := s.Exists(ctx, "nope"); ok || err != nil {
		t.Errorf("Exists missing = %v, %v", ok, err)
	}
	if keys, err := s.List(ctx, "nope"); err != nil || len(keys) != 0 {
		t.Errorf("List missing prefix = %v, %v", keys, err)
	}
}
