package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(NewFileBackend(t.TempDir()))
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestCurrentBeforeFirstAdvance(t *testing.T) {
	c := testClient(t)

	_, err := c.Current(context.Background(), "billing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdvanceRecordsState(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	got, err := c.Advance(ctx, "billing", "hash-a", "arn:aws:lambda:us-east-1:1:layer:billing-shared:1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 1 || got.ArtifactHash != "hash-a" {
		t.Errorf("unexpected state: %+v", got)
	}

	current, err := c.Current(ctx, "billing")
	if err != nil {
		t.Fatal(err)
	}
	if current != got {
		t.Errorf("Current = %+v, want %+v", current, got)
	}
}

func TestAdvanceIdempotentOnHash(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	first, err := c.Advance(ctx, "billing", "hash-a", "arn:1", 1)
	if err != nil {
		t.Fatal(err)
	}

	// A retried run that publishes the same content must not bump the version.
	second, err := c.Advance(ctx, "billing", "hash-a", "arn:other", 2)
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("second advance changed state: %+v vs %+v", second, first)
	}
}

func TestAdvanceVersionsNeverDecrease(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	if _, err := c.Advance(ctx, "billing", "hash-a", "arn:3", 3); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Advance(ctx, "billing", "hash-b", "arn:2", 2); err == nil {
		t.Fatal("expected error advancing to a lower version")
	}
	if _, err := c.Advance(ctx, "billing", "hash-b", "arn:3", 3); err == nil {
		t.Fatal("expected error advancing to the same version")
	}
}

func TestAdvanceRetriesOnConflict(t *testing.T) {
	backend := &conflictOnce{inner: NewFileBackend(t.TempDir())}
	c := NewClient(backend)
	ctx := context.Background()

	if _, err := c.Advance(ctx, "billing", "hash-a", "arn:1", 1); err != nil {
		t.Fatal(err)
	}
	if backend.conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", backend.conflicts)
	}
}

func TestProjectsAreIndependent(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	if _, err := c.Advance(ctx, "billing", "hash-a", "arn:1", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Current(ctx, "menus"); !errors.Is(err, ErrNotFound) {
		t.Fatal("projects must not share ledger state")
	}
}

// conflictOnce fails the first CAS to exercise the retry loop.
type conflictOnce struct {
	inner     Backend
	conflicts int
}

func (b *conflictOnce) Load(ctx context.Context, project string) (State, error) {
	return b.inner.Load(ctx, project)
}

func (b *conflictOnce) CompareAndSwap(ctx context.Context, expected, next State) error {
	if b.conflicts == 0 {
		b.conflicts++
		return ErrConflict
	}
	return b.inner.CompareAndSwap(ctx, expected, next)
}
