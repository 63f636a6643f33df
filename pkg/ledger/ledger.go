// Package ledger persists the current shared-layer version per project.
//
// Every function deployment reads the ledger so it pins an explicit,
// already-published version instead of "latest". The state is the only
// mutable record in the system, so all writers go through compare-and-swap
// against the last known version/hash pair.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means the project has no published layer yet.
	ErrNotFound = errors.New("no layer version recorded for project")

	// ErrConflict means another writer advanced the ledger first; callers
	// reload and retry.
	ErrConflict = errors.New("ledger version conflict")
)

// State is the durable record for one project: the current layer version,
// the content hash it was built from, and where the platform put it.
type State struct {
	Project      string    `json:"project"`
	Version      int64     `json:"version"`
	ArtifactHash string    `json:"artifact_hash"`
	LayerARN     string    `json:"layer_arn"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Backend stores ledger state. CompareAndSwap must be atomic: it writes
// next only if the stored state still matches expected (zero expected
// means "no state yet") and returns ErrConflict otherwise.
type Backend interface {
	Load(ctx context.Context, project string) (State, error)
	CompareAndSwap(ctx context.Context, expected, next State) error
}

// Client wraps a backend with the advance protocol.
type Client struct {
	backend Backend
	now     func() time.Time
}

func NewClient(backend Backend) *Client {
	return &Client{backend: backend, now: time.Now}
}

// Current returns the project's pinned layer version.
func (c *Client) Current(ctx context.Context, project string) (State, error) {
	return c.backend.Load(ctx, project)
}

// Advance records a newly published layer version. Idempotent on the
// artifact hash: a retried orchestration run that already advanced to this
// hash gets the recorded state back instead of double-bumping. Versions
// never decrease; rollbacks publish old content under a new, higher
// version instead of reusing a number.
func (c *Client) Advance(ctx context.Context, project, artifactHash, layerARN string, version int64) (State, error) {
	for {
		current, err := c.backend.Load(ctx, project)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return State{}, err
		}

		if current.ArtifactHash == artifactHash && current.Version != 0 {
			return current, nil
		}
		if version <= current.Version {
			return State{}, fmt.Errorf("refusing to advance %s: new version %d is not above current %d",
				project, version, current.Version)
		}

		next := State{
			Project:      project,
			Version:      version,
			ArtifactHash: artifactHash,
			LayerARN:     layerARN,
			UpdatedAt:    c.now().UTC(),
		}

		err = c.backend.CompareAndSwap(ctx, current, next)
		if errors.Is(err, ErrConflict) {
			continue // Lost the race: reload and re-evaluate.
		}
		if err != nil {
			return State{}, err
		}
		return next, nil
	}
}
