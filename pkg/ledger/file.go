package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileBackend keeps ledger state in one JSON file per project. A lock file
// serializes writers; the state write itself is write-then-rename so a
// crashed writer never leaves a torn file.
type FileBackend struct {
	Dir string

	// LockTimeout bounds how long a writer waits for the lock file.
	LockTimeout time.Duration
}

func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{Dir: dir, LockTimeout: 10 * time.Second}
}

func (b *FileBackend) statePath(project string) string {
	return filepath.Join(b.Dir, project+".json")
}

func (b *FileBackend) lockPath(project string) string {
	return filepath.Join(b.Dir, project+".lock")
}

func (b *FileBackend) Load(ctx context.Context, project string) (State, error) {
	data, err := os.ReadFile(b.statePath(project))
	if os.IsNotExist(err) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, err
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("corrupt ledger state for %s: %w", project, err)
	}
	return s, nil
}

func (b *FileBackend) CompareAndSwap(ctx context.Context, expected, next State) error {
	if err := os.MkdirAll(b.Dir, 0755); err != nil {
		return err
	}

	unlock, err := b.lock(ctx, next.Project)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := b.Load(ctx, next.Project)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if current.Version != expected.Version || current.ArtifactHash != expected.ArtifactHash {
		return ErrConflict
	}

	data, err := json.Marshal(next)
	if err != nil {
		return err
	}

	tmp := b.statePath(next.Project) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, b.statePath(next.Project))
}

// lock acquires the per-project lock file (O_EXCL create).
func (b *FileBackend) lock(ctx context.Context, project string) (func(), error) {
	path := b.lockPath(project)
	deadline := time.Now().Add(b.LockTimeout)

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for ledger lock %s", path)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
