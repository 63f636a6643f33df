// Package builder produces immutable, content-addressed deployment
// archives for units.
//
// The layer archive carries the shared modules plus their resolved
// dependency closure under the python/ prefix; a function archive carries
// only the function's own source and its private dependencies. Builds are
// cached by input hash, so rebuilding an unchanged unit is free.
package builder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/DrSkyle/layerline/pkg/catalog"
	"github.com/DrSkyle/layerline/pkg/config"
	"github.com/DrSkyle/layerline/pkg/partition"
	"github.com/DrSkyle/layerline/pkg/storage"
)

// Artifact is one immutable build output. Write-once: a rebuild with
// identical inputs yields the same ContentHash and is served from cache.
type Artifact struct {
	UnitID      string    `json:"unit_id"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`

	// Key addresses the archive in the blob store.
	Key string `json:"key"`

	// Cached marks an artifact served from a previous build.
	Cached bool `json:"-"`
}

// Builder packages units into deployable archives.
type Builder struct {
	Store    storage.Store
	Resolver Resolver
	Logger   *slog.Logger

	// Runtime feeds the input hash: the same sources vendored for a
	// different interpreter are a different artifact.
	Runtime string

	// LayerSizeLimit is the hard zipped ceiling for the layer archive.
	LayerSizeLimit int64

	// LeakRatio enforces the layer/function size assertion. 0 disables.
	LeakRatio int64

	now func() time.Time
}

// New creates a builder with the project's ceilings applied.
func New(store storage.Store, resolver Resolver, logger *slog.Logger, project config.Project) *Builder {
	return &Builder{
		Store:          store,
		Resolver:       resolver,
		Logger:         logger,
		Runtime:        project.Runtime,
		LayerSizeLimit: project.LayerSizeLimit,
		LeakRatio:      project.LeakRatio,
		now:            time.Now,
	}
}

// BuildLayer packages the shared layer: shared modules plus the resolved
// closure of its declared dependencies, laid out under python/ as Lambda
// expects for layers.
func (b *Builder) BuildLayer(ctx context.Context, unit catalog.Unit) (Artifact, error) {
	inputHash, err := InputHash(unit.SourceRoot, "kind=layer", "runtime="+b.Runtime)
	if err != nil {
		return Artifact{}, err
	}

	if art, ok, err := b.cached(ctx, unit.ID, inputHash); err != nil {
		return Artifact{}, err
	} else if ok {
		b.Logger.Info("Layer build cache hit", "unit", unit.ID, "hash", art.ContentHash)
		return art, nil
	}

	staging, err := os.MkdirTemp("", "layerline-layer-")
	if err != nil {
		return Artifact{}, err
	}
	defer os.RemoveAll(staging)

	target := filepath.Join(staging, "python")

	// Shared modules stay importable as the "shared" package.
	if err := copyTree(unit.SourceRoot, filepath.Join(target, "shared")); err != nil {
		return Artifact{}, fmt.Errorf("failed to stage shared modules: %w", err)
	}

	if err := b.Resolver.Install(ctx, unit.Dependencies, target); err != nil {
		return Artifact{}, err
	}

	archive, err := archiveTree(staging, "")
	if err != nil {
		return Artifact{}, err
	}

	if b.LayerSizeLimit > 0 && int64(len(archive)) > b.LayerSizeLimit {
		return Artifact{}, &SizeLimitError{
			UnitID: unit.ID,
			Size:   int64(len(archive)),
			Limit:  b.LayerSizeLimit,
		}
	}

	return b.store(ctx, unit.ID, inputHash, archive)
}

// BuildFunction packages one function: its own source plus only the
// private partition, vendored at the archive root. layerSize, when known,
// arms the partition-leak assertion.
func (b *Builder) BuildFunction(ctx context.Context, unit catalog.Unit, part partition.Partition, layerSize int64) (Artifact, error) {
	extras := []string{"kind=function", "runtime=" + b.Runtime}
	for _, d := range part.Private {
		extras = append(extras, "private="+d.String())
	}
	inputHash, err := InputHash(unit.SourceRoot, extras...)
	if err != nil {
		return Artifact{}, err
	}

	if art, ok, err := b.cached(ctx, unit.ID, inputHash); err != nil {
		return Artifact{}, err
	} else if ok {
		b.Logger.Info("Function build cache hit", "unit", unit.ID, "hash", art.ContentHash)
		return art, nil
	}

	staging, err := os.MkdirTemp("", "layerline-fn-")
	if err != nil {
		return Artifact{}, err
	}
	defer os.RemoveAll(staging)

	if err := copyTree(unit.SourceRoot, staging); err != nil {
		return Artifact{}, fmt.Errorf("failed to stage function source: %w", err)
	}

	if err := b.Resolver.Install(ctx, part.Private, staging); err != nil {
		return Artifact{}, err
	}

	// Everything the function imports must resolve to the layer, the
	// vendored set, its own modules, or the stdlib.
	vendored, err := topLevelNames(staging)
	if err != nil {
		return Artifact{}, err
	}
	provided := part.LayerNames()
	provided["shared"] = true
	if err := checkClosure(unit.ID, unit.SourceRoot, provided, vendored); err != nil {
		return Artifact{}, err
	}

	archive, err := archiveTree(staging, "")
	if err != nil {
		return Artifact{}, err
	}

	if b.LeakRatio > 0 && layerSize > 0 && int64(len(archive)) > layerSize/b.LeakRatio {
		return Artifact{}, &SizeLimitError{
			UnitID: unit.ID,
			Size:   int64(len(archive)),
			Limit:  layerSize / b.LeakRatio,
			Reason: "function package is not an order of magnitude smaller than the layer; a layer-provided dependency likely leaked into the private set",
		}
	}

	return b.store(ctx, unit.ID, inputHash, archive)
}

// Fetch loads an artifact's archive bytes from the store.
func (b *Builder) Fetch(ctx context.Context, art Artifact) ([]byte, error) {
	return b.Store.Get(ctx, art.Key)
}

func archiveKey(unitID, inputHash string) string {
	return "artifacts/" + unitID + "/" + inputHash + ".zip"
}

func metaKey(unitID, inputHash string) string {
	return "artifacts/" + unitID + "/" + inputHash + ".json"
}

// cached returns the previously built artifact for this input hash.
func (b *Builder) cached(ctx context.Context, unitID, inputHash string) (Artifact, bool, error) {
	data, err := b.Store.Get(ctx, metaKey(unitID, inputHash))
	if err == storage.ErrNotFound {
		return Artifact{}, false, nil
	}
	if err != nil {
		return Artifact{}, false, err
	}

	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		// Corrupt sidecar: rebuild rather than fail the run.
		return Artifact{}, false, nil
	}
	art.Cached = true
	return art, true, nil
}

func (b *Builder) store(ctx context.Context, unitID, inputHash string, archive []byte) (Artifact, error) {
	sum := sha256.Sum256(archive)
	art := Artifact{
		UnitID:      unitID,
		ContentHash: hex.EncodeToString(sum[:]),
		SizeBytes:   int64(len(archive)),
		CreatedAt:   b.now().UTC(),
		Key:         archiveKey(unitID, inputHash),
	}

	if err := b.Store.Put(ctx, art.Key, archive); err != nil {
		return Artifact{}, fmt.Errorf("failed to store artifact: %w", err)
	}

	meta, err := json.Marshal(art)
	if err != nil {
		return Artifact{}, err
	}
	if err := b.Store.Put(ctx, metaKey(unitID, inputHash), meta); err != nil {
		return Artifact{}, fmt.Errorf("failed to store artifact metadata: %w", err)
	}

	b.Logger.Info("Built artifact", "unit", unitID, "hash", art.ContentHash, "bytes", art.SizeBytes)
	return art, nil
}

// copyTree mirrors src into dst, excluding build droppings.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(src, path)
		if rerr != nil {
			return rerr
		}

		if d.IsDir() {
			if d.Name() == "__pycache__" || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0755)
		}
		if filepath.Ext(path) == ".pyc" {
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.Create(filepath.Join(dst, rel))
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}
