// Package orchestrator drives one deployment run end to end: discover
// units, detect changes, build artifacts, publish the shared layer, then
// fan function deployments out onto the worker pool.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/DrSkyle/layerline/pkg/builder"
	"github.com/DrSkyle/layerline/pkg/catalog"
	"github.com/DrSkyle/layerline/pkg/changes"
	"github.com/DrSkyle/layerline/pkg/config"
	"github.com/DrSkyle/layerline/pkg/ledger"
	"github.com/DrSkyle/layerline/pkg/orchestrator/swarm"
	"github.com/DrSkyle/layerline/pkg/partition"
	"github.com/DrSkyle/layerline/pkg/platform"
	"github.com/DrSkyle/layerline/pkg/storage"
	"github.com/DrSkyle/layerline/pkg/telemetry"
	"github.com/DrSkyle/layerline/pkg/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config holds run settings.
type Config struct {
	RepoRoot     string
	BaseRevision string // empty means first run: deploy everything
	HeadRevision string
	OutputDir    string

	// Environment suffixes deployed function names (prod, staging, ...).
	// Empty deploys to the unsuffixed names.
	Environment string

	// Telemetry config.
	OtelEndpoint  string
	SkipTelemetry bool

	// Dependencies.
	Logger  *slog.Logger
	Project config.Project
}

// Engine is the runtime core.
type Engine struct {
	Logger *slog.Logger
	Tracer trace.Tracer

	// Immutable config.
	config Config

	// External dependencies.
	Platform platform.API
	Ledger   *ledger.Client
	Records  *ledger.RecordLog
	Store    storage.Store
	Resolver builder.Resolver
	Detector *changes.Detector

	clock func() time.Time
}

// Option defines a functional configuration override.
type Option func(*Engine)

// New initializes the Engine.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: redactSensitiveData,
	})
	e := &Engine{
		Logger: slog.New(handler),
		Tracer: otel.Tracer("layerline/orchestrator"),
		clock:  time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.config.OutputDir == "" {
		e.config.OutputDir = config.DefaultOutputDir
	}
	if e.Store == nil {
		e.Store = storage.NewLocalStore(".layerline/cache")
	}
	if e.Ledger == nil {
		e.Ledger = ledger.NewClient(ledger.NewFileBackend(".layerline/ledger"))
	}
	if e.Records == nil {
		e.Records = ledger.NewRecordLog(e.Store)
	}
	if e.Resolver == nil {
		e.Resolver = &builder.PipResolver{}
	}
	if e.Detector == nil {
		e.Detector = changes.NewDetector(e.config.RepoRoot)
	}
	if e.Platform == nil {
		return nil, fmt.Errorf("orchestrator requires a platform client")
	}

	slog.SetDefault(e.Logger)

	if !e.config.SkipTelemetry {
		shutdown, err := telemetry.Init(ctx, version.AppName, version.Current, e.config.OtelEndpoint)
		if err != nil {
			e.Logger.Warn("Telemetry failed", "error", err)
		} else {
			_ = shutdown
		}
	}

	return e, nil
}

// WithConfig sets raw config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
		if cfg.Logger != nil {
			e.Logger = cfg.Logger
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.Logger = l
	}
}

// WithPlatform sets the provider client.
func WithPlatform(p platform.API) Option {
	return func(e *Engine) {
		e.Platform = p
	}
}

// WithLedger sets the version ledger.
func WithLedger(c *ledger.Client) Option {
	return func(e *Engine) {
		e.Ledger = c
	}
}

// WithStore sets the artifact store.
func WithStore(s storage.Store) Option {
	return func(e *Engine) {
		e.Store = s
	}
}

// WithResolver sets the dependency resolver.
func WithResolver(r builder.Resolver) Option {
	return func(e *Engine) {
		e.Resolver = r
	}
}

// WithDetector sets the change detector.
func WithDetector(d *changes.Detector) Option {
	return func(e *Engine) {
		e.Detector = d
	}
}

// Run executes one deployment. The returned summary always reflects what
// actually happened; the error return is reserved for infrastructure
// failures (the summary could not be produced at all).
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	ctx, span := e.Tracer.Start(ctx, "Orchestrator.Run")
	defer span.End()
	defer e.recoverPanic(ctx)

	project := e.config.Project
	summary := &Summary{
		Project:     project.Name,
		Environment: e.config.Environment,
		Base:        e.config.BaseRevision,
		Head:        e.config.HeadRevision,
		StartedAt:   e.clock().UTC(),
	}
	e.Logger.Info("Starting deployment run",
		"project", project.Name, "base", e.config.BaseRevision, "head", e.config.HeadRevision)

	units, changed, err := e.resolveUnits(ctx)
	if err != nil {
		return e.fail(span, summary, "", err), nil
	}

	layerUnit, hasLayer := catalog.Layer(units)
	var layerState ledger.State
	var layerSize int64

	if hasLayer {
		layerState, layerSize, err = e.layerPhase(ctx, layerUnit, changed[layerUnit.ID], summary)
		if err != nil {
			// A broken layer would strand every function on stale shared
			// code, so nothing deploys.
			return e.fail(span, summary, layerUnit.ID, err), nil
		}
		summary.LayerVersion = layerState.Version
		summary.LayerARN = layerState.LayerARN
	}

	e.functionPhase(ctx, units, changed, layerUnit, layerState, layerSize, summary)

	summary.FinishedAt = e.clock().UTC()
	summary.Status = summary.deriveStatus()
	span.SetAttributes(
		attribute.String("run.status", string(summary.Status)),
		attribute.Int("run.deployed", len(summary.Deployed)),
		attribute.Int("run.failed", len(summary.Failed)),
	)

	if err := e.finishRun(ctx, summary); err != nil {
		e.Logger.Warn("Failed to persist run outputs", "error", err)
	}

	e.Logger.Info("Deployment run finished",
		"status", summary.Status, "deployed", len(summary.Deployed), "failed", len(summary.Failed))
	return summary, nil
}

// resolveUnits discovers the catalog and computes the changed set.
func (e *Engine) resolveUnits(ctx context.Context) ([]catalog.Unit, map[string]bool, error) {
	units, err := catalog.Discover(e.config.RepoRoot, e.config.Project.Name)
	if err != nil {
		return nil, nil, err
	}
	if len(units) == 0 {
		return nil, nil, fmt.Errorf("no deployable units found under %s", e.config.RepoRoot)
	}

	changed, err := e.Detector.Changed(ctx, e.config.BaseRevision, e.config.HeadRevision, units)
	if err != nil {
		return nil, nil, err
	}
	return units, changed, nil
}

// layerPhase ensures a publishable layer version exists before any function
// moves: build and publish when the layer changed, otherwise pin the
// version already recorded in the ledger.
func (e *Engine) layerPhase(ctx context.Context, unit catalog.Unit, layerChanged bool, summary *Summary) (ledger.State, int64, error) {
	ctx, span := e.Tracer.Start(ctx, "Orchestrator.LayerPhase")
	defer span.End()

	b := e.builder()

	if !layerChanged {
		state, err := e.Ledger.Current(ctx, unit.Project)
		if err == nil {
			e.Logger.Info("Layer unchanged, pinning recorded version",
				"unit", unit.ID, "version", state.Version)
			summary.Skipped = append(summary.Skipped, unit.ID)
			return state, 0, nil
		}
		// No recorded version to pin: publish even though nothing changed.
		e.Logger.Warn("Layer unchanged but ledger is empty, publishing", "unit", unit.ID)
	}

	art, err := b.BuildLayer(ctx, unit)
	if err != nil {
		return ledger.State{}, 0, err
	}

	current, err := e.Ledger.Current(ctx, unit.Project)
	if err == nil && current.ArtifactHash == art.ContentHash {
		// Same content already published; reuse its version.
		e.Logger.Info("Layer content already published", "unit", unit.ID, "version", current.Version)
		summary.Skipped = append(summary.Skipped, unit.ID)
		return current, art.SizeBytes, nil
	}

	archive, err := b.Fetch(ctx, art)
	if err != nil {
		return ledger.State{}, 0, err
	}

	out, err := e.Platform.PublishLayer(ctx, platform.PublishLayerInput{
		Name:        unit.ID,
		Description: fmt.Sprintf("%s shared layer (%s)", unit.Project, art.ContentHash[:12]),
		Runtime:     e.config.Project.Runtime,
		Archive:     archive,
	})
	if err != nil {
		return ledger.State{}, 0, err
	}

	state, err := e.Ledger.Advance(ctx, unit.Project, art.ContentHash, out.ARN, out.Version)
	if err != nil {
		return ledger.State{}, 0, err
	}

	summary.Deployed = append(summary.Deployed, DeployedUnit{
		UnitID:       unit.ID,
		Kind:         unit.Kind.String(),
		ContentHash:  art.ContentHash,
		LayerVersion: state.Version,
		Cached:       art.Cached,
	})
	e.Logger.Info("Published layer", "unit", unit.ID, "version", state.Version, "arn", state.LayerARN)
	return state, art.SizeBytes, nil
}

// functionPhase builds and deploys every changed function on the pool.
// Failures are isolated per unit and collected into the summary.
func (e *Engine) functionPhase(ctx context.Context, units []catalog.Unit, changed map[string]bool, layerUnit catalog.Unit, layerState ledger.State, layerSize int64, summary *Summary) {
	ctx, span := e.Tracer.Start(ctx, "Orchestrator.FunctionPhase")
	defer span.End()

	pool := swarm.NewEngine(e.config.Project.MaxConcurrency)
	pool.Start(ctx)
	defer pool.Stop()

	b := e.builder()
	var mu sync.Mutex

	for _, fn := range catalog.Functions(units) {
		if !changed[fn.ID] {
			mu.Lock()
			summary.Skipped = append(summary.Skipped, fn.ID)
			mu.Unlock()
			continue
		}

		fn := fn
		pool.Submit(func(ctx context.Context) error {
			deployed, err := e.deployFunction(ctx, b, fn, layerUnit, layerState, layerSize)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.Logger.Error("Function deployment failed", "unit", fn.ID, "error", err)
				summary.Failed = append(summary.Failed, FailedUnit{
					UnitID:    fn.ID,
					ErrorKind: Classify(err),
					Message:   err.Error(),
				})
				return err
			}
			summary.Deployed = append(summary.Deployed, deployed)
			return nil
		})
	}

	pool.Drain(ctx)
	summary.sort()
}

func (e *Engine) deployFunction(ctx context.Context, b *builder.Builder, fn, layerUnit catalog.Unit, layerState ledger.State, layerSize int64) (DeployedUnit, error) {
	part, err := partition.Compute(fn, layerUnit)
	if err != nil {
		return DeployedUnit{}, err
	}

	art, err := b.BuildFunction(ctx, fn, part, layerSize)
	if err != nil {
		return DeployedUnit{}, err
	}

	archive, err := b.Fetch(ctx, art)
	if err != nil {
		return DeployedUnit{}, err
	}

	err = e.Platform.UpdateFunction(ctx, platform.UpdateFunctionInput{
		FunctionName: e.deployedName(fn),
		Archive:      archive,
		LayerARN:     layerState.LayerARN,
	})
	if err != nil {
		return DeployedUnit{}, err
	}

	e.Logger.Info("Deployed function",
		"unit", fn.ID, "hash", art.ContentHash, "layer_version", layerState.Version)
	return DeployedUnit{
		UnitID:       fn.ID,
		Kind:         fn.Kind.String(),
		ContentHash:  art.ContentHash,
		LayerVersion: layerState.Version,
		Cached:       art.Cached,
	}, nil
}

// deployedName maps a unit to its platform function name.
func (e *Engine) deployedName(fn catalog.Unit) string {
	short := strings.TrimSuffix(fn.ID, "-lambda")
	prefix := e.config.Project.FunctionPrefix
	name := short
	if prefix != "" && prefix != short {
		name = prefix + "-" + short
	}
	if e.config.Environment != "" {
		name += "-" + e.config.Environment
	}
	return name
}

func (e *Engine) builder() *builder.Builder {
	return builder.New(e.Store, e.Resolver, e.Logger, e.config.Project)
}

// fail closes out a run that died before or during the layer phase.
func (e *Engine) fail(span trace.Span, summary *Summary, unitID string, err error) *Summary {
	if unitID == "" {
		unitID = summary.Project
	}
	e.Logger.Error("Deployment run failed", "unit", unitID, "error", err)

	summary.Failed = append(summary.Failed, FailedUnit{
		UnitID:    unitID,
		ErrorKind: Classify(err),
		Message:   err.Error(),
	})
	summary.FinishedAt = e.clock().UTC()
	summary.Status = StatusFailed
	span.SetStatus(codes.Error, string(summary.Status))

	if werr := e.finishRun(context.Background(), summary); werr != nil {
		e.Logger.Warn("Failed to persist run outputs", "error", werr)
	}
	return summary
}

// finishRun writes the summary JSON and appends deployment records.
func (e *Engine) finishRun(ctx context.Context, summary *Summary) error {
	if err := summary.WriteJSON(e.config.OutputDir); err != nil {
		return err
	}
	return e.Records.Append(ctx, summary.Project, summary.records())
}

// recoverPanic handles failures.
func (e *Engine) recoverPanic(ctx context.Context) {
	if r := recover(); r != nil {
		tr := otel.Tracer("layerline/orchestrator")
		_, span := tr.Start(ctx, "CriticalPanic")

		stack := debug.Stack()
		span.RecordError(fmt.Errorf("%v", r), trace.WithStackTrace(true))
		span.SetStatus(codes.Error, "CRITICAL FAILURE")
		span.SetAttributes(
			attribute.String("crash.stack", string(stack)),
			attribute.String("crash.reason", fmt.Sprintf("%v", r)),
		)
		span.End()

		e.Logger.Error("CRITICAL FAILURE", "error", r, "stack", string(stack))
	}
}

// redactSensitiveData scrubs sensitive keys from logs.
func redactSensitiveData(groups []string, a slog.Attr) slog.Attr {
	sensitiveKeys := map[string]bool{
		"account": true, "password": true, "access_key": true, "token": true,
		"secret": true, "api_key": true, "private_key": true, "auth_token": true,
		"credential": true, "signature": true, "connection_string": true,
	}

	if sensitiveKeys[a.Key] {
		return slog.Attr{
			Key:   a.Key,
			Value: slog.StringValue("[REDACTED]"),
		}
	}
	return a
}
