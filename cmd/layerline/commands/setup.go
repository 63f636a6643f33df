package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/DrSkyle/layerline/pkg/config"
	"github.com/DrSkyle/layerline/pkg/ledger"
	"github.com/DrSkyle/layerline/pkg/orchestrator"
	"github.com/DrSkyle/layerline/pkg/platform"
	"github.com/DrSkyle/layerline/pkg/storage"
)

// newEngine wires the orchestrator for one CLI invocation. dryRun swaps in
// the in-memory platform so plan never needs credentials.
func newEngine(ctx context.Context, dryRun bool) (*orchestrator.Engine, config.Project, error) {
	project, err := config.LoadProject(repoRoot)
	if err != nil {
		return nil, config.Project{}, err
	}
	if regionFlag != "" {
		project.Region = regionFlag
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var (
		api           platform.API
		store         storage.Store
		ledgerBackend ledger.Backend
	)

	if dryRun {
		api = platform.NewMock()
	}
	store = storage.NewLocalStore(cacheDir)
	ledgerBackend = ledger.NewFileBackend(ledgerDir)

	if !dryRun || bucket != "" || ledgerTable != "" {
		session, err := platform.NewSession(ctx, project.Region)
		if err != nil {
			return nil, config.Project{}, err
		}

		if !dryRun {
			account, err := session.VerifyIdentity(ctx)
			if err != nil {
				return nil, config.Project{}, fmt.Errorf("credential check failed: %w", err)
			}
			logger.Debug("Verified caller identity", "account_id", account)
			api = platform.NewRetrier(platform.NewLambda(session.Config))
		}
		if bucket != "" {
			store = storage.NewS3Store(session.Config, bucket, "layerline")
		}
		if ledgerTable != "" {
			ledgerBackend = ledger.NewDynamoBackend(session.Config, ledgerTable)
		}
	}

	engine, err := orchestrator.New(ctx,
		orchestrator.WithConfig(orchestrator.Config{
			RepoRoot:     repoRoot,
			BaseRevision: baseRev,
			HeadRevision: headRev,
			OutputDir:    outputDir,
			Environment:  envName,
			OtelEndpoint: otelEndpoint,
			Logger:       logger,
			Project:      project,
		}),
		orchestrator.WithPlatform(api),
		orchestrator.WithStore(store),
		orchestrator.WithLedger(ledger.NewClient(ledgerBackend)),
	)
	if err != nil {
		return nil, config.Project{}, err
	}
	return engine, project, nil
}
