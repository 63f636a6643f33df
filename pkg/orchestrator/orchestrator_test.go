package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DrSkyle/layerline/pkg/builder"
	"github.com/DrSkyle/layerline/pkg/catalog"
	"github.com/DrSkyle/layerline/pkg/changes"
	"github.com/DrSkyle/layerline/pkg/config"
	"github.com/DrSkyle/layerline/pkg/ledger"
	"github.com/DrSkyle/layerline/pkg/platform"
	"github.com/DrSkyle/layerline/pkg/storage"
)

// fixtureRepo lays out a managed repo: one shared layer, two functions.
func fixtureRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"shared/requirements.txt":        "boto3==1.34.0\nrequests>=2.31\n",
		"shared/models.py":               "import json\n",
		"orders-lambda/app.py":           "import json\nimport stripe\nfrom shared import models\n",
		"orders-lambda/requirements.txt": "stripe==7.0.0\nboto3==1.34.0\n",
		"menus-lambda/app.py":            "import os\nfrom shared import models\n",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// stubResolver vendors each dependency as a small module directory.
type stubResolver struct{}

func (stubResolver) Install(ctx context.Context, deps []catalog.Dependency, target string) error {
	for _, d := range deps {
		dir := filepath.Join(target, catalog.NormalizeName(d.Name))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		content := fmt.Sprintf("# vendored %s\n", d.String())
		if err := os.WriteFile(filepath.Join(dir, "__init__.py"), []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

// scriptRunner fakes git for the change detector.
type scriptRunner struct {
	diff string
}

func (r *scriptRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if len(args) > 0 && args[0] == "diff" {
		return []byte(r.diff), nil
	}
	return []byte("ok"), nil
}

type testEnv struct {
	engine *Engine
	mock   *platform.Mock
	ledger *ledger.Client
	outDir string
}

func newTestEnv(t *testing.T, base string, diff string) *testEnv {
	t.Helper()

	repo := fixtureRepo(t)
	outDir := t.TempDir()
	mock := platform.NewMock()
	lc := ledger.NewClient(ledger.NewFileBackend(t.TempDir()))

	project := config.Project{
		Name:           "billing",
		Runtime:        "python3.12",
		FunctionPrefix: "billing",
		LayerSizeLimit: 50 * 1024 * 1024,
		MaxConcurrency: 2,
	}

	cfg := Config{
		RepoRoot:      repo,
		BaseRevision:  base,
		HeadRevision:  "HEAD",
		OutputDir:     outDir,
		SkipTelemetry: true,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Project:       project,
	}

	e, err := New(context.Background(),
		WithConfig(cfg),
		WithPlatform(mock),
		WithLedger(lc),
		WithStore(storage.NewLocalStore(t.TempDir())),
		WithResolver(stubResolver{}),
		WithDetector(changes.NewDetectorWithRunner(repo, &scriptRunner{diff: diff})),
	)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{engine: e, mock: mock, ledger: lc, outDir: outDir}
}

func TestRunFirstDeploymentDeploysEverything(t *testing.T) {
	env := newTestEnv(t, "", "")

	summary, err := env.engine.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Status != StatusSuccess {
		t.Fatalf("status = %s, failed: %+v", summary.Status, summary.Failed)
	}
	if len(env.mock.Published) != 1 {
		t.Errorf("published layers = %d, want 1", len(env.mock.Published))
	}
	if len(env.mock.Updated) != 2 {
		t.Errorf("updated functions = %d, want 2", len(env.mock.Updated))
	}
	if summary.LayerVersion != 1 {
		t.Errorf("layer version = %d, want 1", summary.LayerVersion)
	}

	// Every function pins the freshly published layer.
	for _, u := range env.mock.Updated {
		if u.LayerARN != summary.LayerARN {
			t.Errorf("function %s pinned %q, want %q", u.FunctionName, u.LayerARN, summary.LayerARN)
		}
	}

	state, err := env.ledger.Current(context.Background(), "billing")
	if err != nil {
		t.Fatal(err)
	}
	if state.Version != 1 {
		t.Errorf("ledger version = %d, want 1", state.Version)
	}

	if _, err := os.Stat(filepath.Join(env.outDir, "summary.json")); err != nil {
		t.Errorf("summary.json not written: %v", err)
	}
}

func TestRunLayerFailureDeploysNoFunctions(t *testing.T) {
	env := newTestEnv(t, "", "")
	env.mock.PublishErr = fmt.Errorf("access denied")

	summary, err := env.engine.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Status != StatusFailed {
		t.Errorf("status = %s, want Failed", summary.Status)
	}
	if len(env.mock.Updated) != 0 {
		t.Errorf("layer failure must deploy zero functions, got %d", len(env.mock.Updated))
	}
	if len(summary.Failed) != 1 || summary.Failed[0].UnitID != "billing-shared" {
		t.Errorf("failed = %+v", summary.Failed)
	}
}

func TestRunFunctionFailureIsIsolated(t *testing.T) {
	env := newTestEnv(t, "", "")
	env.mock.FailFunctions = map[string]error{
		"billing-orders": fmt.Errorf("function not found"),
	}

	summary, err := env.engine.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Status != StatusPartialFailure {
		t.Errorf("status = %s, want PartialFailure", summary.Status)
	}
	if len(summary.Failed) != 1 || summary.Failed[0].UnitID != "orders-lambda" {
		t.Errorf("failed = %+v", summary.Failed)
	}

	deployed := map[string]bool{}
	for _, d := range summary.Deployed {
		deployed[d.UnitID] = true
	}
	if !deployed["menus-lambda"] {
		t.Error("sibling function must still deploy")
	}
}

func TestRunUnchangedLayerPinsRecordedVersion(t *testing.T) {
	// Only orders changed; the layer tree is untouched.
	env := newTestEnv(t, "v1.2.0", "orders-lambda/app.py\n")
	ctx := context.Background()

	// Three prior layer publishes recorded.
	for i, h := range []string{"h1", "h2", "h3"} {
		arn := fmt.Sprintf("arn:aws:lambda:us-east-1:1:layer:billing-shared:%d", i+1)
		if _, err := env.ledger.Advance(ctx, "billing", h, arn, int64(i+1)); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := env.engine.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if summary.Status != StatusSuccess {
		t.Fatalf("status = %s, failed: %+v", summary.Status, summary.Failed)
	}
	if len(env.mock.Published) != 0 {
		t.Errorf("unchanged layer must not republish, got %d", len(env.mock.Published))
	}
	if summary.LayerVersion != 3 {
		t.Errorf("pinned version = %d, want 3", summary.LayerVersion)
	}
	if len(env.mock.Updated) != 1 || !strings.HasSuffix(env.mock.Updated[0].LayerARN, ":3") {
		t.Errorf("updated = %+v", env.mock.Updated)
	}

	// Untouched units are reported as skipped, not deployed.
	skipped := map[string]bool{}
	for _, id := range summary.Skipped {
		skipped[id] = true
	}
	if !skipped["billing-shared"] || !skipped["menus-lambda"] {
		t.Errorf("skipped = %v", summary.Skipped)
	}
}

func TestRunLayerManifestChangeBumpsVersion(t *testing.T) {
	// Only the shared tree changed; functions stay at their recorded state.
	env := newTestEnv(t, "v1.2.0", "shared/requirements.txt\n")
	ctx := context.Background()

	for i, h := range []string{"h1", "h2", "h3"} {
		arn := fmt.Sprintf("arn:aws:lambda:us-east-1:1:layer:billing-shared:%d", i+1)
		if _, err := env.ledger.Advance(ctx, "billing", h, arn, int64(i+1)); err != nil {
			t.Fatal(err)
		}
	}
	env.mock.SetVersion("billing-shared", 3)

	summary, err := env.engine.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if summary.Status != StatusSuccess {
		t.Fatalf("status = %s, failed: %+v", summary.Status, summary.Failed)
	}
	if summary.LayerVersion != 4 {
		t.Errorf("layer version = %d, want 4", summary.LayerVersion)
	}
	if len(env.mock.Updated) != 0 {
		t.Errorf("unchanged functions must not redeploy, got %d", len(env.mock.Updated))
	}

	state, err := env.ledger.Current(ctx, "billing")
	if err != nil {
		t.Fatal(err)
	}
	if state.Version != 4 {
		t.Errorf("ledger version = %d, want 4", state.Version)
	}
}

func TestRunDependencyConflictIsolatedToOneFunction(t *testing.T) {
	env := newTestEnv(t, "", "")

	// pay declares the layer's boto3 at an incompatible pin.
	payDir := filepath.Join(env.engine.config.RepoRoot, "pay-lambda")
	if err := os.MkdirAll(payDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile := func(name, content string) {
		if err := os.WriteFile(filepath.Join(payDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	writeFile("app.py", "import json\n")
	writeFile("requirements.txt", "boto3==1.28.0\n")

	summary, err := env.engine.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Status != StatusPartialFailure {
		t.Fatalf("status = %s", summary.Status)
	}
	if len(summary.Failed) != 1 || summary.Failed[0].UnitID != "pay-lambda" {
		t.Fatalf("failed = %+v", summary.Failed)
	}
	if summary.Failed[0].ErrorKind != "DependencyConflictError" {
		t.Errorf("kind = %s", summary.Failed[0].ErrorKind)
	}

	deployed := map[string]bool{}
	for _, d := range summary.Deployed {
		deployed[d.UnitID] = true
	}
	if !deployed["orders-lambda"] || !deployed["menus-lambda"] {
		t.Errorf("siblings must deploy despite the conflict: %+v", summary.Deployed)
	}
}

func TestRunRebuildServesCachedArtifacts(t *testing.T) {
	env := newTestEnv(t, "", "")
	ctx := context.Background()

	if _, err := env.engine.Run(ctx); err != nil {
		t.Fatal(err)
	}

	summary, err := env.engine.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Status != StatusSuccess {
		t.Fatalf("status = %s", summary.Status)
	}

	// Second run: layer content is unchanged so the ledger does not move.
	if summary.LayerVersion != 1 {
		t.Errorf("layer version = %d, want 1", summary.LayerVersion)
	}
	for _, d := range summary.Deployed {
		if !d.Cached {
			t.Errorf("unit %s rebuilt instead of using the cache", d.UnitID)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&catalog.DiscoveryError{Path: "x", Reason: "r"}, "DiscoveryError"},
		{&changes.ComparisonError{Revision: "v1"}, "ComparisonError"},
		{&builder.SizeLimitError{UnitID: "u"}, "SizeLimitExceeded"},
		{&builder.ClosureError{UnitID: "u"}, "ClosureCheckFailure"},
		{&platform.PublishError{Unit: "u", Attempts: 3, Err: fmt.Errorf("x")}, "PublishFailure"},
		{fmt.Errorf("wrapped: %w", &builder.SizeLimitError{UnitID: "u"}), "SizeLimitExceeded"},
		{fmt.Errorf("boom"), "InternalError"},
	}

	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestSummaryStatusDerivation(t *testing.T) {
	cases := []struct {
		deployed, failed int
		want             Status
	}{
		{2, 0, StatusSuccess},
		{1, 1, StatusPartialFailure},
		{0, 2, StatusFailed},
	}

	for _, tc := range cases {
		s := &Summary{}
		for i := 0; i < tc.deployed; i++ {
			s.Deployed = append(s.Deployed, DeployedUnit{})
		}
		for i := 0; i < tc.failed; i++ {
			s.Failed = append(s.Failed, FailedUnit{})
		}
		if got := s.deriveStatus(); got != tc.want {
			t.Errorf("deriveStatus(%d ok, %d fail) = %s, want %s", tc.deployed, tc.failed, got, tc.want)
		}
	}
}
