package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(content), 0644)
	require.NoError(t, err)
	return dir
}

func TestLoadProjectDefaults(t *testing.T) {
	dir := writeManifest(t, "name: sinful-delights\n")

	p, err := LoadProject(dir)
	require.NoError(t, err)

	assert.Equal(t, "sinful-delights", p.Name)
	assert.Equal(t, DefaultRuntime, p.Runtime)
	assert.Equal(t, DefaultRegion, p.Region)
	assert.EqualValues(t, DefaultLayerSizeLimit, p.LayerSizeLimit)
	assert.EqualValues(t, DefaultLeakRatio, p.LeakRatio)
	assert.Equal(t, DefaultMaxConcurrency, p.MaxConcurrency)
	assert.Equal(t, "sinful-delights", p.FunctionPrefix)
}

func TestLoadProjectOverrides(t *testing.T) {
	dir := writeManifest(t, `name: cmc
runtime: python3.11
layer_size_limit: 1048576
leak_ratio: 5
max_concurrency: 8
function_prefix: cmc-prod
`)

	p, err := LoadProject(dir)
	require.NoError(t, err)

	assert.Equal(t, "python3.11", p.Runtime)
	assert.EqualValues(t, 1048576, p.LayerSizeLimit)
	assert.EqualValues(t, 5, p.LeakRatio)
	assert.Equal(t, 8, p.MaxConcurrency)
	assert.Equal(t, "cmc-prod", p.FunctionPrefix)
}

func TestLoadProjectMissingName(t *testing.T) {
	dir := writeManifest(t, "runtime: python3.12\n")

	_, err := LoadProject(dir)
	assert.Error(t, err)
}

func TestLoadProjectMissingFile(t *testing.T) {
	_, err := LoadProject(t.TempDir())
	assert.Error(t, err)
}
