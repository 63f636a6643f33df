package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Project is the repo-level manifest (layerline.yaml) describing one
// deployable project: its name, runtime, and build ceilings.
type Project struct {
	Name    string `yaml:"name"`
	Runtime string `yaml:"runtime"`
	Region  string `yaml:"region"`

	// LayerSizeLimit is the zipped layer ceiling in bytes.
	LayerSizeLimit int64 `yaml:"layer_size_limit"`

	// LeakRatio is the layer/function size ratio assertion. 0 disables.
	LeakRatio int64 `yaml:"leak_ratio"`

	// MaxConcurrency bounds the function deployment fan-out.
	MaxConcurrency int `yaml:"max_concurrency"`

	// FunctionPrefix namespaces the deployed function names. Defaults to
	// the project name.
	FunctionPrefix string `yaml:"function_prefix"`
}

// ManifestName is the project manifest filename looked up at the repo root.
const ManifestName = "layerline.yaml"

// LoadProject reads layerline.yaml from repoRoot and applies defaults.
// A missing manifest is an error: the project name keys the version ledger
// and the deployment record log, so it cannot be guessed.
func LoadProject(repoRoot string) (Project, error) {
	path := filepath.Join(repoRoot, ManifestName)

	data, err := os.ReadFile(path)
	if err != nil {
		return Project{}, fmt.Errorf("failed to read project manifest %s: %w", path, err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Project{}, fmt.Errorf("failed to parse project manifest %s: %w", path, err)
	}

	if p.Name == "" {
		return Project{}, fmt.Errorf("project manifest %s: missing required field 'name'", path)
	}

	p.applyDefaults()
	return p, nil
}

func (p *Project) applyDefaults() {
	if p.Runtime == "" {
		p.Runtime = DefaultRuntime
	}
	if p.Region == "" {
		p.Region = DefaultRegion
	}
	if p.LayerSizeLimit == 0 {
		p.LayerSizeLimit = DefaultLayerSizeLimit
	}
	if p.LeakRatio == 0 {
		p.LeakRatio = DefaultLeakRatio
	}
	if p.MaxConcurrency == 0 {
		p.MaxConcurrency = DefaultMaxConcurrency
	}
	if p.FunctionPrefix == "" {
		p.FunctionPrefix = p.Name
	}
}
