// Package config defines default configuration and the project manifest.
package config

// Defaults.
const (
	DefaultRegion = "us-east-1"

	// DefaultRuntime is the Lambda runtime functions and the layer target.
	DefaultRuntime = "python3.12"

	// DefaultLayerSizeLimit is the zipped size ceiling for a direct layer
	// publish. Lambda rejects archives above this, so the builder treats it
	// as a hard failure.
	DefaultLayerSizeLimit = 50 * 1024 * 1024

	// DefaultLeakRatio is the minimum layer/function size ratio. A function
	// artifact larger than layerSize/ratio indicates a layer-provided
	// dependency leaked into the function package. 0 disables the check.
	DefaultLeakRatio = 10

	// DefaultMaxConcurrency bounds the function deployment fan-out.
	DefaultMaxConcurrency = 4

	// DefaultManifestName is the per-unit dependency manifest.
	DefaultManifestName = "requirements.txt"

	// DefaultOutputDir receives run summaries and staged artifacts.
	DefaultOutputDir = "layerline-out"
)
