// Package platform talks to the serverless provider: publishing shared
// layers and swapping function code. Everything above it works against the
// API interface so the orchestrator can run against a mock in tests.
package platform

import "context"

// PublishLayerInput carries one built layer archive to the platform.
type PublishLayerInput struct {
	Name        string
	Description string
	Runtime     string
	Archive     []byte
}

// PublishLayerOutput is the platform's identity for the published layer.
// Version is assigned by the platform and only ever increases.
type PublishLayerOutput struct {
	Version int64
	ARN     string
}

// UpdateFunctionInput swaps a function's code and pins its layer. An empty
// LayerARN leaves the function's layer configuration untouched.
type UpdateFunctionInput struct {
	FunctionName string
	Archive      []byte
	LayerARN     string
}

// API is the provider surface the orchestrator needs.
type API interface {
	PublishLayer(ctx context.Context, in PublishLayerInput) (PublishLayerOutput, error)
	UpdateFunction(ctx context.Context, in UpdateFunctionInput) error
}
