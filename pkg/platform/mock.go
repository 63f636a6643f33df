package platform

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory API for tests and dry runs. It assigns layer
// versions monotonically per layer name and records every call.
type Mock struct {
	mu sync.Mutex

	versions  map[string]int64
	Published []PublishLayerInput
	Updated   []UpdateFunctionInput

	// PublishErr and UpdateErr, when set, fail the matching calls.
	PublishErr error
	UpdateErr  error

	// FailFunctions fails UpdateFunction for the named functions only.
	FailFunctions map[string]error
}

func NewMock() *Mock {
	return &Mock{versions: make(map[string]int64)}
}

func (m *Mock) PublishLayer(ctx context.Context, in PublishLayerInput) (PublishLayerOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishErr != nil {
		return PublishLayerOutput{}, m.PublishErr
	}

	m.versions[in.Name]++
	v := m.versions[in.Name]
	m.Published = append(m.Published, in)

	return PublishLayerOutput{
		Version: v,
		ARN:     fmt.Sprintf("arn:aws:lambda:us-east-1:123456789012:layer:%s:%d", in.Name, v),
	}, nil
}

func (m *Mock) UpdateFunction(ctx context.Context, in UpdateFunctionInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if err, ok := m.FailFunctions[in.FunctionName]; ok {
		return err
	}

	m.Updated = append(m.Updated, in)
	return nil
}

// SetVersion seeds the next publish of name to start above v.
func (m *Mock) SetVersion(name string, v int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[name] = v
}
