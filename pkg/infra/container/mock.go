package container

import "context"

// MockClient is a test double for Client with overridable behavior.
type MockClient struct {
	AvailableFunc func(ctx context.Context) error
	HasImageFunc  func(ctx context.Context, image string) (bool, error)
	PullImageFunc func(ctx context.Context, image string) error

	Pulled []string
}

func (m *MockClient) Available(ctx context.Context) error {
	if m.AvailableFunc != nil {
		return m.AvailableFunc(ctx)
	}
	return nil
}

func (m *MockClient) HasImage(ctx context.Context, image string) (bool, error) {
	if m.HasImageFunc != nil {
		return m.HasImageFunc(ctx, image)
	}
	return true, nil
}

func (m *MockClient) PullImage(ctx context.Context, image string) error {
	m.Pulled = append(m.Pulled, image)
	if m.PullImageFunc != nil {
		return m.PullImageFunc(ctx, image)
	}
	return nil
}

// Compile-time assertion: MockClient must implement Client.
var _ Client = (*MockClient)(nil)
