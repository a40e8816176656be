package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockResolver is a mock implementation of resolve.Resolver
type MockResolver struct {
	mock.Mock
}

func NewMockResolver() *MockResolver {
	return &MockResolver{}
}

func (m *MockResolver) Resolve(ctx context.Context, identifier string) (map[string]any, error) {
	ret := m.Called(ctx, identifier)

	var metadata map[string]any
	if rf, ok := ret.Get(0).(func(context.Context, string) map[string]any); ok {
		metadata = rf(ctx, identifier)
	} else if ret.Get(0) != nil {
		metadata = ret.Get(0).(map[string]any)
	}

	var err error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		err = rf(ctx, identifier)
	} else {
		err = ret.Error(1)
	}

	return metadata, err
}
