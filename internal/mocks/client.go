package mocks

import (
	"context"
	"io"

	"github.com/brettbedarf/remotefs"
	"github.com/stretchr/testify/mock"
)

// MockSession implements remotefs.Session for testing across packages
type MockSession struct {
	mock.Mock
}

func (m *MockSession) RootID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSession) AccountID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSession) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSession) ListChildren(ctx context.Context, parentID string) ([]remotefs.RemoteObject, error) {
	args := m.Called(ctx, parentID)

	// Handle function return types (for complex tests)
	if fn, ok := args.Get(0).(func(context.Context, string) []remotefs.RemoteObject); ok {
		return fn(ctx, parentID), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]remotefs.RemoteObject), args.Error(1)
}

func (m *MockSession) FindChildren(ctx context.Context, parentID, name string) ([]remotefs.RemoteObject, error) {
	args := m.Called(ctx, parentID, name)

	if fn, ok := args.Get(0).(func(context.Context, string, string) []remotefs.RemoteObject); ok {
		return fn(ctx, parentID, name), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]remotefs.RemoteObject), args.Error(1)
}

func (m *MockSession) GetObject(ctx context.Context, id string) (*remotefs.RemoteObject, error) {
	args := m.Called(ctx, id)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remotefs.RemoteObject), args.Error(1)
}

func (m *MockSession) OpenRange(ctx context.Context, id string, start, end int64) (io.ReadCloser, error) {
	args := m.Called(ctx, id, start, end)

	// Handle function return types so each call can get a fresh reader
	if fn, ok := args.Get(0).(func(context.Context, string, int64, int64) io.ReadCloser); ok {
		return fn(ctx, id, start, end), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockSession) CreateFolder(ctx context.Context, parentID, name string) (*remotefs.RemoteObject, error) {
	args := m.Called(ctx, parentID, name)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remotefs.RemoteObject), args.Error(1)
}

var _ remotefs.Session = (*MockSession)(nil)
