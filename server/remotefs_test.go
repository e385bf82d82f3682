package server

import (
	"context"
	"errors"
	"testing"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/config"
	"github.com/brettbedarf/remotefs/filesystem"
	"github.com/brettbedarf/remotefs/internal/metrics"
	"github.com/brettbedarf/remotefs/internal/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSession(closeErr error) *mocks.MockSession {
	s := &mocks.MockSession{}
	s.On("RootID").Return("root").Maybe()
	s.On("AccountID").Return("tester@example.com").Maybe()
	s.On("Close").Return(closeErr).Once()
	return s
}

func TestNew_DispatchesThroughFileSystem(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	fs := New(config.NewDefaultConfig(), newMockSession(nil), metrics.New(reg))

	resp := fs.Dispatcher().Dispatch(context.Background(), &filesystem.Request{Op: filesystem.OpGetVolumeInformation})
	require.NoError(t, resp.Err)
	assert.Equal(t, "tester@example.com", resp.Volume.Label)

	count, err := testutil.GatherAndCount(reg, "remotefs_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUnmount_WithoutServe(t *testing.T) {
	t.Parallel()

	s := newMockSession(nil)
	fs := New(config.NewDefaultConfig(), s, nil)

	fh, _, err := fs.CreateFile(context.Background(), "/", remotefs.CreateModeOpen, true)
	require.NoError(t, err)
	require.NotZero(t, fh)

	require.NoError(t, fs.Unmount())
	assert.Equal(t, 0, fs.OpenHandles(), "handles are released on unmount")
	s.AssertExpectations(t)
}

func TestUnmount_ReportsCloseError(t *testing.T) {
	t.Parallel()

	closeErr := errors.New("connection already closed")
	fs := New(config.NewDefaultConfig(), newMockSession(closeErr), nil)

	err := fs.Unmount()
	require.ErrorIs(t, err, closeErr)
}
