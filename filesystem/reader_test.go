package filesystem

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/internal/mocks"
	"github.com/brettbedarf/remotefs/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fileObject(id string, size int64) *remotefs.RemoteObject {
	return &remotefs.RemoteObject{ID: id, Name: id, Copyable: util.Pointer(true), Size: util.Pointer(size)}
}

// errReader fails after returning a few bytes.
type errReader struct{ n int }

func (r *errReader) Read(p []byte) (int, error) {
	if r.n > 0 {
		k := min(r.n, len(p))
		r.n -= k
		return k, nil
	}
	return 0, errors.New("connection reset by peer")
}

func TestReader_SingleExactRange(t *testing.T) {
	t.Parallel()

	client := &mocks.MockSession{}
	client.On("OpenRange", mock.Anything, "F7", int64(100), int64(149)).
		Return(io.NopCloser(strings.NewReader(strings.Repeat("x", 50))), nil).Once()
	r := NewReader(client)

	buf := make([]byte, 50)
	n, err := r.ReadAt(context.Background(), fileObject("F7", 1000), buf, 100)

	require.NoError(t, err)
	assert.Equal(t, 50, n)
	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "OpenRange", 1)
}

func TestReader_UnknownSizeFetchesRequestedRange(t *testing.T) {
	t.Parallel()

	client := &mocks.MockSession{}
	client.On("OpenRange", mock.Anything, "doc", int64(100), int64(149)).
		Return(io.NopCloser(strings.NewReader("short")), nil).Once()
	r := NewReader(client)

	obj := &remotefs.RemoteObject{ID: "doc", Copyable: util.Pointer(true)}
	buf := make([]byte, 50)
	n, err := r.ReadAt(context.Background(), obj, buf, 100)

	require.NoError(t, err)
	assert.Equal(t, 5, n, "at most the bytes the backend returned")
	assert.Equal(t, "short", string(buf[:n]))
	client.AssertExpectations(t)
}

func TestReader_DirectoryIsAccessDenied(t *testing.T) {
	t.Parallel()

	client := &mocks.MockSession{}
	r := NewReader(client)
	dir := &remotefs.RemoteObject{ID: "D1", MimeType: remotefs.FolderMimeType, Copyable: util.Pointer(false)}

	n, err := r.ReadAt(context.Background(), dir, make([]byte, 10), 0)

	require.ErrorIs(t, err, remotefs.ErrAccessDenied)
	assert.Equal(t, 0, n)
	client.AssertNotCalled(t, "OpenRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReader_ClampsToSize(t *testing.T) {
	t.Parallel()

	client := &mocks.MockSession{}
	client.On("OpenRange", mock.Anything, "F", int64(8), int64(9)).
		Return(io.NopCloser(strings.NewReader("ab")), nil).Once()
	r := NewReader(client)

	buf := make([]byte, 100)
	n, err := r.ReadAt(context.Background(), fileObject("F", 10), buf, 8)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	client.AssertExpectations(t)
}

func TestReader_PastEndNoFetch(t *testing.T) {
	t.Parallel()

	client := &mocks.MockSession{}
	r := NewReader(client)

	for _, offset := range []int64{10, 11, 1 << 40} {
		n, err := r.ReadAt(context.Background(), fileObject("F", 10), make([]byte, 4), offset)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}
	n, err := r.ReadAt(context.Background(), fileObject("F", 10), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	client.AssertNotCalled(t, "OpenRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReader_OpenFailureIsTransport(t *testing.T) {
	t.Parallel()

	client := &mocks.MockSession{}
	client.On("OpenRange", mock.Anything, "F", int64(0), int64(3)).
		Return(nil, errors.New("dial tcp: timeout")).Once()
	r := NewReader(client)

	n, err := r.ReadAt(context.Background(), fileObject("F", 10), make([]byte, 4), 0)

	require.ErrorIs(t, err, remotefs.ErrTransport)
	assert.Equal(t, 0, n)
	client.AssertNumberOfCalls(t, "OpenRange", 1)
}

func TestReader_NotFoundPassesThrough(t *testing.T) {
	t.Parallel()

	client := &mocks.MockSession{}
	client.On("OpenRange", mock.Anything, "gone", int64(0), int64(3)).
		Return(nil, remotefs.NotFound("gone")).Once()
	r := NewReader(client)

	_, err := r.ReadAt(context.Background(), fileObject("gone", 10), make([]byte, 4), 0)

	require.ErrorIs(t, err, remotefs.ErrNotFound)
}

func TestReader_MidStreamFailureReadsNothing(t *testing.T) {
	t.Parallel()

	client := &mocks.MockSession{}
	client.On("OpenRange", mock.Anything, "F", int64(0), int64(9)).
		Return(io.NopCloser(&errReader{n: 3}), nil).Once()
	r := NewReader(client)

	n, err := r.ReadAt(context.Background(), fileObject("F", 10), make([]byte, 10), 0)

	require.ErrorIs(t, err, remotefs.ErrTransport)
	assert.Equal(t, 0, n, "transport failures report zero bytes")
}
