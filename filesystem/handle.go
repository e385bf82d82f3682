package filesystem

import (
	"io"
	"sync"

	"github.com/brettbedarf/remotefs"
	"github.com/google/uuid"
)

// HandleContext is the per-open state threaded back into later callbacks on the
// same handle. It owns any locally buffered stream and releases it on Close.
//
// Calling HandleContext.Close() unwinds all cleanup callbacks in reverse order.
type HandleContext struct {
	fh      uint64
	traceID string
	path    string
	isDir   bool
	// object is nil when the handle was opened without fetching metadata; it is
	// then resolved lazily from path
	object *remotefs.RemoteObject

	streamMu sync.Mutex // serializes reposition+read on stream
	stream   io.ReadSeeker

	closeMu  sync.Mutex
	closeFns []func()
	closed   bool
}

func newHandleContext(path string, obj *remotefs.RemoteObject, isDir bool) *HandleContext {
	return &HandleContext{
		traceID: uuid.NewString(),
		path:    path,
		object:  obj,
		isDir:   isDir,
	}
}

// FH returns the handle number assigned on open.
func (h *HandleContext) FH() uint64 {
	return h.fh
}

// TraceID correlates every log line emitted for this handle.
func (h *HandleContext) TraceID() string {
	return h.traceID
}

func (h *HandleContext) Path() string {
	return h.path
}

func (h *HandleContext) IsDir() bool {
	return h.isDir
}

// Object returns the metadata snapshot attached on open, or nil.
func (h *HandleContext) Object() *remotefs.RemoteObject {
	return h.object
}

// Buffered reports whether reads are served from a local stream.
func (h *HandleContext) Buffered() bool {
	h.streamMu.Lock()
	defer h.streamMu.Unlock()
	return h.stream != nil
}

// attachStream hands ownership of s to the handle; release runs on Close.
func (h *HandleContext) attachStream(s io.ReadSeeker, release func()) {
	h.streamMu.Lock()
	h.stream = s
	h.streamMu.Unlock()
	h.AddClose(func() {
		h.streamMu.Lock()
		h.stream = nil
		h.streamMu.Unlock()
		release()
	})
}

// ReadAt repositions the local stream and reads from it under the stream lock,
// so concurrent reads on this handle never interleave. Reads on other handles
// are not affected.
func (h *HandleContext) ReadAt(buf []byte, offset int64) (int, error) {
	h.streamMu.Lock()
	defer h.streamMu.Unlock()

	if h.stream == nil {
		return 0, remotefs.ErrNotFound
	}
	if _, err := h.stream.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(h.stream, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return n, err
}

// AddClose pushes a cleanup callback onto the end of the stack.
func (h *HandleContext) AddClose(fn func()) {
	h.closeMu.Lock()
	defer h.closeMu.Unlock()
	h.closeFns = append(h.closeFns, fn)
}

// Close unwinds all cleanup callbacks in reverse order.
// Safe to call more than once or on a nil handle; later calls are no-ops.
func (h *HandleContext) Close() {
	if h == nil {
		return
	}
	h.closeMu.Lock()
	if h.closed {
		h.closeMu.Unlock()
		return
	}
	h.closed = true
	fns := h.closeFns
	h.closeFns = nil
	h.closeMu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
