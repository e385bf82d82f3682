package filesystem

import (
	"sync/atomic"

	"github.com/brettbedarf/remotefs/internal/metrics"
	"github.com/puzpuzpuz/xsync/v4"
)

// handleTable maps handle numbers to open contexts. Handle 0 is never issued so
// bridges can use it to mean "no handle".
type handleTable struct {
	handles *xsync.Map[uint64, *HandleContext]
	lastFH  atomic.Uint64
	maxFH   uint64
	metrics *metrics.Metrics
}

func newHandleTable(maxFH int, m *metrics.Metrics) *handleTable {
	if maxFH <= 0 {
		maxFH = 1<<31 - 1
	}
	return &handleTable{
		handles: xsync.NewMap[uint64, *HandleContext](),
		maxFH:   uint64(maxFH),
		metrics: m,
	}
}

// open assigns a free handle number to h and registers it.
func (t *handleTable) open(h *HandleContext) uint64 {
	for {
		fh := t.lastFH.Add(1)
		if fh > t.maxFH {
			// wrap; numbers still in use are skipped by LoadOrStore below
			t.lastFH.CompareAndSwap(fh, 0)
			continue
		}
		h.fh = fh
		if _, loaded := t.handles.LoadOrStore(fh, h); !loaded {
			t.metrics.HandleOpened()
			return fh
		}
	}
}

func (t *handleTable) get(fh uint64) (*HandleContext, bool) {
	if fh == 0 {
		return nil, false
	}
	return t.handles.Load(fh)
}

// release unregisters fh and closes its context. Releasing an unknown or
// already released handle is a no-op.
func (t *handleTable) release(fh uint64) bool {
	h, ok := t.handles.LoadAndDelete(fh)
	if !ok {
		return false
	}
	h.Close()
	t.metrics.HandleClosed()
	return true
}

// releaseAll closes every open handle, used on unmount.
func (t *handleTable) releaseAll() int {
	n := 0
	t.handles.Range(func(fh uint64, _ *HandleContext) bool {
		if t.release(fh) {
			n++
		}
		return true
	})
	return n
}

func (t *handleTable) len() int {
	return t.handles.Size()
}
