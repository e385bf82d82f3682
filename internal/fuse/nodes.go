package fuse

import (
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/remotefs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// node ties a kernel NodeID to the path it was looked up under.
type node struct {
	id      uint64
	path    string
	lookups int64 // guarded by nodeTable.mu
}

// nodeTable maps kernel NodeIDs to paths. The root is always FUSE_ROOT_ID and
// is never forgotten. Reads are lock free; mu serializes lookup and forget so
// a node is never handed out while it is being removed.
type nodeTable struct {
	mu     sync.Mutex
	byID   *xsync.Map[uint64, *node]
	byPath *xsync.Map[string, *node]
	lastID atomic.Uint64
}

func newNodeTable() *nodeTable {
	t := &nodeTable{
		byID:   xsync.NewMap[uint64, *node](),
		byPath: xsync.NewMap[string, *node](),
	}
	root := &node{id: fuse.FUSE_ROOT_ID, path: "/"}
	t.byID.Store(root.id, root)
	t.byPath.Store(root.path, root)
	t.lastID.Store(fuse.FUSE_ROOT_ID)
	return t
}

func (t *nodeTable) path(id uint64) (string, bool) {
	n, ok := t.byID.Load(id)
	if !ok {
		return "", false
	}
	return n.path, true
}

// idFor returns the NodeID already issued for p, if any.
func (t *nodeTable) idFor(p string) (uint64, bool) {
	n, ok := t.byPath.Load(p)
	if !ok {
		return 0, false
	}
	return n.id, true
}

// lookup retrieves or allocates the node for p and counts one kernel lookup.
func (t *nodeTable) lookup(p string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byPath.Load(p)
	if !ok {
		n = &node{id: t.lastID.Add(1), path: p}
		t.byPath.Store(p, n)
		t.byID.Store(n.id, n)
	}
	n.lookups++
	return n.id
}

// forget drops nlookup references and removes the node once none remain.
func (t *nodeTable) forget(id, nlookup uint64) {
	if id == fuse.FUSE_ROOT_ID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byID.Load(id)
	if !ok {
		util.GetLogger("Fuse.Forget").Debug().Uint64("id", id).Msg("No node found")
		return
	}
	n.lookups -= int64(nlookup)
	if n.lookups > 0 {
		return
	}
	t.byID.Delete(id)
	if cur, ok := t.byPath.Load(n.path); ok && cur == n {
		t.byPath.Delete(n.path)
	}
}

func (t *nodeTable) len() int {
	return t.byID.Size()
}
