package filesystem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/config"
	"github.com/brettbedarf/remotefs/internal/util"
)

const rootID = "root"

// fakeStore provides an in-memory ID-addressed backend that counts remote calls.
type fakeStore struct {
	mu       sync.Mutex
	objects  map[string]*remotefs.RemoteObject
	children map[string][]string
	content  map[string][]byte
	nextID   int

	findCalls   atomic.Int32
	listCalls   atomic.Int32
	getCalls    atomic.Int32
	rangeCalls  atomic.Int32
	createCalls atomic.Int32

	// failAll makes every call fail with a transport error
	failAll atomic.Bool
	// rangeErr is returned by OpenRange when set
	rangeErr error
	// getErr is returned by GetObject when set
	getErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:  map[string]*remotefs.RemoteObject{},
		children: map[string][]string{},
		content:  map[string][]byte{},
	}
}

func (s *fakeStore) addDir(parentID, id, name string) *remotefs.RemoteObject {
	return s.add(parentID, &remotefs.RemoteObject{
		ID:       id,
		Name:     name,
		MimeType: remotefs.FolderMimeType,
		Copyable: util.Pointer(false),
	})
}

func (s *fakeStore) addFile(parentID, id, name string, data []byte) *remotefs.RemoteObject {
	obj := s.add(parentID, &remotefs.RemoteObject{
		ID:       id,
		Name:     name,
		MimeType: "text/plain",
		Copyable: util.Pointer(true),
		Size:     util.Pointer(int64(len(data))),
	})
	s.mu.Lock()
	s.content[id] = data
	s.mu.Unlock()
	return obj
}

func (s *fakeStore) add(parentID string, obj *remotefs.RemoteObject) *remotefs.RemoteObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj.ParentIDs = []string{parentID}
	s.objects[obj.ID] = obj
	s.children[parentID] = append(s.children[parentID], obj.ID)
	return obj
}

func (s *fakeStore) remoteCalls() int32 {
	return s.findCalls.Load() + s.listCalls.Load() + s.getCalls.Load() + s.rangeCalls.Load() + s.createCalls.Load()
}

func (s *fakeStore) RootID() string    { return rootID }
func (s *fakeStore) AccountID() string { return "alice@example.com" }
func (s *fakeStore) Close() error      { return nil }

var errUnreachable = errors.New("backend unreachable")

func (s *fakeStore) ListChildren(_ context.Context, parentID string) ([]remotefs.RemoteObject, error) {
	s.listCalls.Add(1)
	if s.failAll.Load() {
		return nil, remotefs.Transport("list", errUnreachable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []remotefs.RemoteObject{}
	for _, id := range s.children[parentID] {
		out = append(out, *s.objects[id])
	}
	return out, nil
}

func (s *fakeStore) FindChildren(_ context.Context, parentID, name string) ([]remotefs.RemoteObject, error) {
	s.findCalls.Add(1)
	if s.failAll.Load() {
		return nil, remotefs.Transport("find", errUnreachable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []remotefs.RemoteObject
	for _, id := range s.children[parentID] {
		if s.objects[id].Name == name {
			out = append(out, *s.objects[id])
		}
	}
	return out, nil
}

func (s *fakeStore) GetObject(_ context.Context, id string) (*remotefs.RemoteObject, error) {
	s.getCalls.Add(1)
	if s.failAll.Load() {
		return nil, remotefs.Transport("get", errUnreachable)
	}
	if s.getErr != nil {
		return nil, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, remotefs.NotFound(id)
	}
	cp := *obj
	return &cp, nil
}

func (s *fakeStore) OpenRange(_ context.Context, id string, start, end int64) (io.ReadCloser, error) {
	s.rangeCalls.Add(1)
	if s.rangeErr != nil {
		return nil, s.rangeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.content[id]
	if !ok {
		return nil, remotefs.NotFound(id)
	}
	if start >= int64(len(data)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if end < 0 || end >= int64(len(data)) {
		end = int64(len(data)) - 1
	}
	return io.NopCloser(bytes.NewReader(data[start : end+1])), nil
}

func (s *fakeStore) CreateFolder(_ context.Context, parentID, name string) (*remotefs.RemoteObject, error) {
	s.createCalls.Add(1)
	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("new-%d", s.nextID)
	s.mu.Unlock()
	obj := s.addDir(parentID, id, name)
	cp := *obj
	return &cp, nil
}

var _ remotefs.Session = (*fakeStore)(nil)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func createTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLvl = util.InfoLevel
	return cfg
}

// newDocsStore builds /docs/report.txt (D1/F7) plus /empty and /notes.txt.
func newDocsStore() *fakeStore {
	s := newFakeStore()
	s.addDir(rootID, "D1", "docs")
	s.addFile("D1", "F7", "report.txt", []byte("quarterly numbers"))
	s.addDir(rootID, "E1", "empty")
	s.addFile(rootID, "N1", "notes.txt", []byte("hello"))
	return s
}

func newTestFS(t *testing.T, s *fakeStore, clock *fakeClock, cfg *config.Config) *FileSystem {
	t.Helper()
	if cfg == nil {
		cfg = createTestConfig()
	}
	if clock == nil {
		clock = newFakeClock()
	}
	fs := NewFS(cfg, s, WithClock(clock.Now))
	t.Cleanup(func() { fs.Unmounted(context.Background()) })
	return fs
}
