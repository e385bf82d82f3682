package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brettbedarf/remotefs"
)

// MemorySession is an in-memory remotefs.Session for tests that need a real
// backend behind a mount rather than per-call expectations.
type MemorySession struct {
	mu       sync.Mutex
	rootID   string
	objects  map[string]*remotefs.RemoteObject
	children map[string][]string
	content  map[string][]byte
	nextID   int

	// Calls counts every remote call
	Calls atomic.Int32
}

func NewMemorySession() *MemorySession {
	return &MemorySession{
		rootID:   "root",
		objects:  map[string]*remotefs.RemoteObject{},
		children: map[string][]string{},
		content:  map[string][]byte{},
	}
}

// AddDir adds a folder under parentID and returns its id.
func (m *MemorySession) AddDir(parentID, name string) string {
	notCopyable := false
	return m.add(parentID, &remotefs.RemoteObject{
		Name:     name,
		MimeType: remotefs.FolderMimeType,
		Copyable: &notCopyable,
	}, nil)
}

// AddFile adds a regular file under parentID and returns its id.
func (m *MemorySession) AddFile(parentID, name string, data []byte, modified time.Time) string {
	copyable := true
	size := int64(len(data))
	return m.add(parentID, &remotefs.RemoteObject{
		Name:       name,
		MimeType:   "application/octet-stream",
		Copyable:   &copyable,
		Size:       &size,
		ModifiedAt: &modified,
	}, data)
}

func (m *MemorySession) add(parentID string, obj *remotefs.RemoteObject, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	obj.ID = fmt.Sprintf("obj-%d", m.nextID)
	obj.ParentIDs = []string{parentID}
	m.objects[obj.ID] = obj
	m.children[parentID] = append(m.children[parentID], obj.ID)
	if data != nil {
		m.content[obj.ID] = data
	}
	return obj.ID
}

func (m *MemorySession) RootID() string    { return m.rootID }
func (m *MemorySession) AccountID() string { return "tester@example.com" }
func (m *MemorySession) Close() error      { return nil }

func (m *MemorySession) ListChildren(_ context.Context, parentID string) ([]remotefs.RemoteObject, error) {
	m.Calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []remotefs.RemoteObject{}
	for _, id := range m.children[parentID] {
		out = append(out, *m.objects[id])
	}
	return out, nil
}

func (m *MemorySession) FindChildren(_ context.Context, parentID, name string) ([]remotefs.RemoteObject, error) {
	m.Calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []remotefs.RemoteObject
	for _, id := range m.children[parentID] {
		if m.objects[id].Name == name {
			out = append(out, *m.objects[id])
		}
	}
	return out, nil
}

func (m *MemorySession) GetObject(_ context.Context, id string) (*remotefs.RemoteObject, error) {
	m.Calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[id]
	if !ok {
		return nil, remotefs.NotFound(id)
	}
	cp := *obj
	return &cp, nil
}

func (m *MemorySession) OpenRange(_ context.Context, id string, start, end int64) (io.ReadCloser, error) {
	m.Calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.content[id]
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

func (m *MemorySession) CreateFolder(_ context.Context, parentID, name string) (*remotefs.RemoteObject, error) {
	m.Calls.Add(1)
	id := m.AddDir(parentID, name)
	return m.GetObject(context.Background(), id)
}

var _ remotefs.Session = (*MemorySession)(nil)
