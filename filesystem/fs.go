package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/config"
	"github.com/brettbedarf/remotefs/internal/cache"
	"github.com/brettbedarf/remotefs/internal/metrics"
	"github.com/brettbedarf/remotefs/internal/util"
)

// FileSystem answers the [Operations] contract against a remote session. Each
// mount owns one instance; its caches and handles live and die with it.
type FileSystem struct {
	cfg       *config.Config
	client    remotefs.ObjectClient
	accountID string
	paths     *cache.TTL[string, string]
	objects   *cache.TTL[string, *remotefs.RemoteObject]
	resolver  *Resolver
	reader    *Reader
	handles   *handleTable
	metrics   *metrics.Metrics
}

var _ Operations = (*FileSystem)(nil)

// Option adjusts a FileSystem at construction.
type Option func(*fsOptions)

type fsOptions struct {
	clock   cache.Clock
	metrics *metrics.Metrics
}

// WithClock sets the clock used for cache expiry.
func WithClock(c cache.Clock) Option {
	return func(o *fsOptions) { o.clock = c }
}

// WithMetrics records operations, cache lookups and remote calls on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *fsOptions) { o.metrics = m }
}

func NewFS(cfg *config.Config, session remotefs.Session, opts ...Option) *FileSystem {
	o := fsOptions{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	client := instrument(session, o.metrics)
	ttl := cfg.CacheTTLDuration()
	paths := cache.New[string, string](ttl,
		cache.WithClock(o.clock),
		cache.WithMaxEntries(cfg.CacheMaxEntries),
		cache.WithObserver(func() { o.metrics.CacheHit("path") }, func() { o.metrics.CacheMiss("path") }),
	)
	objects := cache.New[string, *remotefs.RemoteObject](ttl,
		cache.WithClock(o.clock),
		cache.WithMaxEntries(cfg.CacheMaxEntries),
		cache.WithObserver(func() { o.metrics.CacheHit("object") }, func() { o.metrics.CacheMiss("object") }),
	)

	return &FileSystem{
		cfg:       cfg,
		client:    client,
		accountID: session.AccountID(),
		paths:     paths,
		objects:   objects,
		resolver:  NewResolver(client, paths, objects),
		reader:    NewReader(client),
		handles:   newHandleTable(cfg.MaxFH, o.metrics),
		metrics:   o.metrics,
	}
}

// Resolver exposes path resolution to bridges that track node ids.
func (fs *FileSystem) Resolver() *Resolver {
	return fs.resolver
}

// Handle returns the open context for fh.
func (fs *FileSystem) Handle(fh uint64) (*HandleContext, bool) {
	return fs.handles.get(fh)
}

// OpenHandles returns the number of open handles.
func (fs *FileSystem) OpenHandles() int {
	return fs.handles.len()
}

// CreateFile opens or creates path according to mode. Directories honor Open
// and CreateNew strictly; file-creating modes succeed without uploading anything.
func (fs *FileSystem) CreateFile(ctx context.Context, p string, mode remotefs.CreateMode, isDir bool) (uint64, bool, error) {
	logger := util.GetLogger("FileSystem.CreateFile")
	p = NormalizePath(p)

	id, resolveErr := fs.resolver.Resolve(ctx, p)
	exists := resolveErr == nil

	if isDir {
		return fs.openDirectory(ctx, p, id, exists, mode)
	}

	var obj *remotefs.RemoteObject
	switch mode {
	case remotefs.CreateModeOpen:
		if !exists {
			return 0, false, resolveErr
		}
		var err error
		if obj, err = fs.resolver.Object(ctx, id); err != nil {
			return 0, false, err
		}
	case remotefs.CreateModeCreateNew:
		if exists {
			return 0, false, fmt.Errorf("create %s: %w", p, remotefs.ErrAlreadyExists)
		}
	case remotefs.CreateModeTruncate:
		if !exists {
			return 0, false, resolveErr
		}
	default:
		// Create, OpenOrCreate and Append are accepted as-is
		// a metadata failure leaves the handle open without an object
		if exists {
			var err error
			if obj, err = fs.resolver.Object(ctx, id); err != nil {
				logger.Debug().Err(err).Str("path", p).Str("id", id).Str("mode", mode.String()).
					Msg("Opening handle without object metadata")
			}
		}
	}

	isDirectory := obj.IsDirectory()
	h := newHandleContext(p, obj, isDirectory)
	if obj != nil && !isDirectory && mode == remotefs.CreateModeOpen {
		fs.bufferLocally(ctx, h, obj)
	}
	fh := fs.handles.open(h)
	logger.Debug().Str("path", p).Str("mode", mode.String()).Uint64("fh", fh).Str("trace", h.TraceID()).
		Bool("isDir", isDirectory).Bool("buffered", h.Buffered()).Msg("Opened handle")
	return fh, isDirectory, nil
}

func (fs *FileSystem) openDirectory(ctx context.Context, p, id string, exists bool, mode remotefs.CreateMode) (uint64, bool, error) {
	logger := util.GetLogger("FileSystem.CreateFile")

	var obj *remotefs.RemoteObject
	switch {
	case mode == remotefs.CreateModeCreateNew && exists:
		return 0, false, fmt.Errorf("create directory %s: %w", p, remotefs.ErrAlreadyExists)
	case mode == remotefs.CreateModeOpen && !exists:
		return 0, false, remotefs.NotFound(p)
	case !exists:
		created, err := fs.createDirectory(ctx, p)
		if err != nil {
			return 0, false, err
		}
		obj = created
	default:
		var err error
		if obj, err = fs.resolver.Object(ctx, id); err != nil {
			return 0, false, err
		}
		if !obj.IsDirectory() {
			return 0, false, fmt.Errorf("open directory %s: %w", p, remotefs.ErrNotDirectory)
		}
	}

	h := newHandleContext(p, obj, true)
	fh := fs.handles.open(h)
	logger.Debug().Str("path", p).Str("mode", mode.String()).Uint64("fh", fh).Str("trace", h.TraceID()).Msg("Opened directory handle")
	return fh, true, nil
}

// createDirectory creates the last segment of p under its resolved parent.
func (fs *FileSystem) createDirectory(ctx context.Context, p string) (*remotefs.RemoteObject, error) {
	parentPath, name := path.Split(p)
	if name == "" {
		return nil, fmt.Errorf("create directory %s: %w", p, remotefs.ErrAlreadyExists)
	}
	parentID, err := fs.resolver.Resolve(ctx, parentPath)
	if err != nil {
		return nil, err
	}
	obj, err := fs.client.CreateFolder(ctx, parentID, name)
	if err != nil {
		return nil, asTransport("create folder", err)
	}
	fs.paths.Set(p, obj.ID)
	fs.objects.Set(obj.ID, obj)
	util.GetLogger("FileSystem.CreateFile").Info().Str("path", p).Str("id", obj.ID).Msg("Created remote directory")
	return obj, nil
}

// bufferLocally downloads small files into a temp file owned by h. Failures
// fall back to ranged reads.
func (fs *FileSystem) bufferLocally(ctx context.Context, h *HandleContext, obj *remotefs.RemoteObject) {
	if fs.cfg.LocalBufferMax <= 0 || obj.Size == nil || *obj.Size <= 0 || *obj.Size > fs.cfg.LocalBufferMax {
		return
	}
	logger := util.GetLogger("FileSystem.bufferLocally")

	f, err := os.CreateTemp(fs.cfg.LocalBufferDir, "remotefs-*")
	if err != nil {
		logger.Warn().Err(err).Str("trace", h.TraceID()).Msg("Failed to create local buffer")
		return
	}
	discard := func() {
		f.Close()
		os.Remove(f.Name())
	}

	rc, err := fs.client.OpenRange(ctx, obj.ID, 0, *obj.Size-1)
	if err != nil {
		logger.Warn().Err(err).Str("id", obj.ID).Str("trace", h.TraceID()).Msg("Failed to fetch content for local buffer")
		discard()
		return
	}
	_, err = io.Copy(f, rc)
	rc.Close()
	if err != nil {
		logger.Warn().Err(err).Str("id", obj.ID).Str("trace", h.TraceID()).Msg("Failed to fill local buffer")
		discard()
		return
	}

	h.attachStream(f, discard)
	logger.Debug().Str("id", obj.ID).Str("file", f.Name()).Str("trace", h.TraceID()).Msg("Buffered file locally")
}

// Cleanup releases the handle; CloseFile after it is a no-op.
func (fs *FileSystem) Cleanup(_ context.Context, p string, fh uint64) {
	fs.release("FileSystem.Cleanup", p, fh)
}

func (fs *FileSystem) CloseFile(_ context.Context, p string, fh uint64) {
	fs.release("FileSystem.CloseFile", p, fh)
}

func (fs *FileSystem) release(component, p string, fh uint64) {
	if fs.handles.release(fh) {
		util.GetLogger(component).Trace().Str("path", p).Uint64("fh", fh).Msg("Released handle")
	}
}

// ReadFile serves from the handle's local stream when one exists, otherwise
// through a fresh ranged fetch.
func (fs *FileSystem) ReadFile(ctx context.Context, p string, fh uint64, buf []byte, offset int64) (int, error) {
	h, ok := fs.handles.get(fh)
	if ok && h.Buffered() {
		n, err := h.ReadAt(buf, offset)
		if err != nil {
			return 0, asTransport("read local buffer", err)
		}
		fs.metrics.AddBytesRead(n)
		return n, nil
	}

	var obj *remotefs.RemoteObject
	if ok {
		obj = h.Object()
	}
	if obj == nil {
		var err error
		if obj, err = fs.resolver.Stat(ctx, p); err != nil {
			if errors.Is(err, remotefs.ErrTransport) {
				return 0, remotefs.NotFound(p)
			}
			return 0, err
		}
	}

	n, err := fs.reader.ReadAt(ctx, obj, buf, offset)
	fs.metrics.AddBytesRead(n)
	return n, err
}

// WriteFile always fails; durable writes are not implemented.
func (fs *FileSystem) WriteFile(_ context.Context, p string, _ uint64, _ []byte, _ int64) (int, error) {
	return 0, fmt.Errorf("write %s: %w", p, remotefs.ErrUnsupported)
}

// FlushFileBuffers has nothing to flush since nothing is ever written.
func (fs *FileSystem) FlushFileBuffers(context.Context, string, uint64) error {
	return nil
}

// GetFileInformation resolves path and translates its metadata.
func (fs *FileSystem) GetFileInformation(ctx context.Context, p string, _ uint64) (remotefs.FileInformation, error) {
	obj, err := fs.resolver.Stat(ctx, p)
	if err != nil {
		return remotefs.FileInformation{}, err
	}
	info := ToFileInformation(obj)
	if info.Name == "" {
		info.Name = path.Base(NormalizePath(p))
	}
	return info, nil
}

// FindFiles lists the children of path. A failed listing fails the whole call;
// an empty directory yields an empty, non-nil slice.
func (fs *FileSystem) FindFiles(ctx context.Context, p string) ([]remotefs.FileInformation, error) {
	p = NormalizePath(p)
	id, err := fs.resolver.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	children, err := fs.client.ListChildren(ctx, id)
	if err != nil {
		return nil, asTransport("list children", err)
	}

	entries := make([]remotefs.FileInformation, 0, len(children))
	for i := range children {
		child := &children[i]
		fs.resolver.Remember(p, child)
		entries = append(entries, ToFileInformation(child))
	}
	util.GetLogger("FileSystem.FindFiles").Trace().Str("path", p).Int("entries", len(entries)).Msg("Listed directory")
	return entries, nil
}

// The following mutate nothing on the backend and report success.

func (fs *FileSystem) SetFileAttributes(context.Context, string, remotefs.FileAttributes) error {
	return nil
}

func (fs *FileSystem) SetFileTime(context.Context, string, *time.Time, *time.Time, *time.Time) error {
	return nil
}

func (fs *FileSystem) DeleteDirectory(context.Context, string) error {
	return nil
}

func (fs *FileSystem) MoveFile(context.Context, string, string, bool) error {
	return nil
}

func (fs *FileSystem) LockFile(context.Context, string, int64, int64) error {
	return nil
}

func (fs *FileSystem) UnlockFile(context.Context, string, int64, int64) error {
	return nil
}

// DeleteFile always fails; deletion is not implemented.
func (fs *FileSystem) DeleteFile(_ context.Context, p string) error {
	return fmt.Errorf("delete %s: %w", p, remotefs.ErrUnsupported)
}

func (fs *FileSystem) SetEndOfFile(_ context.Context, p string, _ int64) error {
	return fmt.Errorf("set end of file %s: %w", p, remotefs.ErrUnsupported)
}

func (fs *FileSystem) SetAllocationSize(_ context.Context, p string, _ int64) error {
	return fmt.Errorf("set allocation size %s: %w", p, remotefs.ErrUnsupported)
}

// GetDiskFreeSpace reports the configured capacity, not a measured one.
func (fs *FileSystem) GetDiskFreeSpace(context.Context) (remotefs.DiskSpace, error) {
	return remotefs.DiskSpace{
		Free:  fs.cfg.VolumeFreeBytes,
		Total: fs.cfg.VolumeTotalBytes,
		Used:  fs.cfg.VolumeTotalBytes - fs.cfg.VolumeFreeBytes,
	}, nil
}

// GetVolumeInformation labels the volume with the authenticated account.
func (fs *FileSystem) GetVolumeInformation(context.Context) (remotefs.VolumeInfo, error) {
	return remotefs.VolumeInfo{
		Label:          fs.accountID,
		FileSystemName: fs.cfg.FsName,
	}, nil
}

func (fs *FileSystem) GetFileSecurity(_ context.Context, p string) ([]byte, error) {
	return nil, fmt.Errorf("security descriptor %s: %w", p, remotefs.ErrUnsupported)
}

func (fs *FileSystem) SetFileSecurity(_ context.Context, p string, _ []byte) error {
	return fmt.Errorf("security descriptor %s: %w", p, remotefs.ErrUnsupported)
}

func (fs *FileSystem) FindStreams(_ context.Context, p string) ([]remotefs.FileInformation, error) {
	return nil, fmt.Errorf("named streams %s: %w", p, remotefs.ErrUnsupported)
}

func (fs *FileSystem) Mounted(context.Context) error {
	util.GetLogger("FileSystem.Mounted").Info().Str("account", fs.accountID).Msg("Volume mounted")
	return nil
}

// Unmounted releases every handle still open and drops both caches.
func (fs *FileSystem) Unmounted(context.Context) error {
	n := fs.handles.releaseAll()
	fs.paths.Purge()
	fs.objects.Purge()
	util.GetLogger("FileSystem.Unmounted").Info().Int("released", n).Msg("Volume unmounted")
	return nil
}
