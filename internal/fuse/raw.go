// Package fuse bridges the kernel FUSE wire protocol onto the filesystem
// callback surface. Kernel NodeIDs are mapped to paths here; everything else is
// answered by the dispatcher.
package fuse

import (
	"context"
	"errors"
	"os"
	"path"
	"syscall"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/config"
	"github.com/brettbedarf/remotefs/filesystem"
	"github.com/brettbedarf/remotefs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

const (
	blockSize = 4096
	// reported for readdir entries the kernel has not looked up yet
	unknownIno = 0xffffffff
)

// FuseRaw implements the low-level FUSE wire protocol
// It serves as protocol adapter between the FUSE and core filesystem
// See https://www.man7.org/linux//man-pages/man4/fuse.4.html
type FuseRaw struct {
	fuse.RawFileSystem
	cfg      *config.Config
	dispatch *filesystem.Dispatcher
	nodes    *nodeTable
	// listings keeps one directory snapshot per open directory handle so
	// offsets stay stable across ReadDir calls
	listings *xsync.Map[uint64, []remotefs.FileInformation]
	owner    fuse.Owner
	server   *fuse.Server
}

func NewFuseRaw(cfg *config.Config, dispatch *filesystem.Dispatcher) *FuseRaw {
	return &FuseRaw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		cfg:           cfg,
		dispatch:      dispatch,
		nodes:         newNodeTable(),
		listings:      xsync.NewMap[uint64, []remotefs.FileInformation](),
		owner: fuse.Owner{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		},
	}
}

func (r *FuseRaw) Init(s *fuse.Server) {
	logger := util.GetLogger("Fuse.Init")
	logger.Debug().Msg("FUSE initialized")
	r.server = s
	r.dispatch.Dispatch(context.Background(), &filesystem.Request{Op: filesystem.OpMounted})
}

func (r *FuseRaw) OnUnmount() {
	logger := util.GetLogger("Fuse.OnUnmount")
	logger.Info().Msg("FUSE unmounted")
	r.dispatch.Dispatch(context.Background(), &filesystem.Request{Op: filesystem.OpUnmounted})
}

func (r *FuseRaw) String() string {
	return "FuseRaw"
}

// call runs req with a context cancelled when the kernel interrupts the request.
func (r *FuseRaw) call(cancel <-chan struct{}, req *filesystem.Request) *filesystem.Response {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if cancel != nil {
		go func() {
			select {
			case <-cancel:
				stop()
			case <-ctx.Done():
			}
		}()
	}
	return r.dispatch.Dispatch(ctx, req)
}

// Lookup is called by the kernel when the VFS wants to know
// about a file inside a directory. Many lookup calls can
// occur in parallel, but only one call happens for each (dir,
// name) pair.
func (r *FuseRaw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	parent, ok := r.nodes.path(header.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	p := path.Join(parent, name)

	resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpGetFileInformation, Path: p})
	if resp.Err != nil {
		return toStatus(filesystem.OpGetFileInformation, resp.Err)
	}
	r.fillEntry(out, r.nodes.lookup(p), resp.Info)
	return fuse.OK
}

// Forget is called when the kernel discards entries from its
// dentry cache. Since there is no return value, Forget does no I/O.
func (r *FuseRaw) Forget(nodeid, nlookup uint64) {
	r.nodes.forget(nodeid, nlookup)
}

func (r *FuseRaw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	p, ok := r.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpGetFileInformation, Path: p, FH: input.Fh()})
	if resp.Err != nil {
		return toStatus(filesystem.OpGetFileInformation, resp.Err)
	}
	r.fillAttr(&out.Attr, input.NodeId, resp.Info)
	out.SetTimeout(r.cfg.AttrTimeoutDuration())
	return fuse.OK
}

// SetAttr accepts mode and time changes without applying them; size changes
// are refused since content is never written.
func (r *FuseRaw) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	p, ok := r.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if size, ok := input.GetSize(); ok {
		resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpSetEndOfFile, Path: p, Length: int64(size)})
		if resp.Err != nil {
			return toStatus(filesystem.OpSetEndOfFile, resp.Err)
		}
	}
	if _, ok := input.GetMode(); ok {
		resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpSetFileAttributes, Path: p, Attributes: remotefs.FileAttributeNormal})
		if resp.Err != nil {
			return toStatus(filesystem.OpSetFileAttributes, resp.Err)
		}
	}
	atime, hasAtime := input.GetATime()
	mtime, hasMtime := input.GetMTime()
	if hasAtime || hasMtime {
		req := &filesystem.Request{Op: filesystem.OpSetFileTime, Path: p}
		if hasAtime {
			req.Access = &atime
		}
		if hasMtime {
			req.Write = &mtime
		}
		if resp := r.call(cancel, req); resp.Err != nil {
			return toStatus(filesystem.OpSetFileTime, resp.Err)
		}
	}

	fh, _ := input.GetFh()
	resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpGetFileInformation, Path: p, FH: fh})
	if resp.Err != nil {
		return toStatus(filesystem.OpGetFileInformation, resp.Err)
	}
	r.fillAttr(&out.Attr, input.NodeId, resp.Info)
	out.SetTimeout(r.cfg.AttrTimeoutDuration())
	return fuse.OK
}

func (r *FuseRaw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	p, ok := r.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpCreateFile, Path: p, Mode: remotefs.CreateModeOpen, IsDir: true})
	if resp.Err != nil {
		return toStatus(filesystem.OpCreateFile, resp.Err)
	}
	out.Fh = resp.FH
	return fuse.OK
}

// ReadDir lists "." and ".." at offsets 0 and 1, then the directory entries.
// The listing is fetched once per handle, when reading starts at offset 0.
func (r *FuseRaw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	logger := util.GetLogger("Fuse.ReadDir")
	p, ok := r.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}

	entries, cached := r.listings.Load(input.Fh)
	if input.Offset == 0 || !cached {
		resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpFindFiles, Path: p, FH: input.Fh})
		if resp.Err != nil {
			return toStatus(filesystem.OpFindFiles, resp.Err)
		}
		entries = resp.Entries
		r.listings.Store(input.Fh, entries)
	}

	for i := int(input.Offset); i < len(entries)+2; i++ {
		var e fuse.DirEntry
		switch i {
		case 0:
			e = fuse.DirEntry{Name: ".", Mode: syscall.S_IFDIR, Ino: input.NodeId}
		case 1:
			e = fuse.DirEntry{Name: "..", Mode: syscall.S_IFDIR, Ino: r.parentIno(p)}
		default:
			info := entries[i-2]
			e = fuse.DirEntry{Name: info.Name, Mode: fileType(info), Ino: r.ino(path.Join(p, info.Name))}
		}
		if !out.AddDirEntry(e) {
			// buffer full; the kernel calls again with the next offset
			logger.Trace().Str("path", p).Int("offset", i).Msg("Directory buffer full")
			return fuse.OK
		}
	}
	return fuse.OK
}

func (r *FuseRaw) ReleaseDir(input *fuse.ReleaseIn) {
	r.listings.Delete(input.Fh)
	p, _ := r.nodes.path(input.NodeId)
	r.call(nil, &filesystem.Request{Op: filesystem.OpCloseFile, Path: p, FH: input.Fh})
}

// Open opens a file for reading. O_TRUNC maps to the Truncate mode, which
// requires the file to exist.
func (r *FuseRaw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	p, ok := r.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	mode := remotefs.CreateModeOpen
	if input.Flags&syscall.O_TRUNC != 0 {
		mode = remotefs.CreateModeTruncate
	}
	resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpCreateFile, Path: p, Mode: mode})
	if resp.Err != nil {
		return toStatus(filesystem.OpCreateFile, resp.Err)
	}
	if resp.IsDir {
		r.call(nil, &filesystem.Request{Op: filesystem.OpCloseFile, Path: p, FH: resp.FH})
		return fuse.Status(syscall.EISDIR)
	}
	out.Fh = resp.FH
	if r.cfg.DirectIO {
		out.OpenFlags |= fuse.FOPEN_DIRECT_IO
	}
	return fuse.OK
}

func (r *FuseRaw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	p, ok := r.nodes.path(input.NodeId)
	if !ok {
		return nil, fuse.ENOENT
	}
	if int(input.Size) < len(buf) {
		buf = buf[:input.Size]
	}
	resp := r.call(cancel, &filesystem.Request{
		Op:     filesystem.OpReadFile,
		Path:   p,
		FH:     input.Fh,
		Buf:    buf,
		Offset: int64(input.Offset),
	})
	if resp.Err != nil {
		return nil, toStatus(filesystem.OpReadFile, resp.Err)
	}
	return fuse.ReadResultData(buf[:resp.N]), fuse.OK
}

func (r *FuseRaw) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	p, _ := r.nodes.path(input.NodeId)
	resp := r.call(cancel, &filesystem.Request{
		Op:     filesystem.OpWriteFile,
		Path:   p,
		FH:     input.Fh,
		Buf:    data,
		Offset: int64(input.Offset),
	})
	if resp.Err != nil {
		return 0, toStatus(filesystem.OpWriteFile, resp.Err)
	}
	return uint32(resp.N), fuse.OK
}

func (r *FuseRaw) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	p, _ := r.nodes.path(input.NodeId)
	resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpFlushFileBuffers, Path: p, FH: input.Fh})
	return toStatus(filesystem.OpFlushFileBuffers, resp.Err)
}

// Release is the last callback on a handle; cleanup and close both run here.
func (r *FuseRaw) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	p, _ := r.nodes.path(input.NodeId)
	r.call(cancel, &filesystem.Request{Op: filesystem.OpCleanup, Path: p, FH: input.Fh})
	r.call(cancel, &filesystem.Request{Op: filesystem.OpCloseFile, Path: p, FH: input.Fh})
}

func (r *FuseRaw) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	parent, ok := r.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	p := path.Join(parent, name)
	resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpCreateFile, Path: p, Mode: remotefs.CreateModeCreateNew, IsDir: true})
	if resp.Err != nil {
		return toStatus(filesystem.OpCreateFile, resp.Err)
	}
	r.call(nil, &filesystem.Request{Op: filesystem.OpCloseFile, Path: p, FH: resp.FH})
	return r.Lookup(cancel, &input.InHeader, name, out)
}

// Create opens a new, empty file handle. Nothing is uploaded, so the entry
// disappears once the kernel forgets it.
func (r *FuseRaw) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	parent, ok := r.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	p := path.Join(parent, name)
	resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpCreateFile, Path: p, Mode: remotefs.CreateModeCreateNew})
	if resp.Err != nil {
		return toStatus(filesystem.OpCreateFile, resp.Err)
	}
	info := remotefs.FileInformation{
		Name:           name,
		CreationTime:   filesystem.EpochSentinel,
		LastAccessTime: filesystem.EpochSentinel,
		LastWriteTime:  filesystem.EpochSentinel,
		Attributes:     remotefs.FileAttributeNotContentIndexed,
	}
	r.fillEntry(&out.EntryOut, r.nodes.lookup(p), info)
	out.Fh = resp.FH
	return fuse.OK
}

func (r *FuseRaw) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	parent, _ := r.nodes.path(header.NodeId)
	resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpDeleteFile, Path: path.Join(parent, name)})
	return toStatus(filesystem.OpDeleteFile, resp.Err)
}

func (r *FuseRaw) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	parent, _ := r.nodes.path(header.NodeId)
	resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpDeleteDirectory, Path: path.Join(parent, name)})
	return toStatus(filesystem.OpDeleteDirectory, resp.Err)
}

func (r *FuseRaw) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName string, newName string) fuse.Status {
	oldParent, ok := r.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	newParent, ok := r.nodes.path(input.Newdir)
	if !ok {
		return fuse.ENOENT
	}
	resp := r.call(cancel, &filesystem.Request{
		Op:      filesystem.OpMoveFile,
		Path:    path.Join(oldParent, oldName),
		NewPath: path.Join(newParent, newName),
		Replace: true,
	})
	return toStatus(filesystem.OpMoveFile, resp.Err)
}

func (r *FuseRaw) SetLk(cancel <-chan struct{}, input *fuse.LkIn) fuse.Status {
	return r.lock(cancel, input, filesystem.OpLockFile)
}

func (r *FuseRaw) SetLkw(cancel <-chan struct{}, input *fuse.LkIn) fuse.Status {
	return r.lock(cancel, input, filesystem.OpLockFile)
}

func (r *FuseRaw) lock(cancel <-chan struct{}, input *fuse.LkIn, op filesystem.Op) fuse.Status {
	p, _ := r.nodes.path(input.NodeId)
	if input.Lk.Typ == syscall.F_UNLCK {
		op = filesystem.OpUnlockFile
	}
	resp := r.call(cancel, &filesystem.Request{
		Op:     op,
		Path:   p,
		FH:     input.Fh,
		Offset: int64(input.Lk.Start),
		Length: int64(input.Lk.End - input.Lk.Start),
	})
	return toStatus(op, resp.Err)
}

func (r *FuseRaw) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	resp := r.call(cancel, &filesystem.Request{Op: filesystem.OpGetDiskFreeSpace})
	if resp.Err != nil {
		return toStatus(filesystem.OpGetDiskFreeSpace, resp.Err)
	}
	out.Bsize = blockSize
	out.Frsize = blockSize
	out.Blocks = uint64(resp.Disk.Total) / blockSize
	out.Bfree = uint64(resp.Disk.Free) / blockSize
	out.Bavail = out.Bfree
	out.NameLen = 255
	return fuse.OK
}

// GetXAttr reports no extended attributes; security descriptors are not served.
func (r *FuseRaw) GetXAttr(cancel <-chan struct{}, header *fuse.InHeader, attr string, dest []byte) (uint32, fuse.Status) {
	return 0, fuse.ENOATTR
}

func (r *FuseRaw) fillEntry(out *fuse.EntryOut, id uint64, info remotefs.FileInformation) {
	out.NodeId = id
	r.fillAttr(&out.Attr, id, info)
	out.SetEntryTimeout(r.cfg.EntryTimeoutDuration())
	out.SetAttrTimeout(r.cfg.AttrTimeoutDuration())
}

func (r *FuseRaw) fillAttr(attr *fuse.Attr, id uint64, info remotefs.FileInformation) {
	attr.Ino = id
	attr.Owner = r.owner
	attr.Blksize = blockSize
	if info.IsDirectory() {
		attr.Mode = syscall.S_IFDIR | 0o555
		attr.Nlink = 2
	} else {
		attr.Mode = syscall.S_IFREG | 0o444
		attr.Nlink = 1
		attr.Size = uint64(info.Length)
		attr.Blocks = (attr.Size + 511) / 512
	}
	access, write := info.LastAccessTime, info.LastWriteTime
	attr.SetTimes(&access, &write, &write)
}

func (r *FuseRaw) ino(p string) uint64 {
	if id, ok := r.nodes.idFor(p); ok {
		return id
	}
	return unknownIno
}

func (r *FuseRaw) parentIno(p string) uint64 {
	if p == "/" {
		return fuse.FUSE_ROOT_ID
	}
	return r.ino(path.Dir(p))
}

func fileType(info remotefs.FileInformation) uint32 {
	if info.IsDirectory() {
		return syscall.S_IFDIR
	}
	return syscall.S_IFREG
}

// toStatus maps callback errors to errnos. Unsupported mutations report a
// read-only filesystem rather than a missing syscall.
func toStatus(op filesystem.Op, err error) fuse.Status {
	switch {
	case err == nil:
		return fuse.OK
	case errors.Is(err, remotefs.ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, remotefs.ErrAlreadyExists):
		return fuse.Status(syscall.EEXIST)
	case errors.Is(err, remotefs.ErrAccessDenied):
		return fuse.EACCES
	case errors.Is(err, remotefs.ErrNotDirectory):
		return fuse.ENOTDIR
	case errors.Is(err, remotefs.ErrIsDirectory):
		return fuse.Status(syscall.EISDIR)
	case errors.Is(err, remotefs.ErrUnsupported):
		switch op {
		case filesystem.OpWriteFile, filesystem.OpDeleteFile, filesystem.OpSetEndOfFile, filesystem.OpSetAllocationSize:
			return fuse.Status(syscall.EROFS)
		}
		return fuse.ENOSYS
	case errors.Is(err, context.Canceled):
		return fuse.Status(syscall.EINTR)
	default:
		return fuse.EIO
	}
}
