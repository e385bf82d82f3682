//go:build cgofuse

// Package winfsp mounts the filesystem through cgofuse, which drives WinFsp on
// Windows and libfuse elsewhere. cgofuse is path based, so requests go to the
// dispatcher without any node bookkeeping.
package winfsp

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/filesystem"
	"github.com/brettbedarf/remotefs/internal/util"
	"github.com/winfsp/cgofuse/fuse"
)

const (
	blockSize = 4096
	// returned alongside a failed Open/Create/Opendir
	invalidFH = ^uint64(0)
)

// Host implements fuse.FileSystemInterface on top of a dispatcher. Callbacks it
// does not override answer ENOSYS through FileSystemBase.
type Host struct {
	fuse.FileSystemBase
	dispatch *filesystem.Dispatcher
	uid, gid uint32
	host     *fuse.FileSystemHost

	ready     chan struct{}
	readyOnce sync.Once
}

func NewHost(dispatch *filesystem.Dispatcher) *Host {
	h := &Host{
		dispatch: dispatch,
		uid:      uint32(os.Getuid()),
		gid:      uint32(os.Getgid()),
		ready:    make(chan struct{}),
	}
	h.host = fuse.NewFileSystemHost(h)
	h.host.SetCapReaddirPlus(false)
	return h
}

// Mount blocks until the volume is unmounted. opts are passed to the host as
// raw mount options.
func (h *Host) Mount(mountPoint string, opts []string) error {
	util.GetLogger("WinFsp.Mount").Info().Str("mountPoint", mountPoint).Strs("opts", opts).Msg("Mounting volume")
	if !h.host.Mount(mountPoint, opts) {
		return errors.New("winfsp: mount failed")
	}
	return nil
}

// Ready is closed once the host has called Init.
func (h *Host) Ready() <-chan struct{} {
	return h.ready
}

func (h *Host) Unmount() bool {
	return h.host.Unmount()
}

func (h *Host) call(req *filesystem.Request) *filesystem.Response {
	return h.dispatch.Dispatch(context.Background(), req)
}

func (h *Host) Init() {
	h.call(&filesystem.Request{Op: filesystem.OpMounted})
	h.readyOnce.Do(func() { close(h.ready) })
}

func (h *Host) Destroy() {
	h.call(&filesystem.Request{Op: filesystem.OpUnmounted})
}

func (h *Host) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	if fh == invalidFH {
		fh = 0
	}
	resp := h.call(&filesystem.Request{Op: filesystem.OpGetFileInformation, Path: path, FH: fh})
	if resp.Err != nil {
		return errno(filesystem.OpGetFileInformation, resp.Err)
	}
	h.fillStat(stat, resp.Info)
	return 0
}

func (h *Host) Opendir(path string) (int, uint64) {
	resp := h.call(&filesystem.Request{Op: filesystem.OpCreateFile, Path: path, Mode: remotefs.CreateModeOpen, IsDir: true})
	if resp.Err != nil {
		return errno(filesystem.OpCreateFile, resp.Err), invalidFH
	}
	return 0, resp.FH
}

// Readdir fills the whole listing in one pass; offsets are not tracked.
func (h *Host) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	resp := h.call(&filesystem.Request{Op: filesystem.OpFindFiles, Path: path, FH: fh})
	if resp.Err != nil {
		return errno(filesystem.OpFindFiles, resp.Err)
	}
	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, info := range resp.Entries {
		var st fuse.Stat_t
		h.fillStat(&st, info)
		if !fill(info.Name, &st, 0) {
			break
		}
	}
	return 0
}

func (h *Host) Releasedir(path string, fh uint64) int {
	h.call(&filesystem.Request{Op: filesystem.OpCloseFile, Path: path, FH: fh})
	return 0
}

func (h *Host) Open(path string, flags int) (int, uint64) {
	mode := remotefs.CreateModeOpen
	if flags&os.O_TRUNC != 0 {
		mode = remotefs.CreateModeTruncate
	}
	resp := h.call(&filesystem.Request{Op: filesystem.OpCreateFile, Path: path, Mode: mode})
	if resp.Err != nil {
		return errno(filesystem.OpCreateFile, resp.Err), invalidFH
	}
	if resp.IsDir {
		h.call(&filesystem.Request{Op: filesystem.OpCloseFile, Path: path, FH: resp.FH})
		return -fuse.EISDIR, invalidFH
	}
	return 0, resp.FH
}

func (h *Host) Create(path string, flags int, mode uint32) (int, uint64) {
	resp := h.call(&filesystem.Request{Op: filesystem.OpCreateFile, Path: path, Mode: remotefs.CreateModeCreateNew})
	if resp.Err != nil {
		return errno(filesystem.OpCreateFile, resp.Err), invalidFH
	}
	return 0, resp.FH
}

func (h *Host) Read(path string, buff []byte, ofst int64, fh uint64) int {
	resp := h.call(&filesystem.Request{Op: filesystem.OpReadFile, Path: path, FH: fh, Buf: buff, Offset: ofst})
	if resp.Err != nil {
		return errno(filesystem.OpReadFile, resp.Err)
	}
	return resp.N
}

func (h *Host) Write(path string, buff []byte, ofst int64, fh uint64) int {
	resp := h.call(&filesystem.Request{Op: filesystem.OpWriteFile, Path: path, FH: fh, Buf: buff, Offset: ofst})
	if resp.Err != nil {
		return errno(filesystem.OpWriteFile, resp.Err)
	}
	return resp.N
}

func (h *Host) Flush(path string, fh uint64) int {
	resp := h.call(&filesystem.Request{Op: filesystem.OpFlushFileBuffers, Path: path, FH: fh})
	return errno(filesystem.OpFlushFileBuffers, resp.Err)
}

func (h *Host) Fsync(path string, datasync bool, fh uint64) int {
	return h.Flush(path, fh)
}

// Release runs both cleanup and close; cgofuse has a single close callback.
func (h *Host) Release(path string, fh uint64) int {
	h.call(&filesystem.Request{Op: filesystem.OpCleanup, Path: path, FH: fh})
	h.call(&filesystem.Request{Op: filesystem.OpCloseFile, Path: path, FH: fh})
	return 0
}

func (h *Host) Mkdir(path string, mode uint32) int {
	resp := h.call(&filesystem.Request{Op: filesystem.OpCreateFile, Path: path, Mode: remotefs.CreateModeCreateNew, IsDir: true})
	if resp.Err != nil {
		return errno(filesystem.OpCreateFile, resp.Err)
	}
	h.call(&filesystem.Request{Op: filesystem.OpCloseFile, Path: path, FH: resp.FH})
	return 0
}

func (h *Host) Unlink(path string) int {
	resp := h.call(&filesystem.Request{Op: filesystem.OpDeleteFile, Path: path})
	return errno(filesystem.OpDeleteFile, resp.Err)
}

func (h *Host) Rmdir(path string) int {
	resp := h.call(&filesystem.Request{Op: filesystem.OpDeleteDirectory, Path: path})
	return errno(filesystem.OpDeleteDirectory, resp.Err)
}

func (h *Host) Rename(oldpath string, newpath string) int {
	resp := h.call(&filesystem.Request{Op: filesystem.OpMoveFile, Path: oldpath, NewPath: newpath, Replace: true})
	return errno(filesystem.OpMoveFile, resp.Err)
}

func (h *Host) Truncate(path string, size int64, fh uint64) int {
	resp := h.call(&filesystem.Request{Op: filesystem.OpSetEndOfFile, Path: path, FH: fh, Length: size})
	return errno(filesystem.OpSetEndOfFile, resp.Err)
}

func (h *Host) Utimens(path string, tmsp []fuse.Timespec) int {
	req := &filesystem.Request{Op: filesystem.OpSetFileTime, Path: path}
	if len(tmsp) >= 2 {
		access, write := tmsp[0].Time(), tmsp[1].Time()
		req.Access, req.Write = &access, &write
	}
	resp := h.call(req)
	return errno(filesystem.OpSetFileTime, resp.Err)
}

func (h *Host) Chmod(path string, mode uint32) int {
	resp := h.call(&filesystem.Request{Op: filesystem.OpSetFileAttributes, Path: path, Attributes: remotefs.FileAttributeNormal})
	return errno(filesystem.OpSetFileAttributes, resp.Err)
}

func (h *Host) Statfs(path string, stat *fuse.Statfs_t) int {
	resp := h.call(&filesystem.Request{Op: filesystem.OpGetDiskFreeSpace})
	if resp.Err != nil {
		return errno(filesystem.OpGetDiskFreeSpace, resp.Err)
	}
	stat.Bsize = blockSize
	stat.Frsize = blockSize
	stat.Blocks = uint64(resp.Disk.Total) / blockSize
	stat.Bfree = uint64(resp.Disk.Free) / blockSize
	stat.Bavail = stat.Bfree
	stat.Namemax = 255
	return 0
}

func (h *Host) Getxattr(path string, name string) (int, []byte) {
	return -fuse.ENODATA, nil
}

func (h *Host) Listxattr(path string, fill func(name string) bool) int {
	return 0
}

func (h *Host) fillStat(stat *fuse.Stat_t, info remotefs.FileInformation) {
	if info.IsDirectory() {
		stat.Mode = fuse.S_IFDIR | 0o555
		stat.Nlink = 2
	} else {
		stat.Mode = fuse.S_IFREG | 0o444
		stat.Nlink = 1
		stat.Size = info.Length
		stat.Blocks = (info.Length + 511) / 512
	}
	stat.Uid = h.uid
	stat.Gid = h.gid
	stat.Blksize = blockSize
	stat.Atim = fuse.NewTimespec(info.LastAccessTime)
	stat.Mtim = fuse.NewTimespec(info.LastWriteTime)
	stat.Ctim = stat.Mtim
	stat.Birthtim = fuse.NewTimespec(info.CreationTime)
}

// errno maps callback errors to negated errnos the way cgofuse expects them.
func errno(op filesystem.Op, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, remotefs.ErrNotFound):
		return -fuse.ENOENT
	case errors.Is(err, remotefs.ErrAlreadyExists):
		return -fuse.EEXIST
	case errors.Is(err, remotefs.ErrAccessDenied):
		return -fuse.EACCES
	case errors.Is(err, remotefs.ErrNotDirectory):
		return -fuse.ENOTDIR
	case errors.Is(err, remotefs.ErrIsDirectory):
		return -fuse.EISDIR
	case errors.Is(err, remotefs.ErrUnsupported):
		switch op {
		case filesystem.OpWriteFile, filesystem.OpDeleteFile, filesystem.OpSetEndOfFile, filesystem.OpSetAllocationSize:
			return -fuse.EROFS
		}
		return -fuse.ENOSYS
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return -fuse.EINTR
	default:
		return -fuse.EIO
	}
}

var _ fuse.FileSystemInterface = (*Host)(nil)
