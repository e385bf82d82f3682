package filesystem

import (
	"context"
	"time"

	"github.com/brettbedarf/remotefs"
)

// Operations is the fixed callback surface a virtual-filesystem host drives.
// Paths may use either separator; fh is the number returned by CreateFile, or 0
// when the host has no handle for the call.
type Operations interface {
	CreateFile(ctx context.Context, path string, mode remotefs.CreateMode, isDir bool) (fh uint64, isDirectory bool, err error)
	Cleanup(ctx context.Context, path string, fh uint64)
	CloseFile(ctx context.Context, path string, fh uint64)
	ReadFile(ctx context.Context, path string, fh uint64, buf []byte, offset int64) (int, error)
	WriteFile(ctx context.Context, path string, fh uint64, buf []byte, offset int64) (int, error)
	FlushFileBuffers(ctx context.Context, path string, fh uint64) error
	GetFileInformation(ctx context.Context, path string, fh uint64) (remotefs.FileInformation, error)
	FindFiles(ctx context.Context, path string) ([]remotefs.FileInformation, error)
	SetFileAttributes(ctx context.Context, path string, attrs remotefs.FileAttributes) error
	SetFileTime(ctx context.Context, path string, creation, access, write *time.Time) error
	DeleteFile(ctx context.Context, path string) error
	DeleteDirectory(ctx context.Context, path string) error
	MoveFile(ctx context.Context, oldPath, newPath string, replace bool) error
	SetEndOfFile(ctx context.Context, path string, length int64) error
	SetAllocationSize(ctx context.Context, path string, length int64) error
	LockFile(ctx context.Context, path string, offset, length int64) error
	UnlockFile(ctx context.Context, path string, offset, length int64) error
	GetDiskFreeSpace(ctx context.Context) (remotefs.DiskSpace, error)
	GetVolumeInformation(ctx context.Context) (remotefs.VolumeInfo, error)
	GetFileSecurity(ctx context.Context, path string) ([]byte, error)
	SetFileSecurity(ctx context.Context, path string, descriptor []byte) error
	FindStreams(ctx context.Context, path string) ([]remotefs.FileInformation, error)
	Mounted(ctx context.Context) error
	Unmounted(ctx context.Context) error
}
