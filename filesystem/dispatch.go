package filesystem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/internal/metrics"
	"github.com/brettbedarf/remotefs/internal/util"
	"github.com/rs/zerolog"
)

// Op identifies one callback of the [Operations] surface.
type Op int

const (
	OpCreateFile Op = iota + 1
	OpCleanup
	OpCloseFile
	OpReadFile
	OpWriteFile
	OpFlushFileBuffers
	OpGetFileInformation
	OpFindFiles
	OpSetFileAttributes
	OpSetFileTime
	OpDeleteFile
	OpDeleteDirectory
	OpMoveFile
	OpSetEndOfFile
	OpSetAllocationSize
	OpLockFile
	OpUnlockFile
	OpGetDiskFreeSpace
	OpGetVolumeInformation
	OpGetFileSecurity
	OpSetFileSecurity
	OpFindStreams
	OpMounted
	OpUnmounted
)

var opNames = map[Op]string{
	OpCreateFile:           "CreateFile",
	OpCleanup:              "Cleanup",
	OpCloseFile:            "CloseFile",
	OpReadFile:             "ReadFile",
	OpWriteFile:            "WriteFile",
	OpFlushFileBuffers:     "FlushFileBuffers",
	OpGetFileInformation:   "GetFileInformation",
	OpFindFiles:            "FindFiles",
	OpSetFileAttributes:    "SetFileAttributes",
	OpSetFileTime:          "SetFileTime",
	OpDeleteFile:           "DeleteFile",
	OpDeleteDirectory:      "DeleteDirectory",
	OpMoveFile:             "MoveFile",
	OpSetEndOfFile:         "SetEndOfFile",
	OpSetAllocationSize:    "SetAllocationSize",
	OpLockFile:             "LockFile",
	OpUnlockFile:           "UnlockFile",
	OpGetDiskFreeSpace:     "GetDiskFreeSpace",
	OpGetVolumeInformation: "GetVolumeInformation",
	OpGetFileSecurity:      "GetFileSecurity",
	OpSetFileSecurity:      "SetFileSecurity",
	OpFindStreams:          "FindStreams",
	OpMounted:              "Mounted",
	OpUnmounted:            "Unmounted",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Request carries the arguments of a single callback. Only the fields the
// operation uses are read.
type Request struct {
	Op         Op
	Path       string
	NewPath    string
	FH         uint64
	Mode       remotefs.CreateMode
	IsDir      bool
	Buf        []byte
	Offset     int64
	Length     int64
	Replace    bool
	Attributes remotefs.FileAttributes
	Creation   *time.Time
	Access     *time.Time
	Write      *time.Time
	Security   []byte
}

// Response carries the results of a single callback.
type Response struct {
	Err      error
	FH       uint64
	IsDir    bool
	N        int
	Info     remotefs.FileInformation
	Entries  []remotefs.FileInformation
	Disk     remotefs.DiskSpace
	Volume   remotefs.VolumeInfo
	Security []byte
}

type handlerFunc func(ctx context.Context, ops Operations, req *Request) *Response

// Dispatcher routes requests through a per-instance table keyed by [Op]. Every
// host bridge goes through Dispatch, which is where callbacks are logged and
// measured.
type Dispatcher struct {
	ops      Operations
	handlers map[Op]handlerFunc
	metrics  *metrics.Metrics
}

func NewDispatcher(ops Operations, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		ops:      ops,
		handlers: newHandlerTable(),
		metrics:  m,
	}
}

// Dispatch runs req.Op. Unknown operations fail with [remotefs.ErrUnsupported].
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	logger := util.GetLogger("Dispatch")
	handler, ok := d.handlers[req.Op]
	if !ok {
		logger.Warn().Stringer("op", req.Op).Msg("No handler for operation")
		return &Response{Err: fmt.Errorf("%s: %w", req.Op, remotefs.ErrUnsupported)}
	}

	start := time.Now()
	resp := handler(ctx, d.ops, req)
	elapsed := time.Since(start)
	d.metrics.ObserveOperation(req.Op.String(), elapsed, resp.Err)

	logger.WithLevel(levelFor(resp.Err)).
		Stringer("op", req.Op).
		Str("path", req.Path).
		Uint64("fh", req.FH).
		Dur("elapsed", elapsed).
		Err(resp.Err).
		Msg("Handled callback")
	return resp
}

// levelFor keeps expected outcomes out of the warning stream.
func levelFor(err error) zerolog.Level {
	switch {
	case err == nil:
		return zerolog.TraceLevel
	case errors.Is(err, remotefs.ErrTransport):
		return zerolog.WarnLevel
	default:
		return zerolog.DebugLevel
	}
}

func newHandlerTable() map[Op]handlerFunc {
	return map[Op]handlerFunc{
		OpCreateFile: func(ctx context.Context, ops Operations, r *Request) *Response {
			fh, isDir, err := ops.CreateFile(ctx, r.Path, r.Mode, r.IsDir)
			return &Response{FH: fh, IsDir: isDir, Err: err}
		},
		OpCleanup: func(ctx context.Context, ops Operations, r *Request) *Response {
			ops.Cleanup(ctx, r.Path, r.FH)
			return &Response{}
		},
		OpCloseFile: func(ctx context.Context, ops Operations, r *Request) *Response {
			ops.CloseFile(ctx, r.Path, r.FH)
			return &Response{}
		},
		OpReadFile: func(ctx context.Context, ops Operations, r *Request) *Response {
			n, err := ops.ReadFile(ctx, r.Path, r.FH, r.Buf, r.Offset)
			return &Response{N: n, Err: err}
		},
		OpWriteFile: func(ctx context.Context, ops Operations, r *Request) *Response {
			n, err := ops.WriteFile(ctx, r.Path, r.FH, r.Buf, r.Offset)
			return &Response{N: n, Err: err}
		},
		OpFlushFileBuffers: func(ctx context.Context, ops Operations, r *Request) *Response {
			return &Response{Err: ops.FlushFileBuffers(ctx, r.Path, r.FH)}
		},
		OpGetFileInformation: func(ctx context.Context, ops Operations, r *Request) *Response {
			info, err := ops.GetFileInformation(ctx, r.Path, r.FH)
			return &Response{Info: info, Err: err}
		},
		OpFindFiles: func(ctx context.Context, ops Operations, r *Request) *Response {
			entries, err := ops.FindFiles(ctx, r.Path)
			return &Response{Entries: entries, Err: err}
		},
		OpSetFileAttributes: func(ctx context.Context, ops Operations, r *Request) *Response {
			return &Response{Err: ops.SetFileAttributes(ctx, r.Path, r.Attributes)}
		},
		OpSetFileTime: func(ctx context.Context, ops Operations, r *Request) *Response {
			return &Response{Err: ops.SetFileTime(ctx, r.Path, r.Creation, r.Access, r.Write)}
		},
		OpDeleteFile: func(ctx context.Context, ops Operations, r *Request) *Response {
			return &Response{Err: ops.DeleteFile(ctx, r.Path)}
		},
		OpDeleteDirectory: func(ctx context.Context, ops Operations, r *Request) *Response {
			return &Response{Err: ops.DeleteDirectory(ctx, r.Path)}
		},
		OpMoveFile: func(ctx context.Context, ops Operations, r *Request) *Response {
			return &Response{Err: ops.MoveFile(ctx, r.Path, r.NewPath, r.Replace)}
		},
		OpSetEndOfFile: func(ctx context.Context, ops Operations, r *Request) *Response {
			return &Response{Err: ops.SetEndOfFile(ctx, r.Path, r.Length)}
		},
		OpSetAllocationSize: func(ctx context.Context, ops Operations, r *Request) *Response {
			return &Response{Err: ops.SetAllocationSize(ctx, r.Path, r.Length)}
		},
		OpLockFile: func(ctx context.Context, ops Operations, r *Request) *Response {
			return &Response{Err: ops.LockFile(ctx, r.Path, r.Offset, r.Length)}
		},
		OpUnlockFile: func(ctx context.Context, ops Operations, r *Request) *Response {
			return &Response{Err: ops.UnlockFile(ctx, r.Path, r.Offset, r.Length)}
		},
		OpGetDiskFreeSpace: func(ctx context.Context, ops Operations, _ *Request) *Response {
			disk, err := ops.GetDiskFreeSpace(ctx)
			return &Response{Disk: disk, Err: err}
		},
		OpGetVolumeInformation: func(ctx context.Context, ops Operations, _ *Request) *Response {
			vol, err := ops.GetVolumeInformation(ctx)
			return &Response{Volume: vol, Err: err}
		},
		OpGetFileSecurity: func(ctx context.Context, ops Operations, r *Request) *Response {
			sd, err := ops.GetFileSecurity(ctx, r.Path)
			return &Response{Security: sd, Err: err}
		},
		OpSetFileSecurity: func(ctx context.Context, ops Operations, r *Request) *Response {
			return &Response{Err: ops.SetFileSecurity(ctx, r.Path, r.Security)}
		},
		OpFindStreams: func(ctx context.Context, ops Operations, r *Request) *Response {
			streams, err := ops.FindStreams(ctx, r.Path)
			return &Response{Entries: streams, Err: err}
		},
		OpMounted: func(ctx context.Context, ops Operations, _ *Request) *Response {
			return &Response{Err: ops.Mounted(ctx)}
		},
		OpUnmounted: func(ctx context.Context, ops Operations, _ *Request) *Response {
			return &Response{Err: ops.Unmounted(ctx)}
		},
	}
}
