package server

import (
	"context"
	"errors"
	"sync"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/config"
	"github.com/brettbedarf/remotefs/filesystem"
	"github.com/brettbedarf/remotefs/internal/metrics"
	"github.com/brettbedarf/remotefs/internal/util"
)

// mounter attaches a dispatcher to the host's filesystem driver. The bridge
// behind it is chosen at build time.
type mounter interface {
	mount(mountPoint string) error
	unmount() error
}

// RemoteFs owns one mount: the session it reads from, the filesystem state
// answering callbacks and the bridge that feeds it.
type RemoteFs struct {
	*filesystem.FileSystem
	cfg      *config.Config
	session  remotefs.Session
	dispatch *filesystem.Dispatcher

	mu      sync.Mutex
	mounted mounter
}

// New creates a RemoteFs over an open session. m may be nil.
func New(cfg *config.Config, session remotefs.Session, m *metrics.Metrics) *RemoteFs {
	fs := filesystem.NewFS(cfg, session, filesystem.WithMetrics(m))
	return &RemoteFs{
		FileSystem: fs,
		cfg:        cfg,
		session:    session,
		dispatch:   filesystem.NewDispatcher(fs, m),
	}
}

// Dispatcher returns the callback table bridges call into.
func (fs *RemoteFs) Dispatcher() *filesystem.Dispatcher {
	return fs.dispatch
}

// Serve mounts the filesystem at mountPoint and returns once the mount is ready.
func (fs *RemoteFs) Serve(mountPoint string) error {
	logger := util.GetLogger("Server.Serve")
	m := newMounter(fs.cfg, fs.dispatch)
	if err := m.mount(mountPoint); err != nil {
		logger.Error().Err(err).Str("mountPoint", mountPoint).Msg("Mount failed")
		return err
	}
	fs.mu.Lock()
	fs.mounted = m
	fs.mu.Unlock()
	logger.Info().Str("mountPoint", mountPoint).Str("backend", fs.cfg.Backend).Msg("Mounted")
	return nil
}

func (fs *RemoteFs) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- fs.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Unmount detaches the mount, if any, and closes the session. Open handles are
// released through the Unmounted callback.
func (fs *RemoteFs) Unmount() error {
	fs.mu.Lock()
	m := fs.mounted
	fs.mounted = nil
	fs.mu.Unlock()

	var errs []error
	if m != nil {
		errs = append(errs, m.unmount())
	} else {
		fs.dispatch.Dispatch(context.Background(), &filesystem.Request{Op: filesystem.OpUnmounted})
	}
	errs = append(errs, fs.session.Close())
	return errors.Join(errs...)
}
