//go:build !cgofuse

package server

import (
	"github.com/brettbedarf/remotefs/config"
	"github.com/brettbedarf/remotefs/filesystem"
	wfuse "github.com/brettbedarf/remotefs/internal/fuse"
	"github.com/brettbedarf/remotefs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

type fuseMounter struct {
	cfg    *config.Config
	raw    *wfuse.FuseRaw
	server *fuse.Server
}

func newMounter(cfg *config.Config, dispatch *filesystem.Dispatcher) mounter {
	return &fuseMounter{cfg: cfg, raw: wfuse.NewFuseRaw(cfg, dispatch)}
}

func (m *fuseMounter) mount(mountPoint string) error {
	opts := m.cfg.MountOptions
	srv, err := fuse.NewServer(m.raw, mountPoint, &fuse.MountOptions{
		Name:   opts.Name,
		FsName: opts.FsName,
		Debug:  opts.Debug,
		Logger: util.NewLogLogger("FuseServer", util.TraceLevel),
	})
	if err != nil {
		return err
	}
	m.server = srv

	go srv.Serve()
	return srv.WaitMount()
}

func (m *fuseMounter) unmount() error {
	return m.server.Unmount()
}
