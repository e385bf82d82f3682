//go:build cgofuse

package server

import (
	"errors"

	"github.com/brettbedarf/remotefs/config"
	"github.com/brettbedarf/remotefs/filesystem"
	"github.com/brettbedarf/remotefs/internal/winfsp"
)

type winfspMounter struct {
	cfg  *config.Config
	host *winfsp.Host
}

func newMounter(cfg *config.Config, dispatch *filesystem.Dispatcher) mounter {
	return &winfspMounter{cfg: cfg, host: winfsp.NewHost(dispatch)}
}

// mount returns once the host reports Init, or with the error that ended the
// mount attempt.
func (m *winfspMounter) mount(mountPoint string) error {
	opts := []string{"-o", "volname=" + m.cfg.Name, "-o", "FileSystemName=" + m.cfg.FsName}
	if m.cfg.Debug {
		opts = append(opts, "-d")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.host.Mount(mountPoint, opts)
	}()

	select {
	case err := <-errCh:
		if err == nil {
			err = errors.New("winfsp: unmounted during startup")
		}
		return err
	case <-m.host.Ready():
		return nil
	}
}

func (m *winfspMounter) unmount() error {
	if !m.host.Unmount() {
		return errors.New("winfsp: unmount failed")
	}
	return nil
}
