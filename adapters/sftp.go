package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/config"
	"github.com/brettbedarf/remotefs/internal/util"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPClient implements [remotefs.Session] over an SFTP connection. Object ids
// are absolute remote paths, so every id is stable only until a rename.
type SFTPClient struct {
	client    *sftp.Client
	conn      io.Closer
	root      string
	accountID string
}

var _ remotefs.Session = (*SFTPClient)(nil)

// OpenSFTP dials cfg.SFTP.Addr over SSH and starts an SFTP subsystem on it.
func OpenSFTP(ctx context.Context, cfg *config.Config) (remotefs.Session, error) {
	sc := cfg.SFTP
	clientCfg, err := sshClientConfig(sc)
	if err != nil {
		return nil, err
	}

	conn, err := ssh.Dial("tcp", sc.Addr, clientCfg)
	if err != nil {
		return nil, remotefs.Transport("ssh dial", err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, remotefs.Transport("sftp handshake", err)
	}
	util.GetLogger("SFTP.Open").Info().Str("addr", sc.Addr).Str("user", sc.User).Str("root", sc.Root).Msg("Connected to SFTP server")
	return NewSFTPClient(client, conn, sc.Root, sc.User+"@"+sc.Addr), nil
}

func sshClientConfig(sc config.SFTPConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if sc.KeyFile != "" {
		raw, err := os.ReadFile(sc.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parse key file %s: %w", sc.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if sc.Password != "" {
		auth = append(auth, ssh.Password(sc.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("sftp: %w: no key_file or password configured", remotefs.ErrAccessDenied)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if !sc.InsecureSkipHostKeyCheck {
		if sc.KnownHostsFile == "" {
			return nil, errors.New("sftp: known_hosts_file is required unless insecure_skip_host_key_check is set")
		}
		cb, err := knownhosts.New(sc.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            sc.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         time.Duration(sc.Timeout * float64(time.Second)),
	}, nil
}

// NewSFTPClient serves ids under root from client. conn, when non-nil, is
// closed after client on Close.
func NewSFTPClient(client *sftp.Client, conn io.Closer, root, accountID string) *SFTPClient {
	root = path.Clean("/" + root)
	return &SFTPClient{client: client, conn: conn, root: root, accountID: accountID}
}

func (s *SFTPClient) RootID() string    { return s.root }
func (s *SFTPClient) AccountID() string { return s.accountID }

func (s *SFTPClient) Close() error {
	err := s.client.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *SFTPClient) ListChildren(_ context.Context, parentID string) ([]remotefs.RemoteObject, error) {
	infos, err := s.client.ReadDir(parentID)
	if err != nil {
		return nil, sftpError("list", parentID, err)
	}
	out := make([]remotefs.RemoteObject, 0, len(infos))
	for _, fi := range infos {
		out = append(out, sftpObject(path.Join(parentID, fi.Name()), fi))
	}
	return out, nil
}

// childName reports whether name is a single path element that cannot leave
// its parent once joined.
func childName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}

// FindChildren stats the single candidate path; paths cannot hold duplicates.
func (s *SFTPClient) FindChildren(_ context.Context, parentID, name string) ([]remotefs.RemoteObject, error) {
	if !childName(name) {
		return []remotefs.RemoteObject{}, nil
	}
	id := path.Join(parentID, name)
	fi, err := s.client.Stat(id)
	if errors.Is(err, os.ErrNotExist) {
		return []remotefs.RemoteObject{}, nil
	}
	if err != nil {
		return nil, sftpError("find", id, err)
	}
	return []remotefs.RemoteObject{sftpObject(id, fi)}, nil
}

func (s *SFTPClient) GetObject(_ context.Context, id string) (*remotefs.RemoteObject, error) {
	fi, err := s.client.Stat(id)
	if err != nil {
		return nil, sftpError("get", id, err)
	}
	obj := sftpObject(id, fi)
	return &obj, nil
}

type sectionReadCloser struct {
	io.Reader
	io.Closer
}

func (s *SFTPClient) OpenRange(_ context.Context, id string, start, end int64) (io.ReadCloser, error) {
	f, err := s.client.Open(id)
	if err != nil {
		return nil, sftpError("open", id, err)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, sftpError("seek", id, err)
	}
	var r io.Reader = f
	if end >= 0 {
		r = io.LimitReader(f, end-start+1)
	}
	return sectionReadCloser{Reader: r, Closer: f}, nil
}

func (s *SFTPClient) CreateFolder(_ context.Context, parentID, name string) (*remotefs.RemoteObject, error) {
	if !childName(name) {
		return nil, fmt.Errorf("mkdir %q in %s: %w", name, parentID, remotefs.ErrAccessDenied)
	}
	id := path.Join(parentID, name)
	if err := s.client.Mkdir(id); err != nil {
		return nil, sftpError("mkdir", id, err)
	}
	fi, err := s.client.Stat(id)
	if err != nil {
		return nil, sftpError("stat", id, err)
	}
	obj := sftpObject(id, fi)
	return &obj, nil
}

func sftpError(op, id string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return remotefs.NotFound(id)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%s %s: %w", op, id, remotefs.ErrAccessDenied)
	default:
		return remotefs.Transport(op, err)
	}
}

func sftpObject(id string, fi os.FileInfo) remotefs.RemoteObject {
	modified := fi.ModTime()
	obj := remotefs.RemoteObject{
		ID:         id,
		Name:       fi.Name(),
		ModifiedAt: &modified,
		ParentIDs:  []string{path.Dir(id)},
	}
	if fi.IsDir() {
		notCopyable := false
		obj.MimeType = remotefs.FolderMimeType
		obj.Copyable = &notCopyable
		return obj
	}
	copyable := true
	size := fi.Size()
	obj.MimeType = "application/octet-stream"
	obj.Copyable = &copyable
	obj.Size = &size
	return obj
}
