package adapters

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/config"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSFTP serves an in-memory filesystem over a pipe holding
// /data/docs/report.txt and /data/notes.txt.
func newTestSFTP(t *testing.T) *SFTPClient {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go server.Serve()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	require.NoError(t, client.MkdirAll("/data/docs"))
	writeRemote(t, client, "/data/docs/report.txt", "quarterly numbers")
	writeRemote(t, client, "/data/notes.txt", "hello")

	return NewSFTPClient(client, nil, "data", "alice@sftp.example.com:22")
}

func writeRemote(t *testing.T, client *sftp.Client, p, body string) {
	t.Helper()
	f, err := client.Create(p)
	require.NoError(t, err)
	_, err = f.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestSFTP_Root(t *testing.T) {
	t.Parallel()

	s := newTestSFTP(t)

	assert.Equal(t, "/data", s.RootID())
	assert.Equal(t, "alice@sftp.example.com:22", s.AccountID())
}

func TestSFTP_ListChildren(t *testing.T) {
	t.Parallel()

	s := newTestSFTP(t)

	objs, err := s.ListChildren(context.Background(), "/data")
	require.NoError(t, err)
	require.Len(t, objs, 2)

	byName := map[string]remotefs.RemoteObject{}
	for _, o := range objs {
		byName[o.Name] = o
	}
	assert.True(t, byName["docs"].IsDirectory())
	assert.Equal(t, "/data/docs", byName["docs"].ID)
	assert.False(t, byName["notes.txt"].IsDirectory())
	assert.Equal(t, int64(5), byName["notes.txt"].SizeOrZero())
	assert.NotNil(t, byName["notes.txt"].ModifiedAt)

	_, err = s.ListChildren(context.Background(), "/data/missing")
	require.ErrorIs(t, err, remotefs.ErrNotFound)
}

func TestSFTP_FindChildren(t *testing.T) {
	t.Parallel()

	s := newTestSFTP(t)
	ctx := context.Background()

	objs, err := s.FindChildren(ctx, "/data/docs", "report.txt")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "/data/docs/report.txt", objs[0].ID)
	assert.Equal(t, []string{"/data/docs"}, objs[0].ParentIDs)

	objs, err = s.FindChildren(ctx, "/data/docs", "later.txt")
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestSFTP_NamesStayInsideParent(t *testing.T) {
	t.Parallel()

	s := newTestSFTP(t)
	ctx := context.Background()

	for _, name := range []string{"..", ".", "", "../notes.txt", "docs/report.txt"} {
		objs, err := s.FindChildren(ctx, "/data/docs", name)
		require.NoError(t, err, "name=%q", name)
		assert.Empty(t, objs, "name=%q", name)

		_, err = s.CreateFolder(ctx, "/data/docs", name)
		require.ErrorIs(t, err, remotefs.ErrAccessDenied, "name=%q", name)
	}
}

func TestSFTP_OpenRange(t *testing.T) {
	t.Parallel()

	s := newTestSFTP(t)
	ctx := context.Background()

	rc, err := s.OpenRange(ctx, "/data/docs/report.txt", 10, 16)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "numbers", string(data))

	rc, err = s.OpenRange(ctx, "/data/docs/report.txt", 10, -1)
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "numbers", string(data), "negative end reads to EOF")

	_, err = s.OpenRange(ctx, "/data/gone.txt", 0, 1)
	require.ErrorIs(t, err, remotefs.ErrNotFound)
}

func TestSFTP_GetObjectAndCreateFolder(t *testing.T) {
	t.Parallel()

	s := newTestSFTP(t)
	ctx := context.Background()

	obj, err := s.CreateFolder(ctx, "/data/docs", "archive")
	require.NoError(t, err)
	assert.True(t, obj.IsDirectory())
	assert.Equal(t, "/data/docs/archive", obj.ID)

	got, err := s.GetObject(ctx, obj.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDirectory())

	_, err = s.GetObject(ctx, "/data/nope")
	require.ErrorIs(t, err, remotefs.ErrNotFound)
}

func TestSSHClientConfig(t *testing.T) {
	t.Parallel()

	sc := config.NewDefaultConfig().SFTP
	sc.User = "alice"

	_, err := sshClientConfig(sc)
	require.ErrorIs(t, err, remotefs.ErrAccessDenied, "no credentials")

	sc.Password = "secret"
	_, err = sshClientConfig(sc)
	require.Error(t, err, "host keys are verified unless explicitly skipped")

	sc.InsecureSkipHostKeyCheck = true
	cfg, err := sshClientConfig(sc)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.User)
	assert.Len(t, cfg.Auth, 1)
}
