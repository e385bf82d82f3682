package filesystem

import (
	"testing"
	"time"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/internal/util"
	"github.com/stretchr/testify/assert"
)

func TestToFileInformation_Directory(t *testing.T) {
	t.Parallel()

	obj := &remotefs.RemoteObject{
		Name:     "docs",
		MimeType: remotefs.FolderMimeType,
		Copyable: util.Pointer(false),
		Size:     util.Pointer(int64(4096)),
	}

	info := ToFileInformation(obj)

	assert.Equal(t, "docs", info.Name)
	assert.True(t, info.IsDirectory())
	assert.True(t, info.Attributes.Has(remotefs.FileAttributeNotContentIndexed))
	assert.Equal(t, int64(0), info.Length, "directories always report zero length")
}

func TestToFileInformation_UnknownCopyableIsFile(t *testing.T) {
	t.Parallel()

	obj := &remotefs.RemoteObject{
		Name:     "maybe-folder",
		MimeType: remotefs.FolderMimeType,
		Size:     util.Pointer(int64(12)),
	}

	info := ToFileInformation(obj)

	assert.False(t, info.IsDirectory(), "unknown copyable state never yields a directory")
	assert.Equal(t, int64(12), info.Length)
}

func TestToFileInformation_MissingFieldsDefault(t *testing.T) {
	t.Parallel()

	obj := &remotefs.RemoteObject{
		Name:     "native-doc",
		MimeType: "application/vnd.google-apps.document",
		Copyable: util.Pointer(true),
	}

	info := ToFileInformation(obj)

	assert.Equal(t, int64(0), info.Length, "missing size reads as zero")
	assert.Equal(t, EpochSentinel, info.CreationTime)
	assert.Equal(t, EpochSentinel, info.LastAccessTime)
	assert.Equal(t, EpochSentinel, info.LastWriteTime)
	assert.Equal(t, remotefs.FileAttributeNotContentIndexed, info.Attributes)
}

func TestToFileInformation_Timestamps(t *testing.T) {
	t.Parallel()

	created := time.Date(2023, 3, 4, 5, 6, 7, 0, time.UTC)
	modified := created.Add(48 * time.Hour)
	obj := &remotefs.RemoteObject{
		Name:       "report.txt",
		Copyable:   util.Pointer(true),
		CreatedAt:  &created,
		ModifiedAt: &modified,
	}

	info := ToFileInformation(obj)

	assert.Equal(t, created, info.CreationTime)
	assert.Equal(t, modified, info.LastWriteTime)
	assert.Equal(t, EpochSentinel, info.LastAccessTime, "access time is never reported")
}

func TestEpochSentinel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(0), EpochSentinel.Unix())
}
