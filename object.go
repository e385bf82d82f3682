// Package remotefs contains the core domain types and interfaces for exposing an
// ID-addressed remote object store as a path-addressed filesystem.
package remotefs

import "time"

// FolderMimeType marks an object as a folder on the remote store.
const FolderMimeType = "application/vnd.google-apps.folder"

// RemoteObject is a point-in-time snapshot of a backend object. It is never
// mutated once fetched; refreshing means fetching a new snapshot.
type RemoteObject struct {
	ID       string
	Name     string
	MimeType string
	// Copyable is nil when the backend did not report the flag
	Copyable   *bool
	Size       *int64 // nil for directories and native documents
	CreatedAt  *time.Time
	ModifiedAt *time.Time
	ParentIDs  []string
}

// IsDirectory reports whether the object is a navigable folder. Objects whose
// copyable state is unknown are never directories.
func (o *RemoteObject) IsDirectory() bool {
	if o == nil || o.Copyable == nil {
		return false
	}
	return !*o.Copyable && o.MimeType == FolderMimeType
}

// SizeOrZero returns the reported size, or 0 if none was reported.
func (o *RemoteObject) SizeOrZero() int64 {
	if o == nil || o.Size == nil {
		return 0
	}
	return *o.Size
}

// FileAttributes are the attribute flags reported for each entry.
type FileAttributes uint32

const (
	FileAttributeDirectory         FileAttributes = 0x10
	FileAttributeNormal            FileAttributes = 0x80
	FileAttributeNotContentIndexed FileAttributes = 0x2000
)

// Has reports whether all bits of flag are set.
func (a FileAttributes) Has(flag FileAttributes) bool {
	return a&flag == flag
}

// FileInformation is the filesystem-facing projection of a RemoteObject.
type FileInformation struct {
	Name           string
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	Length         int64
	Attributes     FileAttributes
}

// IsDirectory reports whether the Directory attribute is set.
func (fi FileInformation) IsDirectory() bool {
	return fi.Attributes.Has(FileAttributeDirectory)
}

// CreateMode is the disposition requested when opening or creating a path.
type CreateMode int

const (
	CreateModeCreateNew CreateMode = iota + 1
	CreateModeCreate
	CreateModeOpen
	CreateModeOpenOrCreate
	CreateModeTruncate
	CreateModeAppend
)

var createModeNames = [...]string{"", "CreateNew", "Create", "Open", "OpenOrCreate", "Truncate", "Append"}

func (m CreateMode) String() string {
	if m < CreateModeCreateNew || m > CreateModeAppend {
		return "Unknown"
	}
	return createModeNames[m]
}

// DiskSpace is the fixed capacity reported for a volume.
type DiskSpace struct {
	Free  int64
	Total int64
	Used  int64
}

// VolumeInfo describes a mounted volume.
type VolumeInfo struct {
	Label          string
	FileSystemName string
}
