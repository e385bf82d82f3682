package filesystem

import (
	"time"

	"github.com/brettbedarf/remotefs"
)

// EpochSentinel is reported for every timestamp the backend does not supply.
var EpochSentinel = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// ToFileInformation projects a backend object onto filesystem attributes.
// Directories always report a zero length regardless of any reported size.
func ToFileInformation(obj *remotefs.RemoteObject) remotefs.FileInformation {
	info := remotefs.FileInformation{
		Name:           obj.Name,
		CreationTime:   timeOrSentinel(obj.CreatedAt),
		LastAccessTime: EpochSentinel,
		LastWriteTime:  timeOrSentinel(obj.ModifiedAt),
		Length:         obj.SizeOrZero(),
		Attributes:     remotefs.FileAttributeNotContentIndexed,
	}
	if obj.IsDirectory() {
		info.Attributes |= remotefs.FileAttributeDirectory
		info.Length = 0
	}
	return info
}

func timeOrSentinel(t *time.Time) time.Time {
	if t == nil || t.IsZero() {
		return EpochSentinel
	}
	return *t
}
