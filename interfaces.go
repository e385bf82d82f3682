package remotefs

import (
	"context"
	"io"
)

// ObjectClient is the typed surface over an ID-addressed remote store.
// Implementations must be safe for concurrent use.
type ObjectClient interface {
	// RootID returns the well-known id of the store's root container.
	RootID() string

	// ListChildren returns every child of parentID in backend order.
	ListChildren(ctx context.Context, parentID string) ([]RemoteObject, error)

	// FindChildren returns the children of parentID whose name matches exactly.
	// An empty result with a nil error means there is no such child.
	FindChildren(ctx context.Context, parentID, name string) ([]RemoteObject, error)

	// GetObject fetches a metadata snapshot of a single object.
	GetObject(ctx context.Context, id string) (*RemoteObject, error)

	// OpenRange opens the content of id for the inclusive byte range [start, end].
	// A negative end reads to the end of the object.
	OpenRange(ctx context.Context, id string, start, end int64) (io.ReadCloser, error)

	// CreateFolder creates a directory named name under parentID.
	CreateFolder(ctx context.Context, parentID, name string) (*RemoteObject, error)
}

// Session is an authenticated connection to a backend, produced on mount and
// released on unmount.
type Session interface {
	ObjectClient

	// AccountID identifies the authenticated account; used as the volume label.
	AccountID() string

	Close() error
}
