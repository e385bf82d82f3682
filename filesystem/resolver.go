package filesystem

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/internal/cache"
	"github.com/brettbedarf/remotefs/internal/util"
)

// NormalizePath converts a filesystem path into the cache key form: "/"-separated,
// a single leading "/", no doubled or trailing separators. Backslash separators
// from drive-letter hosts are accepted. ".." never climbs above the root.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	segs := splitPath(p)
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}

// splitPath returns the non-empty segments of p. "." segments are dropped and
// ".." removes the segment before it, stopping at the root.
func splitPath(p string) []string {
	raw := strings.Split(p, "/")
	segs := raw[:0]
	for _, s := range raw {
		switch s {
		case "", ".":
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, s)
		}
	}
	return segs
}

// Resolver maps paths to object ids by walking the remote graph one segment at a
// time. Successful lookups populate the path and object caches; failures never do.
type Resolver struct {
	client  remotefs.ObjectClient
	paths   *cache.TTL[string, string]
	objects *cache.TTL[string, *remotefs.RemoteObject]
}

func NewResolver(client remotefs.ObjectClient, paths *cache.TTL[string, string],
	objects *cache.TTL[string, *remotefs.RemoteObject],
) *Resolver {
	return &Resolver{client: client, paths: paths, objects: objects}
}

// RootID returns the sentinel id of "/".
func (r *Resolver) RootID() string {
	return r.client.RootID()
}

// Resolve returns the object id at p. The root resolves without a remote call.
// Any failure, including a transport error, is reported as [remotefs.ErrNotFound].
func (r *Resolver) Resolve(ctx context.Context, p string) (string, error) {
	p = NormalizePath(p)
	if p == "/" {
		return r.client.RootID(), nil
	}
	if id, ok := r.paths.Get(p); ok {
		return id, nil
	}

	logger := util.GetLogger("Resolver.Resolve")
	currentID := r.client.RootID()
	prefix := ""
	segs := splitPath(p)
	for i, name := range segs {
		matches, err := r.client.FindChildren(ctx, currentID, name)
		if err != nil {
			logger.Warn().Err(err).Str("path", p).Str("segment", name).Msg("Remote lookup failed; reporting not found")
			return "", remotefs.NotFound(p)
		}
		if len(matches) == 0 {
			logger.Debug().Str("path", p).Str("segment", name).Msg("No such child")
			return "", remotefs.NotFound(p)
		}
		if len(matches) > 1 {
			logger.Debug().Str("path", p).Str("segment", name).Int("matches", len(matches)).
				Msg("Multiple children share a name; using the first")
		}

		// Snapshot the match once so the directory check below and any cached
		// copy agree on its type
		obj := matches[0]
		if i < len(segs)-1 && !obj.IsDirectory() {
			logger.Debug().Str("path", p).Str("segment", name).Msg("Intermediate segment is not a directory")
			return "", remotefs.NotFound(p)
		}

		prefix += "/" + name
		currentID = obj.ID
		r.paths.Set(prefix, currentID)
		r.objects.Set(currentID, &obj)
	}

	logger.Trace().Str("path", p).Str("id", currentID).Msg("Resolved path")
	return currentID, nil
}

// Object returns the metadata snapshot for id, consulting the object cache first.
func (r *Resolver) Object(ctx context.Context, id string) (*remotefs.RemoteObject, error) {
	if obj, ok := r.objects.Get(id); ok {
		return obj, nil
	}
	if id == r.client.RootID() {
		obj := r.rootObject()
		r.objects.Set(id, obj)
		return obj, nil
	}

	obj, err := r.client.GetObject(ctx, id)
	if err != nil {
		return nil, err
	}
	r.objects.Set(id, obj)
	return obj, nil
}

// Stat resolves p and returns its metadata snapshot.
func (r *Resolver) Stat(ctx context.Context, p string) (*remotefs.RemoteObject, error) {
	id, err := r.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	obj, err := r.Object(ctx, id)
	if errors.Is(err, remotefs.ErrNotFound) {
		// The path cache may outlive a deleted object
		r.paths.Delete(NormalizePath(p))
	}
	return obj, err
}

// Remember caches child under parentPath, keeping an existing live mapping for
// the same name so the first listed sibling wins.
func (r *Resolver) Remember(parentPath string, child *remotefs.RemoteObject) {
	r.objects.Set(child.ID, child)
	r.paths.SetIfAbsent(path.Join(NormalizePath(parentPath), child.Name), child.ID)
}

// rootObject synthesizes the root, which is always a directory.
func (r *Resolver) rootObject() *remotefs.RemoteObject {
	notCopyable := false
	return &remotefs.RemoteObject{
		ID:       r.client.RootID(),
		MimeType: remotefs.FolderMimeType,
		Copyable: &notCopyable,
	}
}
