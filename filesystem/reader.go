package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/internal/util"
)

// Reader serves arbitrary-offset reads by issuing one ranged fetch per call.
// It keeps no cursor between calls and never retries.
type Reader struct {
	client remotefs.ObjectClient
}

func NewReader(client remotefs.ObjectClient) *Reader {
	return &Reader{client: client}
}

// ReadAt fills buf with content of obj starting at offset and returns the byte
// count. Reading a directory fails with [remotefs.ErrAccessDenied] without a
// fetch. When the object's size is known, reads at or past the end return 0 and
// the fetched range is clamped to the last byte.
func (r *Reader) ReadAt(ctx context.Context, obj *remotefs.RemoteObject, buf []byte, offset int64) (int, error) {
	logger := util.GetLogger("Reader.ReadAt")

	if obj.IsDirectory() {
		return 0, fmt.Errorf("read %s: %w", obj.ID, remotefs.ErrAccessDenied)
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if offset < 0 {
		return 0, fmt.Errorf("read %s: negative offset %d", obj.ID, offset)
	}

	end := offset + int64(len(buf)) - 1
	if obj.Size != nil {
		size := *obj.Size
		if offset >= size {
			return 0, nil
		}
		end = min(end, size-1)
	}
	want := buf[:end-offset+1]

	logger.Trace().Str("id", obj.ID).Int64("start", offset).Int64("end", end).Msg("Ranged fetch")
	rc, err := r.client.OpenRange(ctx, obj.ID, offset, end)
	if err != nil {
		if errors.Is(err, remotefs.ErrNotFound) {
			return 0, err
		}
		logger.Warn().Err(err).Str("id", obj.ID).Int64("offset", offset).Msg("Ranged fetch failed")
		return 0, asTransport("open range", err)
	}
	defer rc.Close()

	n, err := io.ReadFull(rc, want)
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, nil
	default:
		logger.Warn().Err(err).Str("id", obj.ID).Int("partial", n).Msg("Ranged fetch interrupted")
		return 0, asTransport("read range", err)
	}
}

// asTransport marks err as a transport failure unless it already is one.
func asTransport(op string, err error) error {
	if errors.Is(err, remotefs.ErrTransport) {
		return err
	}
	return remotefs.Transport(op, err)
}
