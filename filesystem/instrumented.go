package filesystem

import (
	"context"
	"io"
	"time"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/internal/metrics"
)

// instrumentedClient records the outcome and latency of every backend call.
type instrumentedClient struct {
	remotefs.ObjectClient
	metrics *metrics.Metrics
}

func instrument(c remotefs.ObjectClient, m *metrics.Metrics) remotefs.ObjectClient {
	if m == nil {
		return c
	}
	return &instrumentedClient{ObjectClient: c, metrics: m}
}

func (c *instrumentedClient) ListChildren(ctx context.Context, parentID string) ([]remotefs.RemoteObject, error) {
	start := time.Now()
	objs, err := c.ObjectClient.ListChildren(ctx, parentID)
	c.metrics.ObserveRemote("ListChildren", time.Since(start), err)
	return objs, err
}

func (c *instrumentedClient) FindChildren(ctx context.Context, parentID, name string) ([]remotefs.RemoteObject, error) {
	start := time.Now()
	objs, err := c.ObjectClient.FindChildren(ctx, parentID, name)
	c.metrics.ObserveRemote("FindChildren", time.Since(start), err)
	return objs, err
}

func (c *instrumentedClient) GetObject(ctx context.Context, id string) (*remotefs.RemoteObject, error) {
	start := time.Now()
	obj, err := c.ObjectClient.GetObject(ctx, id)
	c.metrics.ObserveRemote("GetObject", time.Since(start), err)
	return obj, err
}

func (c *instrumentedClient) OpenRange(ctx context.Context, id string, s, e int64) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := c.ObjectClient.OpenRange(ctx, id, s, e)
	c.metrics.ObserveRemote("OpenRange", time.Since(start), err)
	return rc, err
}

func (c *instrumentedClient) CreateFolder(ctx context.Context, parentID, name string) (*remotefs.RemoteObject, error) {
	start := time.Now()
	obj, err := c.ObjectClient.CreateFolder(ctx, parentID, name)
	c.metrics.ObserveRemote("CreateFolder", time.Since(start), err)
	return obj, err
}
