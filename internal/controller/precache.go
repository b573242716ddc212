package controller

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
	"github.com/mohammed-shakir/offline-asset-cache/internal/cache/keys"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/observability"
	"github.com/mohammed-shakir/offline-asset-cache/internal/network"
)

const progressEvery = 20

// cacheCore fetches every core file and stores them only if all came back 200.
func (c *Controller) cacheCore(ctx context.Context, ns cache.Namespace, paths []string) error {
	entries := make([]cache.Entry, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, p := range paths {
		g.Go(func() error {
			u := keys.PathURL(p)
			resp, err := c.net.Fetch(gctx, network.Request{URL: u})
			if err != nil {
				return fmt.Errorf("fetch %s: %w", p, err)
			}
			if !resp.OK() {
				return fmt.Errorf("fetch %s: status %d", p, resp.Status)
			}
			entries[i] = cache.Entry{URL: keys.URL(u), Response: resp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ns.PutAll(ctx, entries); err != nil {
		return fmt.Errorf("store core batch: %w", err)
	}
	return nil
}

// precache attempts every path independently and returns how many were cached.
// Failures are expected (not every model has every texture or motion).
func (c *Controller) precache(ctx context.Context, ns cache.Namespace, paths []string, phase string) int {
	var (
		success atomic.Int64
		g       errgroup.Group
	)
	g.SetLimit(c.workers)
	for _, p := range paths {
		g.Go(func() error {
			if !c.cacheResource(ctx, ns, p, phase) {
				return nil
			}
			n := success.Add(1)
			if n%progressEvery == 0 {
				c.logger.InfoContext(ctx, "precache progress", "phase", phase, "success", n, "total", len(paths))
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(success.Load())
}

func (c *Controller) cacheResource(ctx context.Context, ns cache.Namespace, p, phase string) bool {
	u := keys.PathURL(p)
	resp, err := c.net.Fetch(ctx, network.Request{URL: u})
	if err != nil {
		observability.IncPrecache(phase, "error")
		c.logger.DebugContext(ctx, "precache fetch failed; may not exist", "url", p, "err", err)
		return false
	}
	if resp.Status != http.StatusOK {
		observability.IncPrecache(phase, "skipped")
		c.logger.DebugContext(ctx, "precache skipped non-200", "url", p, "status", resp.Status)
		return false
	}
	if err := ns.Put(ctx, keys.URL(u), resp); err != nil {
		observability.IncPrecache(phase, "error")
		c.logger.WarnContext(ctx, "precache write failed", "url", p, "err", err)
		return false
	}
	observability.IncPrecache(phase, "ok")
	return true
}
