package cache

import (
	"context"
	"time"

	"github.com/mohammed-shakir/offline-asset-cache/internal/core/observability"
)

// Instrument wraps s so every operation is timed, recorded and bounded by
// opTimeout (0 disables the bound).
func Instrument(s Store, opTimeout time.Duration) Store {
	return &instrumented{next: s, timeout: opTimeout}
}

type instrumented struct {
	next    Store
	timeout time.Duration
}

func (s *instrumented) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *instrumented) Open(ctx context.Context, name string) (Namespace, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	ns, err := s.next.Open(ctx, name)
	observability.ObserveCacheOp("open", err, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return &instrumentedNS{next: ns, parent: s}, nil
}

func (s *instrumented) Namespaces(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	names, err := s.next.Namespaces(ctx)
	observability.ObserveCacheOp("keys", err, time.Since(start).Seconds())
	return names, err
}

func (s *instrumented) Delete(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	ok, err := s.next.Delete(ctx, name)
	observability.ObserveCacheOp("delete", err, time.Since(start).Seconds())
	return ok, err
}

func (s *instrumented) Close() error { return s.next.Close() }

type instrumentedNS struct {
	next   Namespace
	parent *instrumented
}

func (n *instrumentedNS) Name() string { return n.next.Name() }

func (n *instrumentedNS) Get(ctx context.Context, url string) (*Response, bool, error) {
	ctx, cancel := n.parent.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	resp, ok, err := n.next.Get(ctx, url)
	observability.ObserveCacheOp("get", err, time.Since(start).Seconds())
	return resp, ok, err
}

func (n *instrumentedNS) Put(ctx context.Context, url string, resp *Response) error {
	if err := CheckCacheable(resp); err != nil {
		return err
	}
	ctx, cancel := n.parent.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	err := n.next.Put(ctx, url, resp)
	observability.ObserveCacheOp("put", err, time.Since(start).Seconds())
	return err
}

func (n *instrumentedNS) PutAll(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := CheckCacheable(e.Response); err != nil {
			return err
		}
	}
	ctx, cancel := n.parent.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	err := n.next.PutAll(ctx, entries)
	observability.ObserveCacheOp("put_all", err, time.Since(start).Seconds())
	return err
}
