// Package network fetches resources from the origin on behalf of the
// strategies and the precache, and forwards requests the controller does not
// intercept.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/observability"
)

// ErrBodyTooLarge is returned when the origin body exceeds the configured cap.
var ErrBodyTooLarge = errors.New("network: response body too large")

// Request is one origin fetch. URL is usually relative (path and query) and
// is resolved against the origin.
type Request struct {
	URL    *url.URL
	Header http.Header
}

// Fetcher returns an error only when no response was obtained at all.
// A 404 is a response, not an error.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*cache.Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) (*cache.Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req Request) (*cache.Response, error) {
	return f(ctx, req)
}

// request headers worth forwarding; anything else is per-connection or
// would make a shared cache entry depend on one client
var forwardHeaders = []string{"Accept", "Accept-Language", "User-Agent", "Referer"}

var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade", "Content-Length",
}

type Origin struct {
	logger   *slog.Logger
	client   *http.Client
	base     *url.URL
	maxBody  int64
	startNow func() time.Time // for tests
}

var _ Fetcher = (*Origin)(nil)

func NewOrigin(logger *slog.Logger, client *http.Client, origin string, maxBody int64) (*Origin, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin url %q must be absolute", origin)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Origin{
		logger:   logger,
		client:   client,
		base:     u,
		maxBody:  maxBody,
		startNow: time.Now,
	}, nil
}

// Base is the parsed origin URL.
func (o *Origin) Base() *url.URL {
	u := *o.base
	return &u
}

// Resolve maps a request URL onto the origin. Only path and query are kept.
func (o *Origin) Resolve(u *url.URL) *url.URL {
	out := *o.base
	out.Path = joinPath(o.base.Path, u.Path)
	out.RawPath = ""
	if u.RawPath != "" {
		out.RawPath = joinPath(o.base.EscapedPath(), u.RawPath)
	}
	out.RawQuery = u.RawQuery
	out.Fragment = ""
	return &out
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		if p == "" {
			return "/"
		}
		return p
	}
	if len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + p
}

func (o *Origin) Fetch(ctx context.Context, req Request) (*cache.Response, error) {
	target := o.Resolve(req.URL)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for _, h := range forwardHeaders {
		if v := req.Header.Get(h); v != "" {
			hreq.Header.Set(h, v)
		}
	}

	start := o.startNow()
	resp, err := o.client.Do(hreq)
	if err != nil {
		o.logger.DebugContext(ctx, "origin fetch failed", "url", target.String(), "err", err)
		return nil, fmt.Errorf("fetch %s: %w", target.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readLimited(resp.Body, o.maxBody)
	dur := time.Since(start)
	observability.ObserveUpstreamLatency("origin", dur.Seconds())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target.Redacted(), err)
	}

	hdr := resp.Header.Clone()
	for _, h := range hopHeaders {
		hdr.Del(h)
	}
	o.logger.DebugContext(ctx, "origin fetch done",
		"url", target.String(), "status", resp.StatusCode, "bytes", len(body), "duration", dur.String())
	return &cache.Response{Status: resp.StatusCode, Header: hdr, Body: body}, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return b, nil
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, limit)
	}
	return b, nil
}
