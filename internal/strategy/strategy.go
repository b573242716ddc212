// Package strategy resolves intercepted requests against the cache and the
// network. Every path through it ends in a well-formed response.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
	"github.com/mohammed-shakir/offline-asset-cache/internal/cache/keys"
	"github.com/mohammed-shakir/offline-asset-cache/internal/classify"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/observability"
	"github.com/mohammed-shakir/offline-asset-cache/internal/logger"
	"github.com/mohammed-shakir/offline-asset-cache/internal/network"
)

// Source says where a response came from.
type Source string

const (
	FromCache    Source = "cache"
	FromNetwork  Source = "network"
	FromFallback Source = "fallback"
	FromOffline  Source = "offline"
	Synthesized  Source = "error"
)

// OfflineURL is the key of the offline document inside the offline namespace.
const OfflineURL = "/offline.html"

const (
	assetFailedMsg   = "Model resource failed to load. Check your network connection."
	networkFailedMsg = "Network request failed and the resource is not cached."
)

type Request struct {
	URL    *url.URL
	Header http.Header
	// Navigate marks a top-level page load; only these may get the offline document.
	Navigate bool
}

// FromHTTP builds a Request from an inbound request.
func FromHTTP(r *http.Request) Request {
	return Request{URL: r.URL, Header: r.Header, Navigate: IsNavigation(r)}
}

// IsNavigation reports a document load: Sec-Fetch-Mode: navigate, or for
// clients that do not send fetch metadata, a GET that accepts text/html.
func IsNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

type Result struct {
	Response *cache.Response
	Source   Source
}

type Config struct {
	Logger  *slog.Logger
	Network network.Fetcher
	Store   cache.Store
	// Namespace receives write-through entries and answers lookups.
	Namespace string
	// OfflineNamespace holds the offline document; empty disables it.
	OfflineNamespace string
	Background       *Background
}

type Engine struct {
	logger  *slog.Logger
	net     network.Fetcher
	store   cache.Store
	ns      string
	offline string
	bg      *Background
}

func New(cfg Config) *Engine {
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	bg := cfg.Background
	if bg == nil {
		bg = NewBackground(context.Background(), l, CountFailure)
	}
	return &Engine{
		logger:  l,
		net:     cfg.Network,
		store:   cfg.Store,
		ns:      cfg.Namespace,
		offline: cfg.OfflineNamespace,
		bg:      bg,
	}
}

// Serve picks the strategy for class.
func (e *Engine) Serve(ctx context.Context, class classify.Class, req Request) Result {
	var res Result
	switch class {
	case classify.VersionedAsset:
		res = e.CacheFirst(ctx, req)
	case classify.StaticCode:
		res = e.StaleWhileRevalidate(ctx, req)
	default:
		res = e.NetworkFirst(ctx, req)
	}
	observability.IncStrategyResult(class.String(), string(res.Source))
	return res
}

// CacheFirst treats a cached entry as final. On a miss the network answer is
// written through (if 200) and returned as-is.
func (e *Engine) CacheFirst(ctx context.Context, req Request) Result {
	ctx = logger.WithNamespace(logger.WithStrategy(ctx, "cache-first"), e.ns)
	key := keys.URL(req.URL)

	if resp, ok := e.lookup(ctx, key); ok {
		e.logger.DebugContext(ctx, "served from cache", "url", key)
		return Result{Response: resp, Source: FromCache}
	}

	resp, err := e.net.Fetch(ctx, network.Request{URL: req.URL, Header: req.Header})
	if err != nil {
		e.logger.WarnContext(ctx, "asset fetch failed", "url", key, "err", err)
		return Result{Response: ErrorResponse(assetFailedMsg), Source: Synthesized}
	}
	if resp.OK() {
		e.writeThrough(ctx, key, resp)
	}
	return Result{Response: resp, Source: FromNetwork}
}

// NetworkFirst prefers the live response and falls back to the cached entry,
// then (navigations only) the offline document, then a synthesized error.
func (e *Engine) NetworkFirst(ctx context.Context, req Request) Result {
	ctx = logger.WithNamespace(logger.WithStrategy(ctx, "network-first"), e.ns)
	key := keys.URL(req.URL)

	resp, err := e.net.Fetch(ctx, network.Request{URL: req.URL, Header: req.Header})
	if err == nil {
		if resp.OK() {
			e.writeThrough(ctx, key, resp)
		}
		return Result{Response: resp, Source: FromNetwork}
	}

	e.logger.InfoContext(ctx, "network failed; trying cache", "url", key, "err", err)
	if cached, ok := e.lookup(ctx, key); ok {
		return Result{Response: cached, Source: FromFallback}
	}
	if req.Navigate {
		if doc, ok := e.offlineDocument(ctx); ok {
			return Result{Response: doc, Source: FromOffline}
		}
	}
	return Result{Response: ErrorResponse(networkFailedMsg), Source: Synthesized}
}

// StaleWhileRevalidate answers from cache when it can and refreshes the entry
// in the background. Without a cached entry it waits for the network.
func (e *Engine) StaleWhileRevalidate(ctx context.Context, req Request) Result {
	ctx = logger.WithNamespace(logger.WithStrategy(ctx, "stale-while-revalidate"), e.ns)
	key := keys.URL(req.URL)
	nreq := network.Request{URL: cloneURL(req.URL), Header: req.Header.Clone()}

	if cached, ok := e.lookup(ctx, key); ok {
		e.bg.Go(ctx, "revalidate "+key, func(ctx context.Context) error {
			resp, err := e.net.Fetch(ctx, nreq)
			if err != nil {
				return fmt.Errorf("revalidate %s: %w", key, err)
			}
			if !resp.OK() {
				e.logger.DebugContext(ctx, "revalidation not cacheable", "url", key, "status", resp.Status)
				return nil
			}
			return e.put(ctx, key, resp)
		})
		return Result{Response: cached, Source: FromCache}
	}

	resp, err := e.net.Fetch(ctx, nreq)
	if err != nil {
		e.logger.WarnContext(ctx, "static resource fetch failed", "url", key, "err", err)
		return Result{Response: ErrorResponse(networkFailedMsg), Source: Synthesized}
	}
	if resp.OK() {
		e.writeThrough(ctx, key, resp)
	}
	return Result{Response: resp, Source: FromNetwork}
}

// CountFailure is the Background error hook that feeds the revalidation
// failure metric.
func CountFailure(string, error) { observability.IncRevalidateFailure() }

// Wait blocks until background revalidations have finished.
func (e *Engine) Wait() { e.bg.Wait() }

func (e *Engine) lookup(ctx context.Context, key string) (*cache.Response, bool) {
	ns, err := e.store.Open(ctx, e.ns)
	if err != nil {
		e.logger.WarnContext(ctx, "cache open failed", "err", err)
		return nil, false
	}
	resp, ok, err := ns.Get(ctx, key)
	if err != nil {
		e.logger.WarnContext(ctx, "cache read failed", "url", key, "err", err)
		return nil, false
	}
	return resp, ok
}

func (e *Engine) offlineDocument(ctx context.Context) (*cache.Response, bool) {
	if e.offline == "" {
		return nil, false
	}
	ctx = logger.WithNamespace(ctx, e.offline)
	ns, err := e.store.Open(ctx, e.offline)
	if err != nil {
		e.logger.WarnContext(ctx, "offline namespace open failed", "err", err)
		return nil, false
	}
	doc, ok, err := ns.Get(ctx, OfflineURL)
	if err != nil || !ok {
		return nil, false
	}
	return doc, true
}

func (e *Engine) put(ctx context.Context, key string, resp *cache.Response) error {
	ns, err := e.store.Open(ctx, e.ns)
	if err != nil {
		return fmt.Errorf("open %q: %w", e.ns, err)
	}
	if err := ns.Put(ctx, key, resp); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// writeThrough persists resp; a failed write never changes what the caller gets.
func (e *Engine) writeThrough(ctx context.Context, key string, resp *cache.Response) {
	if err := e.put(ctx, key, resp); err != nil {
		if errors.Is(err, cache.ErrNotCacheable) {
			return
		}
		e.logger.WarnContext(ctx, "write-through failed", "url", key, "err", err)
	}
}

// ErrorResponse is the response for "no network, no cache, no fallback".
func ErrorResponse(msg string) *cache.Response {
	return &cache.Response{
		Status: http.StatusRequestTimeout,
		Header: http.Header{"Content-Type": {"text/plain; charset=UTF-8"}},
		Body:   []byte(msg),
	}
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return &url.URL{Path: "/"}
	}
	c := *u
	return &c
}
