package network

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/mohammed-shakir/offline-asset-cache/internal/core/observability"
)

// PassThrough forwards requests the controller does not intercept (non-GET,
// cross-origin, or anything before activation) to the origin unchanged.
type PassThrough struct {
	logger *slog.Logger
	proxy  *httputil.ReverseProxy
}

func NewPassThrough(logger *slog.Logger, client *http.Client, o *Origin) *PassThrough {
	if logger == nil {
		logger = slog.Default()
	}
	rt := http.RoundTripper(http.DefaultTransport)
	if client != nil && client.Transport != nil {
		rt = client.Transport
	}
	p := &PassThrough{logger: logger}
	p.proxy = &httputil.ReverseProxy{
		Transport: rt,
		Rewrite: func(pr *httputil.ProxyRequest) {
			// absolute-form targets on another host go where they were addressed
			if pr.In.URL.IsAbs() && pr.In.URL.Host != o.base.Host {
				pr.Out.Host = pr.In.URL.Host
				return
			}
			target := o.Resolve(pr.In.URL)
			pr.Out.URL = target
			pr.Out.Host = target.Host
			pr.SetXForwarded()
		},
		ModifyResponse: func(resp *http.Response) error {
			if start, ok := resp.Request.Context().Value(startKey{}).(time.Time); ok {
				observability.ObserveUpstreamLatency("origin_passthrough", time.Since(start).Seconds())
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.logger.ErrorContext(r.Context(), "pass-through proxy error", "url", r.URL.String(), "err", err)
			http.Error(w, "upstream proxy error: "+err.Error(), http.StatusBadGateway)
		},
	}
	return p
}

type startKey struct{}

func contextWithStart(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startKey{}, t)
}

func (p *PassThrough) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r = r.WithContext(contextWithStart(ctx, time.Now()))
	p.logger.DebugContext(ctx, "pass-through", "method", r.Method, "url", r.URL.String())
	p.proxy.ServeHTTP(w, r)
}
