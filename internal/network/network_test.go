package network

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestOrigin_FetchReturnsSnapshot(t *testing.T) {
	var gotPath, gotQuery, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotAccept = r.URL.Path, r.URL.RawQuery, r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("ETag", `"abc"`)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	o, err := NewOrigin(quiet(), srv.Client(), srv.URL, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	hdr := http.Header{"Accept": {"application/json"}, "Cookie": {"secret"}}
	resp, err := o.Fetch(context.Background(), Request{URL: mustURL(t, "/model/Azue%20Lane(JP)/z23/z23.moc3?v=2"), Header: hdr})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Status != http.StatusOK || string(resp.Body) != `{"ok":true}` {
		t.Fatalf("resp=%d %q", resp.Status, resp.Body)
	}
	if resp.Header.Get("ETag") != `"abc"` || resp.Header.Get("Content-Length") != "" {
		t.Fatalf("headers=%v", resp.Header)
	}
	if gotPath != "/model/Azue Lane(JP)/z23/z23.moc3" || gotQuery != "v=2" || gotAccept != "application/json" {
		t.Fatalf("origin saw path=%q query=%q accept=%q", gotPath, gotQuery, gotAccept)
	}
}

func TestOrigin_Non200IsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	o, _ := NewOrigin(quiet(), srv.Client(), srv.URL, 0)
	resp, err := o.Fetch(context.Background(), Request{URL: mustURL(t, "/missing.png")})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.Status != http.StatusNotFound {
		t.Fatalf("status=%d", resp.Status)
	}
}

func TestOrigin_TransportFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	o, _ := NewOrigin(quiet(), nil, base, 0)
	if _, err := o.Fetch(context.Background(), Request{URL: mustURL(t, "/")}); err == nil {
		t.Fatal("expected error from closed server")
	}
}

func TestOrigin_BodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 100))
	}))
	defer srv.Close()

	o, _ := NewOrigin(quiet(), srv.Client(), srv.URL, 10)
	_, err := o.Fetch(context.Background(), Request{URL: mustURL(t, "/big")})
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("err=%v want ErrBodyTooLarge", err)
	}
}

func TestOrigin_ResolveKeepsBasePath(t *testing.T) {
	o, err := NewOrigin(quiet(), nil, "http://viewer.local/app/", 0)
	if err != nil {
		t.Fatal(err)
	}
	got := o.Resolve(mustURL(t, "/index.html?x=1#frag"))
	if got.String() != "http://viewer.local/app/index.html?x=1" {
		t.Fatalf("resolved=%s", got)
	}
}

func TestNewOrigin_RejectsRelative(t *testing.T) {
	if _, err := NewOrigin(quiet(), nil, "/just/a/path", 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestPassThrough_ForwardsMethodAndBody(t *testing.T) {
	var method, body, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	o, _ := NewOrigin(quiet(), srv.Client(), srv.URL, 0)
	p := NewPassThrough(quiet(), srv.Client(), o)

	req := httptest.NewRequest(http.MethodPost, "/api/save", strings.NewReader("payload"))
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d", rec.Code)
	}
	if method != http.MethodPost || body != "payload" || path != "/api/save" {
		t.Fatalf("origin saw %s %s %q", method, path, body)
	}
}

func TestPassThrough_UpstreamDownIs502(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	o, _ := NewOrigin(quiet(), nil, base, 0)
	p := NewPassThrough(quiet(), nil, o)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/x", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", rec.Code)
	}
}
