// Package cache defines the namespaced response store shared by the strategies
// and the lifecycle controller.
package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

var (
	// ErrNotCacheable is returned by Put for responses other than 200 OK.
	ErrNotCacheable = errors.New("cache: response not cacheable")
	ErrClosed       = errors.New("cache: store closed")
)

// Response is a snapshot of an HTTP response: status, headers and body bytes.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the response may be persisted.
func (r *Response) OK() bool {
	return r != nil && r.Status == http.StatusOK
}

func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   append([]byte(nil), r.Body...),
	}
}

// WriteTo copies the snapshot onto w. Content-Length is recomputed from the body.
func (r *Response) WriteTo(w http.ResponseWriter) error {
	h := w.Header()
	for k, vs := range r.Header {
		h[k] = append([]string(nil), vs...)
	}
	h.Del("Content-Length")
	h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	w.WriteHeader(r.Status)
	if _, err := w.Write(r.Body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// CheckCacheable is the guard every driver runs before writing.
func CheckCacheable(resp *Response) error {
	if resp == nil {
		return fmt.Errorf("%w: nil response", ErrNotCacheable)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: status %d", ErrNotCacheable, resp.Status)
	}
	return nil
}

type Entry struct {
	URL      string
	Response *Response
}

// Namespace is an open handle on one named cache.
type Namespace interface {
	Name() string
	// Get returns (resp, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, url string) (*Response, bool, error)
	// Put overwrites any existing entry for url.
	Put(ctx context.Context, url string, resp *Response) error
	// PutAll writes a batch; drivers apply it in one transaction where they can.
	PutAll(ctx context.Context, entries []Entry) error
}

// Store is the process-wide set of namespaces.
type Store interface {
	// Open returns the namespace, creating it when absent.
	Open(ctx context.Context, name string) (Namespace, error)
	Namespaces(ctx context.Context) ([]string, error)
	// Delete removes the namespace and every entry in it; it reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
	Close() error
}
