package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
	"github.com/mohammed-shakir/offline-asset-cache/internal/cache/cachetest"
)

func TestMemstore_Contract(t *testing.T) {
	cachetest.Run(t, func(*testing.T) cache.Store { return New() })
}

func TestMemstore_ReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	ns, _ := s.Open(ctx, "a")
	resp := cachetest.OK("body")
	_ = ns.Put(ctx, "/k", resp)
	resp.Body[0] = 'X'

	got, _, _ := ns.Get(ctx, "/k")
	if string(got.Body) != "body" {
		t.Fatalf("stored entry aliased caller buffer: %q", got.Body)
	}
	got.Header.Set("X-Test", "mutated")
	again, _, _ := ns.Get(ctx, "/k")
	if again.Header.Get("X-Test") != "a" {
		t.Fatalf("returned entry aliased store state")
	}
}

func TestMemstore_Closed(t *testing.T) {
	s := New()
	ctx := context.Background()
	ns, _ := s.Open(ctx, "a")
	_ = s.Close()
	if _, err := s.Open(ctx, "a"); !errors.Is(err, cache.ErrClosed) {
		t.Fatalf("Open after close: %v", err)
	}
	if err := ns.Put(ctx, "/k", cachetest.OK("x")); !errors.Is(err, cache.ErrClosed) {
		t.Fatalf("Put after close: %v", err)
	}
}
