// Package cachetest holds the behaviour every cache store driver must share.
package cachetest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"testing"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
)

func OK(body string) *cache.Response {
	return &cache.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/plain"}, "X-Test": {"a", "b"}},
		Body:   []byte(body),
	}
}

// Run exercises a fresh store from newStore against the cache.Store contract.
func Run(t *testing.T, newStore func(t *testing.T) cache.Store) {
	t.Helper()

	t.Run("OpenCreatesNamespace", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Open(ctx, "live2d-cache-v1"); err != nil {
			t.Fatalf("Open: %v", err)
		}
		names, err := s.Namespaces(ctx)
		if err != nil {
			t.Fatalf("Namespaces: %v", err)
		}
		if !reflect.DeepEqual(names, []string{"live2d-cache-v1"}) {
			t.Fatalf("names=%v", names)
		}
	})

	t.Run("PutGetOverwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ns, err := s.Open(ctx, "a")
		if err != nil {
			t.Fatal(err)
		}
		if _, ok, err := ns.Get(ctx, "/x.png"); err != nil || ok {
			t.Fatalf("expected miss, ok=%v err=%v", ok, err)
		}
		if err := ns.Put(ctx, "/x.png", OK("one")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := ns.Put(ctx, "/x.png", OK("two")); err != nil {
			t.Fatalf("Put overwrite: %v", err)
		}
		got, ok, err := ns.Get(ctx, "/x.png")
		if err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
		if got.Status != http.StatusOK || string(got.Body) != "two" {
			t.Fatalf("got status=%d body=%q", got.Status, got.Body)
		}
		if !reflect.DeepEqual(got.Header["X-Test"], []string{"a", "b"}) {
			t.Fatalf("headers not preserved: %v", got.Header)
		}
	})

	t.Run("RejectsNon200", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ns, _ := s.Open(ctx, "a")
		for _, code := range []int{http.StatusNotFound, http.StatusPartialContent, http.StatusInternalServerError} {
			err := ns.Put(ctx, "/y", &cache.Response{Status: code})
			if !errors.Is(err, cache.ErrNotCacheable) {
				t.Fatalf("status %d: err=%v want ErrNotCacheable", code, err)
			}
		}
		if _, ok, _ := ns.Get(ctx, "/y"); ok {
			t.Fatalf("non-200 response was stored")
		}
	})

	t.Run("PutAllIsAllOrNothingOnValidation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ns, _ := s.Open(ctx, "a")
		bad := []cache.Entry{
			{URL: "/1", Response: OK("1")},
			{URL: "/2", Response: &cache.Response{Status: http.StatusNotFound}},
		}
		if err := ns.PutAll(ctx, bad); !errors.Is(err, cache.ErrNotCacheable) {
			t.Fatalf("err=%v want ErrNotCacheable", err)
		}
		if _, ok, _ := ns.Get(ctx, "/1"); ok {
			t.Fatalf("partial batch was written")
		}
		good := []cache.Entry{{URL: "/1", Response: OK("1")}, {URL: "/2", Response: OK("2")}}
		if err := ns.PutAll(ctx, good); err != nil {
			t.Fatalf("PutAll: %v", err)
		}
		for _, e := range good {
			if got, ok, _ := ns.Get(ctx, e.URL); !ok || string(got.Body) != string(e.Response.Body) {
				t.Fatalf("missing %s", e.URL)
			}
		}
	})

	t.Run("DeleteDropsEntries", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a, _ := s.Open(ctx, "a")
		b, _ := s.Open(ctx, "b")
		_ = a.Put(ctx, "/k", OK("a"))
		_ = b.Put(ctx, "/k", OK("b"))

		existed, err := s.Delete(ctx, "a")
		if err != nil || !existed {
			t.Fatalf("Delete: existed=%v err=%v", existed, err)
		}
		existed, err = s.Delete(ctx, "a")
		if err != nil || existed {
			t.Fatalf("second Delete: existed=%v err=%v", existed, err)
		}
		names, _ := s.Namespaces(ctx)
		if !reflect.DeepEqual(names, []string{"b"}) {
			t.Fatalf("names=%v", names)
		}
		a, _ = s.Open(ctx, "a")
		if _, ok, _ := a.Get(ctx, "/k"); ok {
			t.Fatalf("entry survived namespace deletion")
		}
		if got, ok, _ := b.Get(ctx, "/k"); !ok || string(got.Body) != "b" {
			t.Fatalf("sibling namespace affected")
		}
	})

	t.Run("ConcurrentWritesLastWins", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ns, _ := s.Open(ctx, "a")
		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = ns.Put(ctx, fmt.Sprintf("/k%d", i%4), OK(fmt.Sprint(i)))
			}()
		}
		wg.Wait()
		for i := range 4 {
			if _, ok, err := ns.Get(ctx, fmt.Sprintf("/k%d", i)); !ok || err != nil {
				t.Fatalf("missing /k%d: %v", i, err)
			}
		}
	})
}
