package redisstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
	"github.com/mohammed-shakir/offline-asset-cache/internal/cache/cachetest"
	"github.com/mohammed-shakir/offline-asset-cache/internal/cache/codec"
	"github.com/mohammed-shakir/offline-asset-cache/internal/cache/keys"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/config"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRedisStore_Contract(t *testing.T) {
	cachetest.Run(t, func(t *testing.T) cache.Store {
		rc, _ := newMini(t)
		return NewStore(rc, "test", codec.Msgpack{}, quiet())
	})
}

func TestRedisStore_ContractCBOR(t *testing.T) {
	cb, err := codec.NewCBOR()
	if err != nil {
		t.Fatal(err)
	}
	cachetest.Run(t, func(t *testing.T) cache.Store {
		rc, _ := newMini(t)
		return NewStore(rc, "test", cb, quiet())
	})
}

func TestRedisStore_Layout(t *testing.T) {
	rc, mr := newMini(t)
	s := NewStore(rc, "ac", codec.Msgpack{}, quiet())
	ctx := context.Background()

	ns, err := s.Open(ctx, "live2d-cache-v1")
	if err != nil {
		t.Fatal(err)
	}
	if err := ns.Put(ctx, "/index.html", cachetest.OK("hi")); err != nil {
		t.Fatal(err)
	}
	ok, err := mr.SIsMember(keys.Index("ac"), "live2d-cache-v1")
	if err != nil || !ok {
		t.Fatalf("namespace not indexed: ok=%v err=%v", ok, err)
	}
	if !mr.Exists(keys.Namespace("ac", "live2d-cache-v1")) {
		t.Fatalf("namespace hash missing")
	}
}

func TestRedisStore_CorruptEntryIsDroppedAsMiss(t *testing.T) {
	rc, mr := newMini(t)
	s := NewStore(rc, "ac", codec.Msgpack{}, quiet())
	ctx := context.Background()

	ns, _ := s.Open(ctx, "a")
	mr.HSet(keys.Namespace("ac", "a"), "/x.png", "not-msgpack")

	if _, ok, err := ns.Get(ctx, "/x.png"); ok || err != nil {
		t.Fatalf("expected miss on corrupt entry, ok=%v err=%v", ok, err)
	}
	if v := mr.HGet(keys.Namespace("ac", "a"), "/x.png"); v != "" {
		t.Fatalf("corrupt entry not removed: %q", v)
	}
}

func TestContextDeadline_IsRespected(t *testing.T) {
	rc, _ := newMini(t)
	s := NewStore(rc, "ac", codec.Msgpack{}, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Open(ctx, "a"); err == nil {
		t.Fatalf("expected error on Open with canceled context")
	}
	if _, err := s.Namespaces(ctx); err == nil {
		t.Fatalf("expected error on Namespaces with canceled context")
	}
	if _, err := s.Delete(ctx, "a"); err == nil {
		t.Fatalf("expected error on Delete with canceled context")
	}
}

func TestFromConfig_AppliesRedisSettings(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := config.Config{
		RedisPoolSize:     4,
		RedisDialTimeout:  time.Second,
		RedisReadTimeout:  3 * time.Second,
		RedisWriteTimeout: 5 * time.Second,
	}
	rc, err := New(context.Background(), mr.Addr(), FromConfig(cfg)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	o := rc.rdb.Options()
	if o.PoolSize != 4 || o.DialTimeout != time.Second || o.ReadTimeout != 3*time.Second || o.WriteTimeout != 5*time.Second {
		t.Fatalf("options not applied: pool=%d dial=%v read=%v write=%v", o.PoolSize, o.DialTimeout, o.ReadTimeout, o.WriteTimeout)
	}
	if len(FromConfig(config.Config{})) != 0 {
		t.Fatal("zero config should keep client defaults")
	}
}
