package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
	"github.com/mohammed-shakir/offline-asset-cache/internal/cache/codec"
	"github.com/mohammed-shakir/offline-asset-cache/internal/cache/keys"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/config"
)

func init() {
	cache.Register("redis", func(cfg config.Config, logger *slog.Logger) (cache.Store, error) {
		cd, err := codec.ByName(cfg.EntryCodec)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CacheOpTimeout)
		defer cancel()
		cli, err := New(ctx, cfg.RedisAddr, FromConfig(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("redis client: %w", err)
		}
		return NewStore(cli, cfg.RedisPrefix, cd, logger), nil
	})
}

type Store struct {
	cli    *Client
	prefix string
	codec  codec.Codec
	logger *slog.Logger
}

var _ cache.Store = (*Store)(nil)

func NewStore(cli *Client, prefix string, cd codec.Codec, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cd == nil {
		cd = codec.Msgpack{}
	}
	return &Store{cli: cli, prefix: prefix, codec: cd, logger: logger}
}

func (s *Store) Open(ctx context.Context, name string) (cache.Namespace, error) {
	if err := s.cli.SAdd(ctx, keys.Index(s.prefix), name); err != nil {
		return nil, fmt.Errorf("open namespace %q: %w", name, err)
	}
	return &namespace{store: s, name: name, key: keys.Namespace(s.prefix, name)}, nil
}

func (s *Store) Namespaces(ctx context.Context) ([]string, error) {
	names, err := s.cli.SMembers(ctx, keys.Index(s.prefix))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	return s.cli.DropIndexed(ctx, keys.Index(s.prefix), name, keys.Namespace(s.prefix, name))
}

func (s *Store) Close() error { return s.cli.Close() }

type namespace struct {
	store *Store
	name  string
	key   string
}

func (n *namespace) Name() string { return n.name }

func (n *namespace) Get(ctx context.Context, url string) (*cache.Response, bool, error) {
	b, ok, err := n.store.cli.HGet(ctx, n.key, url)
	if err != nil || !ok {
		return nil, false, err
	}
	resp, err := n.store.codec.Decode(b)
	if errors.Is(err, codec.ErrCorrupt) {
		// drop it so the next strategy run refetches
		n.store.logger.Warn("dropping corrupt cache entry", "namespace", n.name, "url", url, "err", err)
		_ = n.store.cli.HDel(ctx, n.key, url)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("decode %q: %w", url, err)
	}
	return resp, true, nil
}

func (n *namespace) Put(ctx context.Context, url string, resp *cache.Response) error {
	return n.PutAll(ctx, []cache.Entry{{URL: url, Response: resp}})
}

func (n *namespace) PutAll(ctx context.Context, entries []cache.Entry) error {
	fields := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if err := cache.CheckCacheable(e.Response); err != nil {
			return err
		}
		b, err := n.store.codec.Encode(e.Response)
		if err != nil {
			return fmt.Errorf("encode %q: %w", e.URL, err)
		}
		fields[e.URL] = b
	}
	return n.store.cli.HSetIndexed(ctx, keys.Index(n.store.prefix), n.name, n.key, fields)
}
