// Package memstore is the in-process cache store driver.
package memstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/config"
)

func init() {
	cache.Register("memory", func(config.Config, *slog.Logger) (cache.Store, error) {
		return New(), nil
	})
}

type Store struct {
	mu     sync.RWMutex
	spaces map[string]map[string]*cache.Response
	closed bool
}

var _ cache.Store = (*Store)(nil)

func New() *Store {
	return &Store{spaces: map[string]map[string]*cache.Response{}}
}

func (s *Store) Open(_ context.Context, name string) (cache.Namespace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, cache.ErrClosed
	}
	if _, ok := s.spaces[name]; !ok {
		s.spaces[name] = map[string]*cache.Response{}
	}
	return &namespace{store: s, name: name}, nil
}

func (s *Store) Namespaces(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cache.ErrClosed
	}
	out := make([]string, 0, len(s.spaces))
	for k := range s.spaces {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, cache.ErrClosed
	}
	_, ok := s.spaces[name]
	delete(s.spaces, name)
	return ok, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.spaces = map[string]map[string]*cache.Response{}
	s.mu.Unlock()
	return nil
}

// Len returns the entry count of a namespace, or -1 when it does not exist.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.spaces[name]
	if !ok {
		return -1
	}
	return len(m)
}

type namespace struct {
	store *Store
	name  string
}

func (n *namespace) Name() string { return n.name }

func (n *namespace) Get(_ context.Context, url string) (*cache.Response, bool, error) {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	if n.store.closed {
		return nil, false, cache.ErrClosed
	}
	resp, ok := n.store.spaces[n.name][url]
	if !ok {
		return nil, false, nil
	}
	return resp.Clone(), true, nil
}

func (n *namespace) Put(_ context.Context, url string, resp *cache.Response) error {
	if err := cache.CheckCacheable(resp); err != nil {
		return err
	}
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	if n.store.closed {
		return cache.ErrClosed
	}
	n.space()[url] = resp.Clone()
	return nil
}

func (n *namespace) PutAll(_ context.Context, entries []cache.Entry) error {
	for _, e := range entries {
		if err := cache.CheckCacheable(e.Response); err != nil {
			return err
		}
	}
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	if n.store.closed {
		return cache.ErrClosed
	}
	m := n.space()
	for _, e := range entries {
		m[e.URL] = e.Response.Clone()
	}
	return nil
}

// space returns the entry map, recreating a namespace deleted after this
// handle was opened. Callers hold the write lock.
func (n *namespace) space() map[string]*cache.Response {
	m, ok := n.store.spaces[n.name]
	if !ok {
		m = map[string]*cache.Response{}
		n.store.spaces[n.name] = m
	}
	return m
}
