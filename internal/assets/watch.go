package assets

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Source hands out the current manifest. Reloads are picked up by the next
// install or precache; a running batch keeps the manifest it started with.
type Source struct {
	path   string
	logger *slog.Logger
	cur    atomic.Pointer[Manifest]
}

func NewSource(path string, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Source{path: path, logger: logger}
	s.cur.Store(&m)
	return s, nil
}

// Static wraps a fixed manifest.
func Static(m Manifest) *Source {
	s := &Source{logger: slog.Default()}
	s.cur.Store(&m)
	return s
}

func (s *Source) Manifest() Manifest { return *s.cur.Load() }

// Reload re-reads the manifest file. On error the previous manifest stays active.
func (s *Source) Reload() error {
	m, err := Load(s.path)
	if err != nil {
		return err
	}
	s.cur.Store(&m)
	s.logger.Info("asset manifest reloaded",
		"path", s.path, "models", len(m.ModelIDs), "core_files", len(m.CoreFiles))
	return nil
}

// Watch reloads the manifest whenever its file changes, until ctx is done.
// The parent directory is watched so editor rename-on-save is seen.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("manifest watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	target := filepath.Clean(s.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %q: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("asset manifest reload failed", "path", s.path, "err", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("manifest watcher error", "err", err)
		}
	}
}
