package cache

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/mohammed-shakir/offline-asset-cache/internal/core/config"
)

type Factory func(cfg config.Config, logger *slog.Logger) (Store, error)

var reg = map[string]Factory{}

// Register makes a store driver available by name. Drivers call it from init.
func Register(name string, f Factory) {
	reg[name] = f
}

// Drivers lists the registered driver names, sorted.
func Drivers() []string {
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New builds the named driver, falling back to the in-memory store for unknown names.
func New(name string, cfg config.Config, logger *slog.Logger) (Store, error) {
	if f, ok := reg[name]; ok {
		return f(cfg, logger)
	}
	if f, ok := reg["memory"]; ok {
		logger.Warn("unknown store driver; falling back to memory", "driver", name, "known", Drivers())
		return f(cfg, logger)
	}
	return nil, fmt.Errorf("no factory for store driver %q (registered: %v) and no memory driver", name, Drivers())
}
