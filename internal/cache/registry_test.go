package cache_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
	_ "github.com/mohammed-shakir/offline-asset-cache/internal/cache/memstore"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/config"
)

func TestNew_UnknownDriverFallsBackToMemory(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))

	s, err := cache.New("etcd", config.Config{}, l)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	out := buf.String()
	if !strings.Contains(out, "driver=etcd") || !strings.Contains(out, "memory") {
		t.Fatalf("warning should name the driver and the known ones: %s", out)
	}
}

func TestDrivers_Sorted(t *testing.T) {
	got := cache.Drivers()
	if len(got) == 0 || got[0] != "memory" {
		t.Fatalf("drivers=%v", got)
	}
}
