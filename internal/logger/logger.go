// Package logger builds the zerolog logger and its slog bridge.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	// SampleN keeps one in N records; 0 or 1 keeps all.
	SampleN int
	// Cache is the primary namespace, stamped on every record.
	Cache     string
	Component string
}

type ctxKey string

const (
	ctxReqIDKey    ctxKey = "request_id"
	ctxStrategy    ctxKey = "strategy"
	ctxComponent   ctxKey = "component"
	ctxNamespaceID ctxKey = "namespace"
)

// contextFields are copied from the context onto every record, in this order.
var contextFields = []ctxKey{ctxReqIDKey, ctxComponent, ctxStrategy, ctxNamespaceID}

func withString(ctx context.Context, k ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

// WithRequestID tags ctx with reqID, generating one when it is empty.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return context.WithValue(ctx, ctxReqIDKey, reqID)
}

// WithStrategy names the caching strategy serving the request.
func WithStrategy(ctx context.Context, strategy string) context.Context {
	return withString(ctx, ctxStrategy, strategy)
}

// WithNamespace names the cache namespace an operation reads or writes.
func WithNamespace(ctx context.Context, ns string) context.Context {
	return withString(ctx, ctxNamespaceID, ns)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return withString(ctx, ctxComponent, component)
}

func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// ParseLevel maps LOG_LEVEL onto zerolog; unknown values mean info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"
	zerolog.DurationFieldUnit = time.Millisecond

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	// level is per logger; the global zerolog level is left alone
	base := zerolog.New(out).Level(ParseLevel(cfg.Level))
	if cfg.SampleN > 1 {
		base = base.Sample(&zerolog.BasicSampler{N: uint32(min(cfg.SampleN, math.MaxInt32))})
	}

	zc := base.With().Timestamp()
	if cfg.Cache != "" {
		zc = zc.Str("cache", cfg.Cache)
	}
	if cfg.Component != "" {
		zc = zc.Str("component", cfg.Component)
	}
	return zc.Logger()
}

// FromContext returns parent with the request-scoped fields of ctx applied.
// A nil parent discards everything.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	if parent == nil {
		l := zerolog.Nop()
		return &l
	}
	w := parent.With()
	for _, k := range contextFields {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			w = w.Str(string(k), s)
		}
	}
	l := w.Logger()
	return &l
}
