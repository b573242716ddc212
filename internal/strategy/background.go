package strategy

import (
	"context"
	"log/slog"
	"sync"
)

// Background runs work the caller does not wait for. Failures are logged and
// handed to onErr; Wait blocks until every started task has returned.
type Background struct {
	ctx    context.Context
	logger *slog.Logger
	onErr  func(name string, err error)
	wg     sync.WaitGroup
}

// NewBackground ties task lifetimes to ctx: cancelling it cancels running tasks.
func NewBackground(ctx context.Context, logger *slog.Logger, onErr func(name string, err error)) *Background {
	if logger == nil {
		logger = slog.Default()
	}
	return &Background{ctx: ctx, logger: logger, onErr: onErr}
}

// Go starts fn. The task keeps the values of parent (request id, strategy)
// but not its cancellation, so it outlives the request that spawned it.
func (b *Background) Go(parent context.Context, name string, fn func(ctx context.Context) error) {
	ctx, cancel := b.Detach(parent)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()

		if err := fn(ctx); err != nil {
			b.logger.WarnContext(ctx, "background task failed", "task", name, "err", err)
			if b.onErr != nil {
				b.onErr(name, err)
			}
		}
	}()
}

// Detach returns a context carrying the values of parent that is cancelled
// only by the Background's own context (process shutdown) or by cancel.
func (b *Background) Detach(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(b.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (b *Background) Wait() { b.wg.Wait() }
