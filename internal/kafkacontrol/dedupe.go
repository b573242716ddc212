package kafkacontrol

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// offsetDedupe remembers the highest offset applied per topic/partition so a
// redelivery after a rebalance does not run the same command twice.
type offsetDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, int64]
}

func newOffsetDedupe(size int) *offsetDedupe {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, int64](size)
	return &offsetDedupe{lru: c}
}

// shouldApply returns true if off is past the last applied offset for key.
func (d *offsetDedupe) shouldApply(key string, off int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && off <= last {
		return false
	}
	d.lru.Add(key, off)
	return true
}
