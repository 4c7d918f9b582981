// Package health samples the memory pools watched by the assistant.
package health

import (
	"context"
	"errors"
	"time"
)

// Pool names. The set is fixed; there is no discovery.
const (
	PoolHeap     = "heap"
	PoolStack    = "stack"
	PoolMetadata = "metadata"
	PoolTotal    = "total"
)

// Pools lists every known pool in evaluation order.
var Pools = []string{PoolHeap, PoolStack, PoolMetadata, PoolTotal}

// KnownPool reports whether name is one of Pools.
func KnownPool(name string) bool {
	for _, p := range Pools {
		if p == name {
			return true
		}
	}
	return false
}

var (
	// ErrUnrecoverable marks failures after which monitoring must stop for
	// good. Heap dump writes that run out of disk space or memory are wrapped
	// with it; sources may return it for their own fatal failures.
	ErrUnrecoverable = errors.New("unrecoverable failure")

	// ErrUnknownPool is returned when a source does not know the requested pool.
	ErrUnknownPool = errors.New("unknown memory pool")
)

// Usage is a point-in-time reading of one memory pool.
type Usage struct {
	Pool string
	Used int64 // bytes
	Max  int64 // bytes; 0 or less when the pool has no defined maximum
	Time time.Time
}

// Ratio is the used share of Max in percent, or 0 when Max is undefined.
func (u Usage) Ratio() float64 {
	if u.Max <= 0 {
		return 0
	}
	return float64(u.Used) * 100 / float64(u.Max)
}

// Source is the interface for any component providing pool usage.
type Source interface {
	// Sample reads the current usage of pool.
	Sample(ctx context.Context, pool string) (Usage, error)
}
