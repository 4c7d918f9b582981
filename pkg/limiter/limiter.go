// Package limiter caps how often heap dumps are created with a sliding
// window over the times of past dumps.
package limiter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"GoMemoryAssistant/pkg/threshold"
)

// History stores the times of past triggers.
type History interface {
	// CountSince counts the triggers strictly after since.
	CountSince(ctx context.Context, since time.Time) (int, error)
	// Record adds a trigger at the given time and forgets every trigger at or
	// before at minus window.
	Record(ctx context.Context, at time.Time, window time.Duration) error
	// Reserve forgets every trigger at or before at minus window, then adds a
	// trigger at at if fewer than max remain. Both steps are one atomic
	// operation for every process sharing the history.
	Reserve(ctx context.Context, at time.Time, window time.Duration, max int) (bool, error)
	Close() error
}

// Limiter decides whether another trigger fits the configured frequency.
// Without a frequency every trigger is allowed and nothing is stored.
type Limiter struct {
	mu      sync.Mutex
	freq    *threshold.Frequency
	history History
}

// New creates a limiter for freq. A nil history keeps the triggers in memory.
func New(freq *threshold.Frequency, history History) *Limiter {
	if history == nil {
		history = NewMemoryHistory()
	}
	return &Limiter{freq: freq, history: history}
}

// Frequency returns the configured frequency, or nil.
func (l *Limiter) Frequency() *threshold.Frequency {
	return l.freq
}

// CanTrigger reports whether a trigger at now would stay within the
// frequency, without reserving it. A history that cannot be read denies the
// trigger.
func (l *Limiter) CanTrigger(ctx context.Context, now time.Time) (bool, error) {
	if l.freq == nil {
		return true, nil
	}

	count, err := l.history.CountSince(ctx, now.Add(-l.freq.Window))
	if err != nil {
		return false, fmt.Errorf("read trigger history: %w", err)
	}
	return count < l.freq.MaxCount, nil
}

// TryTrigger reserves a trigger at now if it stays within the frequency. A
// reserved trigger counts against the budget whether or not the heap dump
// succeeds. A history that cannot be read or written denies the trigger.
func (l *Limiter) TryTrigger(ctx context.Context, now time.Time) (bool, error) {
	if l.freq == nil {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := l.history.Reserve(ctx, now, l.freq.Window, l.freq.MaxCount)
	if err != nil {
		return false, fmt.Errorf("reserve trigger: %w", err)
	}
	return ok, nil
}

// RecordTrigger stores a trigger at now without checking the budget.
func (l *Limiter) RecordTrigger(ctx context.Context, now time.Time) error {
	if l.freq == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.history.Record(ctx, now, l.freq.Window); err != nil {
		return fmt.Errorf("record trigger: %w", err)
	}
	return nil
}

// Close releases the history.
func (l *Limiter) Close() error {
	return l.history.Close()
}

// MemoryHistory keeps trigger times in an ascending slice.
type MemoryHistory struct {
	mu    sync.Mutex
	times []time.Time
}

// NewMemoryHistory creates an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) CountSince(_ context.Context, since time.Time) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := sort.Search(len(h.times), func(i int) bool { return h.times[i].After(since) })
	return len(h.times) - i, nil
}

func (h *MemoryHistory) Record(_ context.Context, at time.Time, window time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.insert(at)
	h.prune(at.Add(-window))
	return nil
}

func (h *MemoryHistory) Reserve(_ context.Context, at time.Time, window time.Duration, max int) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.prune(at.Add(-window))
	if len(h.times) >= max {
		return false, nil
	}
	h.insert(at)
	return true, nil
}

func (h *MemoryHistory) insert(at time.Time) {
	i := sort.Search(len(h.times), func(i int) bool { return h.times[i].After(at) })
	h.times = append(h.times, time.Time{})
	copy(h.times[i+1:], h.times[i:])
	h.times[i] = at
}

// prune drops every time at or before cutoff.
func (h *MemoryHistory) prune(cutoff time.Time) {
	drop := sort.Search(len(h.times), func(i int) bool { return h.times[i].After(cutoff) })
	h.times = append(h.times[:0], h.times[drop:]...)
}

// Times returns a copy of the stored trigger times.
func (h *MemoryHistory) Times() []time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Time(nil), h.times...)
}

func (h *MemoryHistory) Close() error { return nil }
