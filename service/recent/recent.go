// Package recent keeps a short most-recently-used list of mint addresses.
package recent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// StorageKey is the fixed key the list is persisted under.
const StorageKey = "mintdash.recent_mints"

// Capacity is the maximum number of entries kept.
const Capacity = 5

// Backend persists the list.
type Backend interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, mints []string) error
}

// List is a bounded, deduplicated, most-recent-first list of mint addresses.
type List struct {
	backend Backend
	logger  *slog.Logger

	mu sync.Mutex
}

// New creates a List over backend.
func New(backend Backend, logger *slog.Logger) *List {
	return &List{
		backend: backend,
		logger:  logger,
	}
}

// Entries returns the stored list, most recent first.
func (l *List) Entries(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mints, err := l.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load recent mints: %w", err)
	}
	return normalize(mints), nil
}

// Add moves mint to the front, dropping the oldest entry beyond Capacity.
func (l *List) Add(ctx context.Context, mint string) ([]string, error) {
	if mint == "" {
		return nil, fmt.Errorf("empty mint address")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.backend.Load(ctx)
	if err != nil {
		// An unreadable list is replaced rather than blocking the insert.
		l.logger.WarnContext(ctx, "recent mints unreadable, starting fresh", "error", err)
		current = nil
	}

	updated := Push(normalize(current), mint)
	if err := l.backend.Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("save recent mints: %w", err)
	}
	return updated, nil
}

// Push returns a new list with mint at the front, any earlier occurrence
// removed, and at most Capacity entries.
func Push(list []string, mint string) []string {
	out := make([]string, 0, Capacity)
	out = append(out, mint)
	for _, m := range list {
		if len(out) == Capacity {
			break
		}
		if m == mint || m == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// normalize drops blanks and duplicates and enforces Capacity on data
// written by something other than Push.
func normalize(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, min(len(list), Capacity))
	for _, m := range list {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
		if len(out) == Capacity {
			break
		}
	}
	return out
}
