// Package fetch deduplicates source downloads within a session.
//
// Several recipes, or several architecture instances of one recipe, may share
// an upstream source location. A [Guard] serializes fetches per location and
// remembers which locations were already fetched, so each location is
// fetched at most once per session regardless of interleaving.
//
// Example usage:
//
//	var g fetch.Guard
//	err := g.Do(ctx, url, func(ctx context.Context) error {
//	    return download(ctx, url, dest)
//	})
package fetch

import (
	"context"
	"log/slog"
	"sync"
)

// Serializes fetches per source location.
//
// The zero value is ready to use.
type Guard struct {
	mu      sync.Mutex             // Protects locks and fetched.
	locks   map[string]*sync.Mutex // Per-location locks.
	fetched map[string]bool        // Locations fetched this session.
}

// Runs fn for location unless it already succeeded this session.
//
// Concurrent callers for the same location wait for each other. A failed
// fetch is not remembered, so the next caller tries again.
func (g *Guard) Do(ctx context.Context, location string, fn func(ctx context.Context) error) error {
	lock := g.lock(location)
	lock.Lock()
	defer lock.Unlock()

	if g.done(location) {
		slog.Debug("already fetched", "location", location)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	g.fetched[location] = true
	g.mu.Unlock()
	return nil
}

// Forgets that location was fetched, e.g. after its download was wiped.
func (g *Guard) Forget(location string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.fetched, location)
}

// Returns the lock for location, creating it if needed.
func (g *Guard) lock(location string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.locks == nil {
		g.locks = make(map[string]*sync.Mutex)
		g.fetched = make(map[string]bool)
	}
	l, ok := g.locks[location]
	if !ok {
		l = &sync.Mutex{}
		g.locks[location] = l
	}
	return l
}

// Whether location was fetched this session.
func (g *Guard) done(location string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetched[location]
}
