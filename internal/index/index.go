// Package index orchestrates the I/O-bound phase that produces one
// reference store per physical source. Indexing is parallel; the
// result slice keeps the caller's source order, which downstream
// combining depends on.
package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/kk-code-lab/virtref/internal/refs"
)

// Indexer produces the reference store describing one physical source.
type Indexer interface {
	Index(ctx context.Context, source string) (*refs.Store, error)
}

// DefaultWorkers bounds the pool when the caller passes workers <= 0.
const DefaultWorkers = 4

// Build indexes every source through a bounded worker pool and returns
// the stores at the same positions as their sources. The first error
// cancels the remaining work and is returned; no partial result
// accompanies an error.
func Build(ctx context.Context, ix Indexer, sources []string, workers int) ([]*refs.Store, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(sources) {
		workers = len(sources)
	}
	out := make([]*refs.Store, len(sources))
	if len(sources) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type job struct {
		pos    int
		source string
	}
	jobs := make(chan job)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				st, err := ix.Index(ctx, j.source)
				if err != nil {
					fail(fmt.Errorf("index: %s: %w", j.source, err))
					continue
				}
				out[j.pos] = st
			}
		}()
	}

feed:
	for i, src := range sources {
		select {
		case jobs <- job{pos: i, source: src}:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
