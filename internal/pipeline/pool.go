package pipeline

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// pool runs units of work on at most n goroutines and gathers their results
// in completion order. Units report failures in their result, never as a
// group error, so one failing unit does not cancel the others.
type pool[R any] struct {
	g       errgroup.Group
	mu      sync.Mutex
	results []R
}

func newPool[R any](workers int) *pool[R] {
	p := &pool[R]{}
	p.g.SetLimit(max(1, workers))
	return p
}

// Go blocks while all workers are busy.
func (p *pool[R]) Go(fn func() R) {
	p.g.Go(func() error {
		r := fn()
		p.mu.Lock()
		p.results = append(p.results, r)
		p.mu.Unlock()
		return nil
	})
}

// Wait blocks until every submitted unit has finished.
func (p *pool[R]) Wait() []R {
	_ = p.g.Wait()
	return p.results
}
