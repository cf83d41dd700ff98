package executor

import (
	"runtime"
	"sync"
)

// Pool bounds the number of concurrently running workers
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPool creates a pool with the given worker count; <= 0 means runtime.NumCPU()
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{sem: make(chan struct{}, workers)}
}

// Size returns the worker limit
func (p *Pool) Size() int {
	return cap(p.sem)
}

// Go runs fn on a worker. It returns immediately; fn waits for a free slot.
func (p *Pool) Go(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		fn()
	}()
}

// Wait blocks until every submitted function returned
func (p *Pool) Wait() {
	p.wg.Wait()
}

// spawn runs fn on p, or on a fresh goroutine when p is nil
func spawn(p *Pool, fn func()) {
	if p == nil {
		go fn()
		return
	}
	p.Go(fn)
}
