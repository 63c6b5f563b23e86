package loadgen

import "sync"

// Pool is a bounded worker pool. Each traffic-generation phase creates and
// tears down its own pool; there is no global pool. Submit blocks until a
// worker is free, which keeps the coordinator from outrunning the configured
// concurrency.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

// NewPool starts the given number of workers.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{tasks: make(chan func())}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Submit hands one task to the pool, blocking until a worker accepts it.
func (p *Pool) Submit(task func()) {
	p.tasks <- task
}

// Close stops accepting work and waits for all submitted tasks to finish.
func (p *Pool) Close() {
	close(p.tasks)
	p.wg.Wait()
}
