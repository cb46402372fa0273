// Package enrich joins option-chain rows with margin and premium data.
package enrich

import (
	"context"
	"sync"
)

// workerPool runs row tasks on a bounded set of goroutines. Submission
// blocks when all workers are busy, which keeps the number of in-flight
// upstream calls at the worker count.
type workerPool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func newWorkerPool(workers int) *workerPool {
	if workers < 1 {
		workers = 1
	}
	p := &workerPool{tasks: make(chan func())}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// submit enqueues a task, giving up if the context is cancelled first.
func (p *workerPool) submit(ctx context.Context, task func()) bool {
	select {
	case p.tasks <- task:
		return true
	case <-ctx.Done():
		return false
	}
}

// stop closes intake and waits for running tasks to finish.
func (p *workerPool) stop() {
	close(p.tasks)
	p.wg.Wait()
}
