package scanner

import (
	"sync"
)

// workerPool drains a job queue with a fixed number of goroutines
type workerPool struct {
	workers int
	jobs    chan Job
	wg      sync.WaitGroup
	handle  func(id int, job Job)
}

func newWorkerPool(workers int, handle func(id int, job Job)) *workerPool {
	if workers < 1 {
		workers = 1
	}
	return &workerPool{
		workers: workers,
		jobs:    make(chan Job, workers*2),
		handle:  handle,
	}
}

// Start launches the worker goroutines
func (p *workerPool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *workerPool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		p.handle(id, job)
	}
}

// AddJob queues a job, blocking while the queue is full
func (p *workerPool) AddJob(job Job) {
	p.jobs <- job
}

// Wait closes the queue and waits for all workers to finish
func (p *workerPool) Wait() {
	close(p.jobs)
	p.wg.Wait()
}
