package search

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"TrackHound/logger"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// Pool runs fire-and-forget work (history rows, suggestion bumps,
// archival uploads) on a fixed set of workers behind a bounded queue.
// When the queue is full the job is dropped and counted; the search
// path never blocks on it.
type Pool struct {
	queue     chan func()
	wg        sync.WaitGroup
	dropped   atomic.Int64
	closeOnce sync.Once
	log       *zap.Logger
}

func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	p := &Pool{
		queue: make(chan func(), queueSize),
		log:   logger.Named("workers"),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for job := range p.queue {
		p.invoke(job)
	}
}

// invoke isolates one job so a panic cannot take a worker down.
func (p *Pool) invoke(job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("background job panicked", logger.Any("panic", r))
		}
	}()
	job()
}

// Submit enqueues a job, reporting false when the queue is full.
// Submitting after Close panics; the pool must outlive every producer.
func (p *Pool) Submit(job func()) bool {
	select {
	case p.queue <- job:
		return true
	default:
		n := p.dropped.Add(1)
		p.log.Warn("background queue full, dropping job", logger.Int64("totalDropped", n))
		return false
	}
}

// Dropped reports how many jobs were rejected since startup.
func (p *Pool) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops intake, drains the queue and waits for the workers.
// Safe to call more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
	})
	p.wg.Wait()
}
