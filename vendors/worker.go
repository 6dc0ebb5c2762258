package vendors

import (
	"context"
	"errors"
	"sync"

	"github.com/xiaoyuanzhu-com/omnitool/log"
)

const codecQueueSize = 32

var ErrCodecStopped = errors.New("image codec stopped")

type codecJob struct {
	run    func() ([]byte, error)
	result chan codecResult
}

type codecResult struct {
	data []byte
	err  error
}

// workerPool runs heavy encodes off the submitting goroutine so a burst of
// submissions cannot spawn unbounded concurrent encoders.
type workerPool struct {
	queue chan codecJob
	wg    sync.WaitGroup
	once  sync.Once

	// mu guards closed; submitters hold it for reading while queueing.
	mu     sync.RWMutex
	closed bool
}

func newWorkerPool(n int) *workerPool {
	p := &workerPool{queue: make(chan codecJob, codecQueueSize)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// run reads jobs from the queue until the channel is closed.
func (p *workerPool) run() {
	defer p.wg.Done()
	for job := range p.queue {
		data, err := job.run()
		job.result <- codecResult{data: data, err: err}
	}
}

func (p *workerPool) submit(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	job := codecJob{run: fn, result: make(chan codecResult, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrCodecStopped
	}
	select {
	case p.queue <- job:
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, ctx.Err()
	}
	p.mu.RUnlock()

	select {
	case r := <-job.result:
		return r.data, r.err
	case <-ctx.Done():
		log.Debug().Msg("re-encode abandoned by caller")
		return nil, ctx.Err()
	}
}

func (p *workerPool) stop() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
		// Jobs already queued still run.
		p.wg.Wait()
	})
}
