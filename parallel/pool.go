package parallel

import (
	"runtime"
	"sync"
)

type (
	WorkerFunc func(func())
	WaitFunc   func(done bool)
	CancelFunc func()
)

// Pool runs submitted jobs on a fixed set of goroutines. With a single
// worker, Do runs the job inline and Wait is a no-op.
type Pool struct {
	wg      sync.WaitGroup
	workers int
	Do      WorkerFunc
	Wait    WaitFunc
	Cancel  CancelFunc
}

func Start(numWorkers int) *Pool {
	if numWorkers < 1 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	pool := &Pool{
		workers: numWorkers,
		Do: func(f func()) {
			f()
		},
		Wait:   func(bool) {},
		Cancel: func() {},
	}

	if numWorkers > 1 {
		workChan := make(chan func(), numWorkers)

		var jobs sync.WaitGroup
		for range numWorkers {
			pool.wg.Go(func() {
				for f := range workChan {
					f()
					jobs.Done()
				}
			})
		}

		pool.Do = func(f func()) {
			jobs.Add(1)
			workChan <- f
		}

		cancel := sync.OnceFunc(func() { close(workChan) })
		pool.Cancel = cancel
		pool.Wait = func(done bool) {
			if done {
				cancel()
				pool.wg.Wait()
				return
			}
			jobs.Wait()
		}
	}

	return pool
}

func (p *Pool) Workers() int {
	return p.workers
}

// Rows splits [0, height) into contiguous bands, one or more per worker,
// runs fn on each band and returns once every band is done. The pool stays
// usable afterwards.
func (p *Pool) Rows(height int, fn func(y0, y1 int)) {
	if height <= 0 {
		return
	}

	bands := min(p.workers, height)
	size := (height + bands - 1) / bands
	for y0 := 0; y0 < height; y0 += size {
		y1 := min(y0+size, height)
		p.Do(func() {
			fn(y0, y1)
		})
	}
	p.Wait(false)
}

// Rows is a one-shot helper: it starts a pool of numWorkers, bands height
// rows over it and shuts the pool down before returning.
func Rows(numWorkers, height int, fn func(y0, y1 int)) {
	pool := Start(numWorkers)
	pool.Rows(height, fn)
	pool.Wait(true)
}
