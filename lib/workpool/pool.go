// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workpool

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Submit after Join has been called.
var ErrClosed = errors.New("work pool is closed")

// Pool is a fixed set of worker goroutines fed by a bounded queue.
type Pool struct {
	workers int
	tasks   chan func()
	logger  *slog.Logger

	// mu serialises Submit against Join so a task is never sent on a
	// closed channel.
	mu     sync.RWMutex
	closed bool

	wg        sync.WaitGroup
	busy      atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
}

// New starts workers goroutines. queueDepth is the number of tasks that
// may wait for a worker before Submit blocks; zero means an unbuffered
// handoff. Non-positive workers selects GOMAXPROCS.
func New(workers, queueDepth int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if queueDepth < 0 {
		queueDepth = 0
	}
	pool := &Pool{
		workers: workers,
		tasks:   make(chan func(), queueDepth),
		logger:  logger,
	}
	pool.wg.Add(workers)
	for id := 0; id < workers; id++ {
		go pool.worker(id)
	}
	return pool
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task func()) {
	p.busy.Add(1)
	defer func() {
		if recovered := recover(); recovered != nil {
			p.panicked.Add(1)
			p.logger.Error("work unit panicked",
				"worker", id,
				"panic", fmt.Sprint(recovered),
				"stack", string(debug.Stack()),
			)
		}
		p.busy.Add(-1)
		p.completed.Add(1)
	}()
	task()
}

// Submit queues task, blocking while the queue is full.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	p.submitted.Add(1)
	p.tasks <- task
	return nil
}

// Join stops accepting tasks and blocks until every submitted task has
// finished. Join is idempotent.
func (p *Pool) Join() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int { return int(p.busy.Load()) }

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int { return len(p.tasks) }

// Stats is a snapshot of the pool counters.
type Stats struct {
	Submitted int64
	Completed int64
	Panicked  int64
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
}
