// Package swarm runs deployment tasks on a bounded worker pool. The cap is
// the configured maximum; an AIMD controller backs the pool off below the
// cap when the platform throttles and creeps back up afterwards.
package swarm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/smithy-go"
)

// Task is one unit of work. Errors are reported back through the tracker,
// never lost; a failed task does not stop its siblings.
type Task func(ctx context.Context) error

// Engine manages the worker pool and concurrency.
type Engine struct {
	aimd      *AIMD
	tasks     chan Task
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	quit      chan struct{}
	active    int
	mu        sync.Mutex
	stats     Stats
	throttled func(error) bool
}

// Stats holds runtime statistics for the engine.
type Stats struct {
	ActiveWorkers  int
	Concurrency    int
	TasksCompleted int64
}

// NewEngine creates an engine capped at max concurrent workers.
func NewEngine(max int) *Engine {
	if max < 1 {
		max = 1
	}
	return &Engine{
		aimd:      NewAIMD(max, 1, max),
		tasks:     make(chan Task, 256),
		quit:      make(chan struct{}),
		throttled: isThrottle,
	}
}

// Start begins the worker loop.
func (e *Engine) Start(ctx context.Context) {
	go e.loop(ctx)
}

// Submit adds a task to the queue. Drain waits for it.
func (e *Engine) Submit(t Task) {
	e.pending.Add(1)
	e.tasks <- t
}

// Drain blocks until every submitted task has finished. When ctx is
// cancelled the workers stop pulling from the queue, so Drain abandons the
// tasks still queued instead of waiting on them forever; tasks already in
// flight finish on their own.
func (e *Engine) Drain(ctx context.Context) {
	finished := make(chan struct{})
	go func() {
		e.pending.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return
	case <-ctx.Done():
	}

	for {
		select {
		case <-finished:
			return
		case <-e.tasks:
			e.pending.Done()
		}
	}
}

// Stop shuts the pool down. Call after Drain.
func (e *Engine) Stop() {
	close(e.quit)
	e.wg.Wait()
}

// GetStats returns current engine stats.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		ActiveWorkers:  e.active,
		Concurrency:    e.aimd.GetConcurrency(),
		TasksCompleted: e.stats.TasksCompleted,
	}
}

func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.quit:
			return
		case <-ticker.C:
			// Grow toward the AIMD target; shrinking happens in the
			// workers themselves when they notice they are surplus.
			target := e.aimd.GetConcurrency()
			current := e.activeCount()

			for i := current; i < target; i++ {
				e.wg.Add(1)
				go e.worker(ctx)
			}
		}
	}
}

func (e *Engine) activeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) worker(ctx context.Context) {
	e.mu.Lock()
	e.active++
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
		e.wg.Done()
	}()

	for {
		if e.activeCount() > e.aimd.GetConcurrency() {
			return
		}

		// Cancellation wins over a ready task: once the run is aborted no
		// queued work may start, Drain discards it instead.
		select {
		case <-ctx.Done():
			return
		case <-e.quit:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-e.quit:
			return
		case task := <-e.tasks:
			start := time.Now()
			err := task(ctx)
			latency := time.Since(start)

			e.aimd.Feedback(latency, err != nil && e.throttled(err))

			e.mu.Lock()
			e.stats.TasksCompleted++
			e.mu.Unlock()
			e.pending.Done()
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// isThrottle detects platform rate limiting in a task error chain.
func isThrottle(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "TooManyRequestsException", "ThrottlingException", "Throttling":
		return true
	}
	return false
}
