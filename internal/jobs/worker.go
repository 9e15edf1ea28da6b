// Package jobs runs the background queue that retries document embeds
// which did not finish inline.
package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker polls a JobProcessor on a fixed interval
type Worker struct {
	processor    JobProcessor
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
	stopOnce     sync.Once
}

// NewWorker creates a new Worker instance
func NewWorker(processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		processor:    processor,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start runs one pass immediately, then polls until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	// Stop also interrupts a pass in flight
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Printf("[worker] started with poll interval: %v", w.pollInterval)
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("[worker] stopped: context cancelled")
			return
		case <-w.stopChan:
			log.Println("[worker] stopped: stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Printf("[worker] error processing jobs: %v", err)
	}
}

// Stop signals the loop to exit and waits for it. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
	log.Println("[worker] shutdown complete")
}
