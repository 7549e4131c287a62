package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// taskRunner runs fire-and-forget side effects. Failures and panics are
// logged and never reach the caller.
type taskRunner struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

func newTaskRunner(timeout time.Duration) *taskRunner {
	return &taskRunner{timeout: timeout}
}

func (r *taskRunner) Go(name string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Printf("best-effort %s panicked: %v", name, recovered)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("best-effort %s failed: %v", name, err)
		}
	}()
}

func (r *taskRunner) Wait() {
	r.wg.Wait()
}
