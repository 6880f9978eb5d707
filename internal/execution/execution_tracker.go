package execution

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ExecutionTracker counts active graph runs so the server can drain them on shutdown
type ExecutionTracker struct {
	wg       sync.WaitGroup
	mu       sync.RWMutex
	draining bool
	active   atomic.Int64
}

// NewExecutionTracker creates a tracker
func NewExecutionTracker() *ExecutionTracker {
	return &ExecutionTracker{}
}

// Acquire registers a run. It returns false once draining has started.
func (t *ExecutionTracker) Acquire() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.draining {
		return false
	}
	t.wg.Add(1)
	t.active.Add(1)
	return true
}

// Release marks a run as finished
func (t *ExecutionTracker) Release() {
	t.active.Add(-1)
	t.wg.Done()
}

// Active returns the number of runs in flight
func (t *ExecutionTracker) Active() int64 {
	return t.active.Load()
}

// Drain rejects new runs and waits up to timeout for active ones.
// It returns false if the timeout was reached first.
func (t *ExecutionTracker) Drain(timeout time.Duration) bool {
	t.mu.Lock()
	t.draining = true
	t.mu.Unlock()

	log.Printf("🔄 [TRACKER] Draining %d active runs (timeout: %s)...", t.Active(), timeout)

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("✅ [TRACKER] All active runs completed")
		return true
	case <-time.After(timeout):
		log.Printf("⚠️ [TRACKER] Drain timeout reached, %d runs still active", t.Active())
		return false
	}
}

// IsDraining reports whether the tracker is shutting down
func (t *ExecutionTracker) IsDraining() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.draining
}
