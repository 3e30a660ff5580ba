package printer

import (
	"context"
	"sync"
)

// Task tracks a submitted job. It is completed exactly once.
type Task struct {
	id   string
	done chan struct{}

	mu        sync.Mutex
	result    Result
	completed bool
	callbacks []func(Result)
}

func newTask(id string) *Task {
	return &Task{id: id, done: make(chan struct{})}
}

// ID returns the job ID.
func (t *Task) ID() string { return t.id }

// Done is closed when the result is available.
func (t *Task) Done() <-chan struct{} { return t.done }

// Result returns the result and whether the task has completed.
func (t *Task) Result() (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.completed
}

// Wait blocks until the task completes or ctx ends. Giving up on the wait
// does not cancel the job; cancel the context passed to Submit for that.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		r, _ := t.Result()
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// OnComplete registers fn to receive the result. If the task has already
// completed fn runs immediately on the calling goroutine.
func (t *Task) OnComplete(fn func(Result)) {
	t.mu.Lock()
	if !t.completed {
		t.callbacks = append(t.callbacks, fn)
		t.mu.Unlock()
		return
	}
	r := t.result
	t.mu.Unlock()
	fn(r)
}

// complete stores r and notifies waiters. Later calls are ignored.
func (t *Task) complete(r Result) bool {
	t.mu.Lock()
	if t.completed {
		t.mu.Unlock()
		return false
	}
	r.JobID = t.id
	t.result = r
	t.completed = true
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	close(t.done)
	for _, fn := range callbacks {
		fn(r)
	}
	return true
}
