package proxy

import (
	"context"
	"sync"
)

// taskSet tracks the goroutines handling accepted connections.
//
// Finished tasks stay tracked until Reap removes them; Wait covers every task
// ever started, reaped or not.
type taskSet struct {
	mu    sync.Mutex
	next  uint64
	tasks map[uint64]*task
	wg    sync.WaitGroup
}

type task struct {
	conn *ownedConn
	done chan struct{}
}

func newTaskSet() *taskSet {
	return &taskSet{tasks: make(map[uint64]*task)}
}

// Go runs fn on its own goroutine and tracks it together with conn.
func (ts *taskSet) Go(conn *ownedConn, fn func()) {
	t := &task{conn: conn, done: make(chan struct{})}

	ts.mu.Lock()
	id := ts.next
	ts.next++
	ts.tasks[id] = t
	ts.wg.Add(1)
	ts.mu.Unlock()

	go func() {
		defer ts.wg.Done()
		defer close(t.done)
		fn()
	}()
}

// Reap drops finished tasks and returns how many were removed.
func (ts *taskSet) Reap() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	n := 0
	for id, t := range ts.tasks {
		select {
		case <-t.done:
			delete(ts.tasks, id)
			n++
		default:
		}
	}
	return n
}

// Len returns the number of tracked tasks, including finished ones not yet
// reaped.
func (ts *taskSet) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tasks)
}

// Wait blocks until every task has returned or ctx ends.
func (ts *taskSet) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		ts.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseAll closes the client connection of every unfinished task.
func (ts *taskSet) CloseAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for _, t := range ts.tasks {
		select {
		case <-t.done:
		default:
			_ = t.conn.Close()
		}
	}
}
