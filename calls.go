package redpipe

import (
	"context"
	"sync"

	"github.com/pior/redpipe/resp"
)

// CallID identifies one waiting call. The version makes stale handles
// detectable: completing, cancelling or failing a call advances the
// version, so a later lock attempt with the old handle fails cleanly
// instead of touching state that now belongs to someone else.
type CallID struct {
	index   uint64
	version uint32
}

// call holds the per-call state a waiter blocks on. Its mutex serializes
// the dispatcher against cancellation and timeout; whichever resolves the
// call first wins, and the loser's lock attempt fails with ErrCallInvalid.
type call struct {
	mu       sync.Mutex
	version  uint32
	resolved bool
	replies  *resp.ReplyBatch
	err      error
	done     chan struct{}
}

// callTable is the directory of in-flight calls for one connection. Its
// own mutex guards only handle registration and lookup; it is never held
// while a call is being resolved, and it is distinct from the pipeline
// queue's lock so that receive-path latency is not inflated by call
// bookkeeping.
type callTable struct {
	mu    sync.Mutex
	next  uint64
	calls map[uint64]*call
}

func newCallTable() *callTable {
	return &callTable{calls: make(map[uint64]*call)}
}

// register creates a new call and returns its handle.
func (t *callTable) register() CallID {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	c := &call{version: 1, done: make(chan struct{})}
	t.calls[t.next] = c
	return CallID{index: t.next, version: 1}
}

// lock acquires the call identified by id. Fails with ErrCallInvalid if
// the handle is stale or the call was already resolved. On success the
// caller owns the call's mutex and must resolve or unlock it.
func (t *callTable) lock(id CallID) (*call, error) {
	t.mu.Lock()
	c, ok := t.calls[id.index]
	t.mu.Unlock()
	if !ok {
		return nil, ErrCallInvalid
	}

	c.mu.Lock()
	if c.version != id.version || c.resolved {
		c.mu.Unlock()
		return nil, ErrCallInvalid
	}
	return c, nil
}

// resolve records the call's outcome and wakes the waiter. Must be called
// with the call locked via lock; it advances the version and releases the
// lock. Resolution happens at most once per call.
func (t *callTable) resolve(c *call, replies *resp.ReplyBatch, err error) {
	c.replies = replies
	c.err = err
	c.resolved = true
	c.version++
	close(c.done)
	c.mu.Unlock()
}

// fail resolves the call with err, unless it was already resolved.
// Returns ErrCallInvalid in that case, which callers treat as benign.
func (t *callTable) fail(id CallID, err error) error {
	c, lockErr := t.lock(id)
	if lockErr != nil {
		return lockErr
	}
	t.resolve(c, nil, err)
	return nil
}

// wait blocks until the call resolves or ctx ends. On ctx expiry the call
// is failed with the ctx error; if resolution won the race, its outcome
// is returned instead. The call is removed from the table either way.
func (t *callTable) wait(ctx context.Context, id CallID) (*resp.ReplyBatch, error) {
	t.mu.Lock()
	c, ok := t.calls[id.index]
	t.mu.Unlock()
	if !ok {
		return nil, ErrCallInvalid
	}
	defer t.remove(id)

	select {
	case <-c.done:
	case <-ctx.Done():
		if t.fail(id, ctx.Err()) == nil {
			return nil, ctx.Err()
		}
		// A dispatch slipped in before the cancellation took hold.
		<-c.done
	}

	c.mu.Lock()
	replies, err := c.replies, c.err
	c.mu.Unlock()
	return replies, err
}

func (t *callTable) remove(id CallID) {
	t.mu.Lock()
	delete(t.calls, id.index)
	t.mu.Unlock()
}

// pending returns the number of registered, unremoved calls.
func (t *callTable) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
