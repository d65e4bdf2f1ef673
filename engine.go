package redpipe

import (
	"errors"

	"go.uber.org/zap"

	"github.com/pior/redpipe/resp"
)

// engine is the per-connection protocol core: it owns the pipeline queue,
// the continuation state, and dispatching of completed batches. Exactly
// one goroutine feeds it inbound bytes; any number of goroutines push
// entries through registerBatch.
//
// parsing retains the partially decoded reply batch for the entry at the
// head of the pipeline, across socket reads. The handle and expected
// count live in the entry given back to the queue, so the partial batch
// is the only state carried here. At most one exists per connection; it
// is owned by the receive path and needs no lock.
type engine struct {
	queue   pipelineQueue
	table   *callTable
	parsing *resp.ReplyBatch
	stats   *engineStatsCollector
	log     *zap.Logger
	verbose bool
}

func newEngine(table *callTable, log *zap.Logger, verbose bool) *engine {
	return &engine{
		table:   table,
		stats:   newEngineStatsCollector(),
		log:     log,
		verbose: verbose,
	}
}

// registerBatch records a sent batch: count replies expected, owed to id.
// Must happen before the batch's bytes reach the wire, or a fast reply
// could arrive with no entry to match it. Returns false if the engine was
// already torn down; the caller fails the call itself.
func (e *engine) registerBatch(id CallID, count int) bool {
	if !e.queue.push(pendingEntry{id: id, count: count}) {
		return false
	}
	e.stats.recordBatchSent(count)
	return true
}

// feed consumes inbound bytes, dispatching every batch they complete.
// It returns how many bytes were consumed; the caller keeps the rest and
// feeds them again once more data arrives.
//
// Errors: ErrNotEnoughData means the head batch is still incomplete
// (progress so far is retained in the continuation). ErrTryOtherProtocol
// means bytes arrived with no pending batch to match. A *resp.ParseError
// means the stream is corrupt and the connection must be torn down.
func (e *engine) feed(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, ErrNotEnoughData
	}

	total := 0
	for total < len(data) {
		entry, ok := e.queue.pop()
		if !ok {
			e.log.Warn("inbound bytes with no pending batch",
				zap.Int("bytes", len(data)-total))
			return total, ErrTryOtherProtocol
		}

		batch := e.parsing
		if batch == nil {
			batch = new(resp.ReplyBatch)
		}

		n, complete, err := resp.DecodeBatch(data[total:], batch, entry.count)
		total += n
		if err != nil {
			// Corrupt stream: the entry cannot be satisfied anymore.
			e.parsing = nil
			e.dispatchError(entry, err)
			return total, err
		}
		if !complete {
			// Undo the pop so the entry keeps its place, and remember
			// the replies decoded so far.
			e.queue.giveback(entry)
			e.parsing = batch
			return total, ErrNotEnoughData
		}

		e.parsing = nil
		e.dispatch(batch, entry)
	}
	return total, nil
}

// dispatch hands a fully decoded batch to the call recorded in entry.
// A failed lock means the call was cancelled or timed out in the
// meantime; the replies are dropped and that is the whole story.
func (e *engine) dispatch(batch *resp.ReplyBatch, entry pendingEntry) {
	c, err := e.table.lock(entry.id)
	if err != nil {
		e.stats.recordDroppedReply()
		e.log.Debug("dropping replies for resolved call",
			zap.Int("replies", batch.Len()))
		return
	}

	var failure error
	if batch.Len() != entry.count {
		failure = &ResponseMismatchError{Got: batch.Len(), Want: entry.count}
		e.stats.recordMismatch()
	}
	if e.verbose {
		e.log.Debug("dispatching reply batch",
			zap.Int("replies", batch.Len()),
			zap.Int("expected", entry.count),
			zap.Error(failure))
	}

	// Counters first: a waiter woken by resolve may snapshot stats
	// immediately.
	e.stats.recordDispatch(failure == nil)

	// The decoded replies are attached even when the count check fails.
	e.table.resolve(c, batch, failure)
}

// dispatchError fails the call recorded in entry without a reply batch.
func (e *engine) dispatchError(entry pendingEntry, err error) {
	if failErr := e.table.fail(entry.id, err); failErr != nil && !errors.Is(failErr, ErrCallInvalid) {
		e.log.Warn("failing pending call", zap.Error(failErr))
	}
}

// teardown fails every pending entry with cause and discards the
// continuation. Entries mid-decode were already given back to the queue,
// so draining it reaches each waiter exactly once.
func (e *engine) teardown(cause error) {
	e.parsing = nil
	for _, entry := range e.queue.drain() {
		e.dispatchError(entry, cause)
	}
}
