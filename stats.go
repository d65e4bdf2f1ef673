package redpipe

import "sync/atomic"

// EngineStats counts protocol-engine events for one connection.
// All fields are safe for concurrent access.
//
// For Prometheus integration expose these as counters. Mismatches and
// RepliesDropped are worth alerting on: mismatches mean the peer and the
// client disagree about batch shapes, dropped replies mean callers gave
// up before their replies arrived.
type EngineStats struct {
	BatchesSent    uint64 // command batches pushed to the pipeline
	CommandsSent   uint64 // individual commands across all batches
	BatchesOK      uint64 // reply batches dispatched successfully
	Mismatches     uint64 // reply batches with an unexpected reply count
	RepliesDropped uint64 // reply batches whose caller was already resolved
}

// engineStatsCollector provides internal methods for updating engine
// stats. Not exported; the engine updates its own stats.
type engineStatsCollector struct {
	stats *EngineStats
}

func newEngineStatsCollector() *engineStatsCollector {
	return &engineStatsCollector{stats: &EngineStats{}}
}

func (c *engineStatsCollector) recordBatchSent(commands int) {
	atomic.AddUint64(&c.stats.BatchesSent, 1)
	atomic.AddUint64(&c.stats.CommandsSent, uint64(commands))
}

func (c *engineStatsCollector) recordDispatch(ok bool) {
	if ok {
		atomic.AddUint64(&c.stats.BatchesOK, 1)
	}
}

func (c *engineStatsCollector) recordMismatch() {
	atomic.AddUint64(&c.stats.Mismatches, 1)
}

func (c *engineStatsCollector) recordDroppedReply() {
	atomic.AddUint64(&c.stats.RepliesDropped, 1)
}

func (c *engineStatsCollector) snapshot() EngineStats {
	return EngineStats{
		BatchesSent:    atomic.LoadUint64(&c.stats.BatchesSent),
		CommandsSent:   atomic.LoadUint64(&c.stats.CommandsSent),
		BatchesOK:      atomic.LoadUint64(&c.stats.BatchesOK),
		Mismatches:     atomic.LoadUint64(&c.stats.Mismatches),
		RepliesDropped: atomic.LoadUint64(&c.stats.RepliesDropped),
	}
}
