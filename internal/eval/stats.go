package eval

import "sync"

// Stats tracks dispatch counters across an engine's lifetime.
type Stats struct {
	mu                 sync.Mutex
	requestsDispatched int64
	batchesCompleted   int64
	batchesFailed      int64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	RequestsDispatched int64
	BatchesCompleted   int64
	BatchesFailed      int64
}

// RecordBatch counts a completed batch of n requests.
func (s *Stats) RecordBatch(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchesCompleted++
	s.requestsDispatched += int64(n)
}

// RecordFailure counts a batch that produced no results.
func (s *Stats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchesFailed++
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		RequestsDispatched: s.requestsDispatched,
		BatchesCompleted:   s.batchesCompleted,
		BatchesFailed:      s.batchesFailed,
	}
}
